package runner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"trade_core/internal/models"
	"trade_core/internal/modules/config"
	decsvc "trade_core/internal/modules/decoder/service"
	"trade_core/internal/modules/gateway"
	ledgersvc "trade_core/internal/modules/ledger/service"
	protsvc "trade_core/internal/modules/protective/service"
	risksvc "trade_core/internal/modules/risk/service"
	supsvc "trade_core/internal/modules/supervisor/service"
	"trade_core/internal/notify"
)

// Runner — входной поток: сырые предсказания модели → декод → сайзинг →
// рыночный вход → позиция в леджере с защитными ордерами. Дальше позицию
// ведёт супервизор.
type Runner struct {
	cfg     *config.Config
	dec     *decsvc.Decoder
	sizer   *risksvc.Sizer
	gw      gateway.OrderGateway
	ledger  *ledgersvc.Ledger
	prot    *protsvc.Manager
	prices  supsvc.Prices
	notif   notify.Notifier
	log     *zap.Logger
	signals <-chan models.Inference
}

func New(
	cfg *config.Config,
	dec *decsvc.Decoder,
	sizer *risksvc.Sizer,
	gw gateway.OrderGateway,
	ledger *ledgersvc.Ledger,
	prot *protsvc.Manager,
	prices supsvc.Prices,
	notif notify.Notifier,
	log *zap.Logger,
	signals <-chan models.Inference,
) *Runner {
	return &Runner{
		cfg:     cfg,
		dec:     dec,
		sizer:   sizer,
		gw:      gw,
		ledger:  ledger,
		prot:    prot,
		prices:  prices,
		notif:   notif,
		log:     log,
		signals: signals,
	}
}

func (r *Runner) Run(ctx context.Context) {
	r.log.Info("entry runner started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info("entry runner stopped")
			return
		case inf, ok := <-r.signals:
			if !ok {
				return
			}
			if err := r.OnInference(ctx, inf); err != nil {
				r.log.Error("inference rejected",
					zap.String("symbol", inf.Symbol), zap.Error(err))
			}
		}
	}
}

// OnInference обрабатывает один выход модели. NEUTRAL и низкая уверенность
// отбрасываются молча, битый вектор — с ошибкой; позиция не открывается,
// пока занят лимит MaxOpenPositions или по символу уже есть активная.
func (r *Runner) OnInference(ctx context.Context, inf models.Inference) error {
	sig, err := r.dec.Decode(inf.Symbol, inf.Output)
	if err != nil {
		if errors.Is(err, decsvc.ErrMalformedOutput) {
			return fmt.Errorf("decode: %w", err)
		}
		return err
	}
	if sig.SignalType == models.SignalNeutral {
		r.log.Info("neutral signal, skipping", zap.String("symbol", sig.Symbol))
		return nil
	}

	returns, _, risks, err := decsvc.SplitVector(inf.Output)
	if err != nil {
		return fmt.Errorf("split vector: %w", err)
	}
	r.sizer.Suggest(sig, returns, risks)

	active, err := r.ledger.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active: %w", err)
	}
	if len(active) >= r.cfg.Risk.MaxOpenPositions {
		r.log.Warn("max open positions reached, skipping signal",
			zap.String("symbol", sig.Symbol), zap.Int("active", len(active)))
		return nil
	}
	for _, p := range active {
		if p.Symbol == sig.Symbol {
			r.log.Info("position already open, skipping signal",
				zap.String("symbol", sig.Symbol))
			return nil
		}
	}

	meta, err := r.gw.InstrumentMeta(ctx, sig.Symbol)
	if err != nil {
		return fmt.Errorf("instrument meta: %w", err)
	}

	r.prices.Watch(sig.Symbol)
	px, err := r.prices.Price(ctx, sig.Symbol)
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}

	slPrice := px * (1 - sig.SuggestedStopPct/100)
	if sig.SignalType == models.SignalShort {
		slPrice = px * (1 + sig.SuggestedStopPct/100)
	}

	equity, err := r.gw.Balance(ctx)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}

	size, err := r.sizer.SizeByRisk(equity, px, slPrice, meta)
	if err != nil {
		return fmt.Errorf("size: %w", err)
	}

	side := models.SideLong
	if sig.SignalType == models.SignalShort {
		side = models.SideShort
	}
	entryID, err := r.gw.PlaceOrder(ctx, gateway.OrderRequest{
		Symbol:  sig.Symbol,
		Side:    gateway.EntrySide(side),
		PosSide: side,
		OrdType: gateway.OrdTypeMarket,
		Size:    size,
	})
	if err != nil {
		r.notif.Sendf("⚠️ entry failed %s %s: %v", sig.Symbol, sig.SignalType, err)
		return fmt.Errorf("place entry: %w", err)
	}

	pos, err := r.ledger.Open(ctx, sig, px, size, meta.TickSize)
	if err != nil {
		// вход уже на бирже, потерять его из леджера нельзя
		r.notif.Sendf("🔥 entry %s placed (ord %s) but ledger open failed: %v", sig.Symbol, entryID, err)
		return fmt.Errorf("ledger open: %w", err)
	}

	_, err = r.ledger.Update(ctx, pos.PositionID, func(p *models.TrackedPosition, order *models.SLTPOrder) error {
		// фатальный отказ Place сам уводит ордер в ERROR и поднимает алерт
		if err := r.prot.Place(ctx, p, order); err != nil {
			p.Status = models.PositionError
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("arm protective: %w", err)
	}

	r.log.Info("position entered",
		zap.String("position_id", pos.PositionID),
		zap.String("symbol", sig.Symbol),
		zap.String("side", string(side)),
		zap.Float64("size", size),
		zap.Float64("entry", px),
		zap.Float64("confidence", sig.CombinedConfidence),
	)
	r.notif.Sendf("✅ %s %s sz=%v @ %v (conf %.2f, SL %.2f%%, TP %.2f%%)",
		sig.Symbol, sig.SignalType, size, px,
		sig.CombinedConfidence, sig.SuggestedStopPct, sig.SuggestedTakePct)
	return nil
}
