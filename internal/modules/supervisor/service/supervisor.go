package service

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trade_core/internal/models"
	"trade_core/internal/modules/config"
	"trade_core/internal/modules/gateway"
	healthsvc "trade_core/internal/modules/health/service"
	ledgersvc "trade_core/internal/modules/ledger/service"
	phsvc "trade_core/internal/modules/position_health/service"
	protsvc "trade_core/internal/modules/protective/service"
)

// Prices — чем супервизору служит маркетдата. Watch идемпотентен,
// Price может быть устаревшей не больше чем на один тик.
type Prices interface {
	Watch(symbol string)
	Price(ctx context.Context, symbol string) (float64, error)
}

// Supervisor — контрольный цикл: на каждом тике прогоняет все ACTIVE-позиции
// через reconcile → protective → health и пишет снапшот метрик. Позиции
// обрабатываются на ограниченном пуле, каждая со своим дедлайном: медленная
// позиция пропускает тик, но не стопорит остальные.
type Supervisor struct {
	cfg    *config.Config
	ledger *ledgersvc.Ledger
	prot   *protsvc.Manager
	health *phsvc.Evaluator
	prices Prices
	gw     gateway.OrderGateway
	state  *healthsvc.State
	log    *zap.Logger
}

func New(
	cfg *config.Config,
	ledger *ledgersvc.Ledger,
	prot *protsvc.Manager,
	health *phsvc.Evaluator,
	prices Prices,
	gw gateway.OrderGateway,
	state *healthsvc.State,
	log *zap.Logger,
) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		ledger: ledger,
		prot:   prot,
		health: health,
		prices: prices,
		gw:     gw,
		state:  state,
		log:    log,
	}
}

func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Supervisor.Interval)
	defer ticker.Stop()

	s.log.Info("supervisor started", zap.Duration("interval", s.cfg.Supervisor.Interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("supervisor stopped")
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.log.Error("supervisor tick", zap.Error(err))
			}
		}
	}
}

func (s *Supervisor) Tick(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "supervisor.tick")
	defer span.Finish()

	positions, err := s.ledger.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("Tick: list active: %w", err)
	}
	span.SetTag("positions", len(positions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Supervisor.Workers)
	for _, pos := range positions {
		id := pos.PositionID
		g.Go(func() error {
			if err := s.supervise(gctx, id); err != nil {
				// пропущенный тик самолечится со следующего: состояние
				// персистентно, глобального стопа нет
				s.log.Warn("position tick skipped",
					zap.String("position_id", id), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	s.state.TouchTick(time.Now())
	return nil
}

func (s *Supervisor) supervise(ctx context.Context, positionID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Supervisor.TickTimeout)
	defer cancel()

	now := time.Now().UTC()
	var snap *models.MetricsSnapshot

	pos, err := s.ledger.Update(ctx, positionID, func(pos *models.TrackedPosition, order *models.SLTPOrder) error {
		if pos.Status != models.PositionActive {
			return nil
		}

		s.prices.Watch(pos.Symbol)
		px, err := s.prices.Price(ctx, pos.Symbol)
		if err != nil {
			return fmt.Errorf("price %s: %w", pos.Symbol, err)
		}
		pos.ApplyPrice(px, now)

		if err := s.reconcile(ctx, pos, order); err != nil {
			return err
		}
		if pos.Size <= 0 {
			return nil
		}

		switch order.Status {
		case models.SLTPPending:
			// place сам считает попытки и при фатале уводит ордер в ERROR
			_ = s.prot.Place(ctx, pos, order)
		case models.SLTPPlaced:
			if err := s.prot.Evaluate(ctx, pos, order, px); err != nil {
				s.log.Warn("protective evaluate",
					zap.String("position_id", pos.PositionID), zap.Error(err))
			}
		}
		if order.Status == models.SLTPError {
			pos.Status = models.PositionError
			return nil
		}

		hist, err := s.ledger.RecentSnapshots(ctx, pos.PositionID, s.cfg.Health.Lookback)
		if err != nil {
			return fmt.Errorf("snapshots %s: %w", pos.PositionID, err)
		}
		res := s.health.Evaluate(pos, hist)
		pos.Health = res.Health
		if res.Health != models.HealthUnknown {
			pos.HealthScore = res.Score
		}
		for _, a := range res.Alerts {
			if err := s.ledger.RaiseAlert(ctx, a); err != nil {
				s.log.Error("raise alert", zap.Error(err))
			}
		}

		snap = &models.MetricsSnapshot{
			PositionID:    pos.PositionID,
			Timestamp:     now,
			CurrentPrice:  pos.CurrentPrice,
			UnrealizedPnl: pos.UnrealizedPnl,
			ROIPercent:    pos.ROIPercent,
			HealthScore:   pos.HealthScore,
			Volatility:    s.health.Volatility(hist),
		}
		return nil
	})
	if err != nil {
		return err
	}

	// снапшот пишем после снятия замка; at-least-once, потерянный ряд
	// переписывать нечем и незачем
	if snap != nil && pos.Status == models.PositionActive {
		if err := s.ledger.AppendSnapshot(ctx, snap); err != nil {
			s.log.Warn("append snapshot", zap.String("position_id", positionID), zap.Error(err))
		}
	}
	return nil
}
