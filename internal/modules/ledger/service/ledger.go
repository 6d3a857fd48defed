package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trade_core/internal/helper"
	"trade_core/internal/models"
	"trade_core/internal/modules/config"
)

// Ledger — единственная точка мутации позиций. Update держит per-key lock,
// поэтому trailing/breakeven/partial для одной позиции строго сериализованы.
type Ledger struct {
	store Store
	cfg   *config.Config
	log   *zap.Logger
	locks *keyLock
}

func New(cfg *config.Config, store Store, log *zap.Logger) *Ledger {
	return &Ledger{
		store: store,
		cfg:   cfg,
		log:   log,
		locks: newKeyLock(),
	}
}

// Open создает позицию и её защитный ордер одной транзакцией.
// SL/TP считаются из предложенных декодером процентов, trailing/partial
// параметры берутся из конфига и фиксируются в ордере на момент входа.
func (l *Ledger) Open(ctx context.Context, sig *models.TradingSignal, fillPrice, size, tickSize float64) (*models.TrackedPosition, error) {
	if sig.SignalType == models.SignalNeutral {
		return nil, fmt.Errorf("Open: neutral signal for %s", sig.Symbol)
	}
	if fillPrice <= 0 || size <= 0 {
		return nil, fmt.Errorf("Open: bad fill for %s: px=%v size=%v", sig.Symbol, fillPrice, size)
	}

	side := models.SideLong
	if sig.SignalType == models.SignalShort {
		side = models.SideShort
	}

	now := time.Now().UTC()
	pos := &models.TrackedPosition{
		PositionID:   uuid.NewString(),
		Symbol:       sig.Symbol,
		Side:         side,
		Size:         size,
		EntryPrice:   fillPrice,
		CurrentPrice: fillPrice,
		Exchange:     l.cfg.Exchange.Name,
		Status:       models.PositionActive,
		Health:       models.HealthUnknown,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	stopPct := sig.SuggestedStopPct / 100
	takePct := sig.SuggestedTakePct / 100
	pc := l.cfg.Protective

	var sl, tp, activation, partialTrigger float64
	if side == models.SideLong {
		sl = fillPrice * (1 - stopPct)
		tp = fillPrice * (1 + takePct)
		activation = fillPrice * (1 + pc.ActivationPct/100)
		partialTrigger = fillPrice * (1 + pc.PartialCloseTriggerPct/100)
	} else {
		sl = fillPrice * (1 + stopPct)
		tp = fillPrice * (1 - takePct)
		activation = fillPrice * (1 - pc.ActivationPct/100)
		partialTrigger = fillPrice * (1 - pc.PartialCloseTriggerPct/100)
	}
	if tickSize > 0 {
		sl = helper.RoundDownToTick(sl, tickSize)
		tp = helper.RoundDownToTick(tp, tickSize)
	}
	pos.StopLoss = sl
	pos.TakeProfit = tp

	order := &models.SLTPOrder{
		TradeID:             pos.PositionID,
		Symbol:              pos.Symbol,
		Side:                side,
		StopLossPrice:       sl,
		TakeProfitPrice:     tp,
		Status:              models.SLTPPending,
		TriggerBy:           pc.TriggerBy,
		TrailingStop:        pc.TrailingEnabled,
		ActivationPrice:     activation,
		Callback:            pc.CallbackPct / 100,
		PartialCloseRatio:   pc.PartialCloseRatio,
		PartialCloseTrigger: partialTrigger,
		OriginalStopLoss:    sl,
		OriginalTakeProfit:  tp,
		Extra:               models.SLTPExtra{TickSize: tickSize},
	}

	if err := l.store.CreatePosition(ctx, pos, order); err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}

	l.log.Info("position opened",
		zap.String("position_id", pos.PositionID),
		zap.String("symbol", pos.Symbol),
		zap.String("side", string(side)),
		zap.Float64("size", size),
		zap.Float64("entry", fillPrice),
	)
	return pos, nil
}

func (l *Ledger) Get(ctx context.Context, positionID string) (*models.TrackedPosition, error) {
	return l.store.GetPosition(ctx, positionID)
}

func (l *Ledger) SLTP(ctx context.Context, tradeID string) (*models.SLTPOrder, error) {
	return l.store.GetSLTP(ctx, tradeID)
}

func (l *Ledger) ListActive(ctx context.Context) ([]*models.TrackedPosition, error) {
	return l.store.ListActive(ctx)
}

// Update перечитывает пару (позиция, ордер) под эксклюзивным замком,
// применяет мутатор и сохраняет обе записи. Позиция с size<=0 закрывается
// автоматически.
func (l *Ledger) Update(ctx context.Context, positionID string, fn func(pos *models.TrackedPosition, order *models.SLTPOrder) error) (*models.TrackedPosition, error) {
	l.locks.Lock(positionID)
	defer l.locks.Unlock(positionID)

	pos, err := l.store.GetPosition(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}
	order, err := l.store.GetSLTP(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	if err := fn(pos, order); err != nil {
		return nil, err
	}

	if pos.Size <= 0 && pos.Status == models.PositionActive {
		pos.Size = 0
		pos.Status = models.PositionClosed
		pos.RealizedPnl += pos.UnrealizedPnl
		pos.UnrealizedPnl = 0
		pos.UpdatedAt = time.Now().UTC()
		l.log.Info("position fully reduced, closing", zap.String("position_id", positionID))
	}

	if err := l.store.SavePosition(ctx, pos); err != nil {
		return nil, fmt.Errorf("Update: save position: %w", err)
	}
	if err := l.store.SaveSLTP(ctx, order); err != nil {
		return nil, fmt.Errorf("Update: save sltp: %w", err)
	}
	return pos, nil
}

func (l *Ledger) Close(ctx context.Context, positionID, reason string) error {
	_, err := l.Update(ctx, positionID, func(pos *models.TrackedPosition, order *models.SLTPOrder) error {
		if pos.Status != models.PositionActive {
			return nil
		}
		pos.Size = 0
		return nil
	})
	if err != nil {
		return fmt.Errorf("Close: %w", err)
	}

	l.log.Info("position closed", zap.String("position_id", positionID), zap.String("reason", reason))
	return nil
}

// MarkError выводит позицию из автоматики, сохраняя last-known state.
func (l *Ledger) MarkError(ctx context.Context, positionID, msg string) error {
	_, err := l.Update(ctx, positionID, func(pos *models.TrackedPosition, order *models.SLTPOrder) error {
		pos.Status = models.PositionError
		pos.UpdatedAt = time.Now().UTC()
		if order.ErrorMessage == "" {
			order.ErrorMessage = msg
		}
		return nil
	})
	return err
}

func (l *Ledger) AppendSnapshot(ctx context.Context, snap *models.MetricsSnapshot) error {
	return l.store.AppendSnapshot(ctx, snap)
}

func (l *Ledger) RecentSnapshots(ctx context.Context, positionID string, limit int) ([]models.MetricsSnapshot, error) {
	return l.store.RecentSnapshots(ctx, positionID, limit)
}

// RaiseAlert вставляет алерт, если для (position_id, alert_type) ещё нет
// неразрешённого. Повторные вызовы с тем же типом — no-op.
func (l *Ledger) RaiseAlert(ctx context.Context, alert models.PositionAlert) error {
	exists, err := l.store.HasUnresolvedAlert(ctx, alert.PositionID, alert.AlertType)
	if err != nil {
		return fmt.Errorf("RaiseAlert: %w", err)
	}
	if exists {
		return nil
	}

	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	if err := l.store.InsertAlert(ctx, &alert); err != nil {
		return fmt.Errorf("RaiseAlert: %w", err)
	}

	l.log.Warn("position alert",
		zap.String("position_id", alert.PositionID),
		zap.String("type", string(alert.AlertType)),
		zap.Int("severity", alert.Severity),
		zap.String("message", alert.Message),
	)
	return nil
}

func (l *Ledger) ResolveAlert(ctx context.Context, positionID string, alertType models.AlertType) error {
	return l.store.ResolveAlert(ctx, positionID, alertType)
}
