package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"trade_core/internal/models"
	"trade_core/internal/modules/config"
	"trade_core/internal/modules/gateway"
)

// Alerts — то, что менеджеру нужно от леджера: поднять дедуплицированный алерт.
type Alerts interface {
	RaiseAlert(ctx context.Context, alert models.PositionAlert) error
}

// Manager ведёт state machine защитного ордера:
// PENDING → PLACED → {TRIGGERED, CANCELLED, ERROR}.
// Мутирует позицию и ордер in-place, персистит вызывающий (леджер).
type Manager struct {
	gw     gateway.OrderGateway
	alerts Alerts
	cfg    config.ProtectiveConfig
	log    *zap.Logger
}

func New(cfg *config.Config, gw gateway.OrderGateway, alerts Alerts, log *zap.Logger) *Manager {
	return &Manager{
		gw:     gw,
		alerts: alerts,
		cfg:    cfg.Protective,
		log:    log,
	}
}

func (m *Manager) placeStopLeg(ctx context.Context, pos *models.TrackedPosition, order *models.SLTPOrder, triggerPx float64) (string, error) {
	return m.gw.PlaceOrder(ctx, gateway.OrderRequest{
		Symbol:       pos.Symbol,
		Side:         gateway.CloseSide(pos.Side),
		PosSide:      pos.Side,
		OrdType:      gateway.OrdTypeConditional,
		Size:         pos.Size,
		TriggerPrice: triggerPx,
		TriggerBy:    order.TriggerBy,
		ReduceOnly:   true,
	})
}

func (m *Manager) placeTakeLeg(ctx context.Context, pos *models.TrackedPosition, order *models.SLTPOrder, triggerPx float64) (string, error) {
	return m.gw.PlaceOrder(ctx, gateway.OrderRequest{
		Symbol:       pos.Symbol,
		Side:         gateway.CloseSide(pos.Side),
		PosSide:      pos.Side,
		OrdType:      gateway.OrdTypeConditional,
		Size:         pos.Size,
		TriggerPrice: triggerPx,
		TriggerBy:    order.TriggerBy,
		TakeProfit:   true,
		ReduceOnly:   true,
	})
}

// fail переводит ордер в ERROR и поднимает critical-алерт.
// Позиция остаётся видимой, но автоматика для неё останавливается.
func (m *Manager) fail(ctx context.Context, order *models.SLTPOrder, cause error) {
	order.Status = models.SLTPError
	order.ErrorMessage = cause.Error()

	m.log.Error("protective order failed",
		zap.String("position_id", order.TradeID),
		zap.String("symbol", order.Symbol),
		zap.Error(cause),
	)
	if err := m.alerts.RaiseAlert(ctx, models.PositionAlert{
		PositionID: order.TradeID,
		AlertType:  models.AlertCritical,
		Message:    fmt.Sprintf("protective order failed: %v", cause),
		Severity:   5,
	}); err != nil {
		m.log.Error("raise alert failed", zap.Error(err))
	}
}
