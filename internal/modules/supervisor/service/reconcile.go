package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"trade_core/internal/models"
)

// reconcile сверяет локальное состояние SLTP-ордеров с биржей. Дрейф
// ожидаем, не фатален: биржевое значение принимается как истина, поднимается
// warning-алерт (дедуплицированный леджером). Сработавшая нога закрывает
// позицию и снимает парный ордер; flat на бирже закрывает позицию локально.
func (s *Supervisor) reconcile(ctx context.Context, pos *models.TrackedPosition, order *models.SLTPOrder) error {
	if order.Status != models.SLTPPlaced {
		return nil
	}

	legs := []struct {
		name    string
		id      string
		sibling string
	}{
		{"SL", order.SLOrderID, order.TPOrderID},
		{"TP", order.TPOrderID, order.SLOrderID},
	}

	for _, leg := range legs {
		if leg.id == "" {
			continue
		}

		st, err := s.gw.OrderStatus(ctx, pos.Symbol, leg.id)
		if err != nil {
			return fmt.Errorf("order status %s: %w", leg.id, err)
		}

		switch st {
		case models.OrderLive, models.OrderUnknown:
			continue

		case models.OrderEffective:
			// нога исполнилась: биржа закрыла позицию, парную ногу снимаем
			order.Status = models.SLTPTriggered
			if leg.sibling != "" {
				if err := s.gw.CancelOrder(ctx, pos.Symbol, leg.sibling); err != nil {
					s.log.Warn("cancel sibling order",
						zap.String("position_id", pos.PositionID), zap.Error(err))
				}
			}
			pos.Size = 0
			s.log.Info("protective leg triggered",
				zap.String("position_id", pos.PositionID),
				zap.String("leg", leg.name),
				zap.Float64("price", pos.CurrentPrice),
			)
			return nil

		default:
			mapped := st.SLTP()
			if mapped == "" || mapped == order.Status {
				continue
			}
			// дрейф: принимаем биржевой статус, warning вместо паники
			s.log.Warn("sltp status drift, adopting exchange value",
				zap.String("position_id", pos.PositionID),
				zap.String("leg", leg.name),
				zap.String("local", string(order.Status)),
				zap.String("exchange", string(st)),
			)
			order.Status = mapped
			if err := s.ledger.RaiseAlert(ctx, models.PositionAlert{
				PositionID: pos.PositionID,
				AlertType:  models.AlertWarning,
				Message:    fmt.Sprintf("%s order drift: local=%s exchange=%s", leg.name, models.SLTPPlaced, st),
				Severity:   3,
			}); err != nil {
				s.log.Error("raise drift alert", zap.Error(err))
			}
			return nil
		}
	}

	// обе ноги живы локально и на бирже — проверяем, что позиция вообще есть
	exPos, err := s.gw.Position(ctx, pos.Symbol)
	if err != nil {
		return fmt.Errorf("exchange position %s: %w", pos.Symbol, err)
	}
	if exPos == nil {
		s.log.Warn("position flat on exchange, closing locally",
			zap.String("position_id", pos.PositionID))
		for _, id := range []string{order.SLOrderID, order.TPOrderID} {
			if id == "" {
				continue
			}
			if err := s.gw.CancelOrder(ctx, pos.Symbol, id); err != nil {
				s.log.Warn("cancel orphan order", zap.Error(err))
			}
		}
		order.Status = models.SLTPCancelled
		pos.Size = 0
		if err := s.ledger.RaiseAlert(ctx, models.PositionAlert{
			PositionID: pos.PositionID,
			AlertType:  models.AlertWarning,
			Message:    "position closed on exchange outside of the bot",
			Severity:   3,
		}); err != nil {
			s.log.Error("raise flat alert", zap.Error(err))
		}
	}
	return nil
}
