package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"trade_core/internal/helper"
	"trade_core/internal/models"
	"trade_core/internal/modules/gateway"
)

// Evaluate прогоняет PLACED-ордер через partial close → breakeven → trailing.
// Не больше одного действия за тик: следующий триггер подберёт следующий тик.
// ERROR-ордера не трогаем до ручного вмешательства.
func (m *Manager) Evaluate(ctx context.Context, pos *models.TrackedPosition, order *models.SLTPOrder, price float64) error {
	if order.Status != models.SLTPPlaced || price <= 0 {
		return nil
	}

	if m.partialDue(pos, order, price) {
		return m.partialClose(ctx, pos, order)
	}
	if m.breakevenDue(pos, order) {
		return m.moveToBreakeven(ctx, pos, order)
	}
	if m.cfg.TrailingEnabled && order.TrailingStop {
		return m.trail(ctx, pos, order, price)
	}
	return nil
}

func (m *Manager) partialDue(pos *models.TrackedPosition, order *models.SLTPOrder, price float64) bool {
	if order.PartialCloseRatio <= 0 || order.Extra.PartialClosed {
		return false
	}
	if pos.Side == models.SideShort {
		return price <= order.PartialCloseTrigger
	}
	return price >= order.PartialCloseTrigger
}

// partialClose — одноразовый reduce-only фикс части позиции. Факт срабатывания
// хранится в extra_data, повторные Evaluate по той же цене — no-op.
func (m *Manager) partialClose(ctx context.Context, pos *models.TrackedPosition, order *models.SLTPOrder) error {
	closeSize := pos.Size * order.PartialCloseRatio

	_, err := m.gw.PlaceOrder(ctx, gateway.OrderRequest{
		Symbol:     pos.Symbol,
		Side:       gateway.CloseSide(pos.Side),
		PosSide:    pos.Side,
		OrdType:    gateway.OrdTypeMarket,
		Size:       closeSize,
		ReduceOnly: true,
	})
	if err != nil {
		if gateway.IsTransient(err) {
			return fmt.Errorf("partial close: %w", err)
		}
		m.fail(ctx, order, fmt.Errorf("partial close: %w", err))
		return err
	}

	order.Extra.PartialClosed = true
	// pnl закрытой части фиксируем до уменьшения размера
	pos.RealizedPnl += pos.PnlAt(pos.CurrentPrice) * order.PartialCloseRatio
	pos.Size -= closeSize

	m.log.Info("partial close filled",
		zap.String("position_id", pos.PositionID),
		zap.Float64("closed", closeSize),
		zap.Float64("remaining", pos.Size),
	)

	// защитные ноги переразмещаем под остаток позиции
	if err := m.replaceStop(ctx, pos, order, order.StopLossPrice); err != nil {
		return err
	}
	return m.replaceTake(ctx, pos, order, order.TakeProfitPrice)
}

func (m *Manager) breakevenDue(pos *models.TrackedPosition, order *models.SLTPOrder) bool {
	if order.IsBreakeven || m.cfg.BreakevenTriggerPct <= 0 {
		return false
	}
	return pos.ROIPercent >= m.cfg.BreakevenTriggerPct
}

// moveToBreakeven — one-way: IsBreakeven после установки не сбрасывается.
func (m *Manager) moveToBreakeven(ctx context.Context, pos *models.TrackedPosition, order *models.SLTPOrder) error {
	stop := pos.EntryPrice
	if !tightens(stop, order.StopLossPrice, pos.Side) {
		order.IsBreakeven = true
		return nil
	}

	if err := m.replaceStop(ctx, pos, order, stop); err != nil {
		return err
	}
	order.IsBreakeven = true
	m.log.Info("stop moved to breakeven",
		zap.String("position_id", pos.PositionID),
		zap.Float64("stop", stop),
	)
	return nil
}

// trail подтягивает стоп за ценой. Активация: цена должна уйти за
// activation_price больше чем на callback, иначе новый стоп оказался бы
// ниже активации. Ослабляющие пересчёты отбрасываются.
func (m *Manager) trail(ctx context.Context, pos *models.TrackedPosition, order *models.SLTPOrder, price float64) error {
	cb := order.Callback

	var candidate float64
	if pos.Side == models.SideLong {
		if price < order.ActivationPrice*(1+cb) {
			return nil
		}
		candidate = price * (1 - cb)
		if tick := order.Extra.TickSize; tick > 0 {
			candidate = helper.RoundDownToTick(candidate, tick)
		}
	} else {
		if price > order.ActivationPrice*(1-cb) {
			return nil
		}
		candidate = price * (1 + cb)
		if tick := order.Extra.TickSize; tick > 0 {
			candidate = helper.RoundUpToTick(candidate, tick)
		}
	}

	current := order.StopLossPrice
	if order.TrailingStopPrice > 0 {
		current = order.TrailingStopPrice
	}
	if !tightens(candidate, current, pos.Side) {
		return nil
	}

	if err := m.replaceStop(ctx, pos, order, candidate); err != nil {
		return err
	}
	order.TrailingStopPrice = candidate
	m.log.Info("trailing stop tightened",
		zap.String("position_id", pos.PositionID),
		zap.Float64("stop", candidate),
		zap.Float64("price", price),
	)
	return nil
}

// tightens — кандидат строго ближе к цене, чем текущий стоп.
func tightens(candidate, current float64, side models.PositionSide) bool {
	if side == models.SideShort {
		return candidate < current
	}
	return candidate > current
}

// replaceStop — cancel+replace SL-ноги. Ошибка отмены уже снятого ордера
// не фатальна: биржа могла исполнить или снять его сама.
func (m *Manager) replaceStop(ctx context.Context, pos *models.TrackedPosition, order *models.SLTPOrder, stopPx float64) error {
	if order.SLOrderID != "" {
		if err := m.gw.CancelOrder(ctx, pos.Symbol, order.SLOrderID); err != nil {
			if gateway.IsTransient(err) {
				return fmt.Errorf("cancel SL: %w", err)
			}
			m.log.Warn("cancel SL rejected, replacing anyway",
				zap.String("position_id", pos.PositionID), zap.Error(err))
		}
	}

	id, err := m.placeStopLeg(ctx, pos, order, stopPx)
	if err != nil {
		if gateway.IsTransient(err) {
			return fmt.Errorf("replace SL: %w", err)
		}
		m.fail(ctx, order, fmt.Errorf("replace SL: %w", err))
		return err
	}

	order.SLOrderID = id
	order.StopLossPrice = stopPx
	pos.StopLoss = stopPx
	return nil
}

func (m *Manager) replaceTake(ctx context.Context, pos *models.TrackedPosition, order *models.SLTPOrder, takePx float64) error {
	if order.TPOrderID != "" {
		if err := m.gw.CancelOrder(ctx, pos.Symbol, order.TPOrderID); err != nil {
			if gateway.IsTransient(err) {
				return fmt.Errorf("cancel TP: %w", err)
			}
			m.log.Warn("cancel TP rejected, replacing anyway",
				zap.String("position_id", pos.PositionID), zap.Error(err))
		}
	}

	id, err := m.placeTakeLeg(ctx, pos, order, takePx)
	if err != nil {
		if gateway.IsTransient(err) {
			return fmt.Errorf("replace TP: %w", err)
		}
		m.fail(ctx, order, fmt.Errorf("replace TP: %w", err))
		return err
	}

	order.TPOrderID = id
	order.TakeProfitPrice = takePx
	return nil
}
