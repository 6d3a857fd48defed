package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"trade_core/internal/models"
	"trade_core/internal/modules/gateway"
)

// Place ставит SL и TP как независимые conditional-ордера. Временные отказы
// ретраятся с экспоненциальным бэкоффом до MaxAttempts, каждая попытка
// учитывается в Attempts. Фатальный отказ или исчерпание попыток переводит
// ордер в ERROR с critical-алертом.
func (m *Manager) Place(ctx context.Context, pos *models.TrackedPosition, order *models.SLTPOrder) error {
	if order.Status != models.SLTPPending {
		return nil
	}

	op := func() (struct{}, error) {
		order.Attempts++

		if order.SLOrderID == "" {
			id, err := m.placeStopLeg(ctx, pos, order, order.StopLossPrice)
			if err != nil {
				return struct{}{}, retryOrPermanent(fmt.Errorf("place SL: %w", err))
			}
			order.SLOrderID = id
		}
		if order.TPOrderID == "" {
			id, err := m.placeTakeLeg(ctx, pos, order, order.TakeProfitPrice)
			if err != nil {
				return struct{}{}, retryOrPermanent(fmt.Errorf("place TP: %w", err))
			}
			order.TPOrderID = id
		}
		return struct{}{}, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.RetryInitial
	bo.MaxInterval = m.cfg.RetryMax

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(m.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.log.Warn("protective placement retry",
				zap.String("position_id", order.TradeID),
				zap.Int("attempt", order.Attempts),
				zap.Duration("next_in", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		m.fail(ctx, order, err)
		return err
	}

	order.Status = models.SLTPPlaced
	m.log.Info("protective orders placed",
		zap.String("position_id", order.TradeID),
		zap.String("symbol", order.Symbol),
		zap.Float64("sl", order.StopLossPrice),
		zap.Float64("tp", order.TakeProfitPrice),
		zap.Int("attempts", order.Attempts),
	)
	return nil
}

func retryOrPermanent(err error) error {
	if gateway.IsTransient(err) {
		return err
	}
	return backoff.Permanent(err)
}
