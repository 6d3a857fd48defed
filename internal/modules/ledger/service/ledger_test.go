package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trade_core/internal/models"
	"trade_core/internal/modules/config"
	"trade_core/internal/modules/ledger/service"
	"trade_core/internal/modules/ledger/service/memory"
)

func testLedger(t *testing.T) (*service.Ledger, *memory.Store) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Exchange.Name = "okx"
	cfg.Protective = config.ProtectiveConfig{
		MaxAttempts:            3,
		TriggerBy:              "last",
		TrailingEnabled:        true,
		ActivationPct:          2.0,
		CallbackPct:            1.0,
		BreakevenTriggerPct:    0.6,
		PartialCloseRatio:      0.5,
		PartialCloseTriggerPct: 1.5,
	}

	store := memory.NewStore()
	return service.New(cfg, store, zap.NewNop()), store
}

func longSignal() *models.TradingSignal {
	return &models.TradingSignal{
		Symbol:             "BTC-USDT-SWAP",
		SignalType:         models.SignalLong,
		CombinedConfidence: 0.7,
		SuggestedStopPct:   1.0,
		SuggestedTakePct:   2.0,
		RiskScore:          0.3,
	}
}

func TestOpenRoundTrip(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()

	pos, err := l.Open(ctx, longSignal(), 100, 10, 0.1)
	require.NoError(t, err)
	require.NotEmpty(t, pos.PositionID)

	got, err := l.Get(ctx, pos.PositionID)
	require.NoError(t, err)
	assert.Equal(t, pos, got)

	assert.Equal(t, models.PositionActive, got.Status)
	assert.Equal(t, models.HealthUnknown, got.Health)
	assert.Equal(t, models.SideLong, got.Side)
	assert.InDelta(t, 99.0, got.StopLoss, 1e-9)
	assert.InDelta(t, 102.0, got.TakeProfit, 1e-9)

	order, err := l.SLTP(ctx, pos.PositionID)
	require.NoError(t, err)
	assert.Equal(t, pos.PositionID, order.TradeID)
	assert.Equal(t, models.SLTPPending, order.Status)
	assert.InDelta(t, 99.0, order.StopLossPrice, 1e-9)
	assert.InDelta(t, 102.0, order.TakeProfitPrice, 1e-9)
	assert.InDelta(t, 102.0, order.ActivationPrice, 1e-9) // entry +2%
	assert.InDelta(t, 0.01, order.Callback, 1e-9)
	assert.InDelta(t, 101.5, order.PartialCloseTrigger, 1e-9)
	assert.Equal(t, 0.1, order.Extra.TickSize)
	assert.Equal(t, order.StopLossPrice, order.OriginalStopLoss)
	assert.Equal(t, order.TakeProfitPrice, order.OriginalTakeProfit)
}

func TestOpenShortMirrorsPrices(t *testing.T) {
	l, _ := testLedger(t)

	sig := longSignal()
	sig.SignalType = models.SignalShort
	pos, err := l.Open(context.Background(), sig, 100, 10, 0)
	require.NoError(t, err)

	assert.Equal(t, models.SideShort, pos.Side)
	assert.InDelta(t, 101.0, pos.StopLoss, 1e-9)
	assert.InDelta(t, 98.0, pos.TakeProfit, 1e-9)
}

func TestOpenRejectsNeutralAndBadFill(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()

	sig := longSignal()
	sig.SignalType = models.SignalNeutral
	_, err := l.Open(ctx, sig, 100, 10, 0)
	assert.Error(t, err)

	_, err = l.Open(ctx, longSignal(), 0, 10, 0)
	assert.Error(t, err)

	_, err = l.Open(ctx, longSignal(), 100, 0, 0)
	assert.Error(t, err)
}

func TestUpdateAutoClosesAtZeroSize(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()

	pos, err := l.Open(ctx, longSignal(), 100, 10, 0)
	require.NoError(t, err)

	got, err := l.Update(ctx, pos.PositionID, func(p *models.TrackedPosition, o *models.SLTPOrder) error {
		p.UnrealizedPnl = 50
		p.Size = 0
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, models.PositionClosed, got.Status)
	assert.Equal(t, 0.0, got.Size)
	assert.Equal(t, 50.0, got.RealizedPnl)
	assert.Equal(t, 0.0, got.UnrealizedPnl)

	active, err := l.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestUpdateSerializesWriters(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()

	pos, err := l.Open(ctx, longSignal(), 100, 10, 0)
	require.NoError(t, err)

	const writers = 50
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := l.Update(ctx, pos.PositionID, func(p *models.TrackedPosition, o *models.SLTPOrder) error {
				p.RealizedPnl++ // read-modify-write под замком
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := l.Get(ctx, pos.PositionID)
	require.NoError(t, err)
	assert.Equal(t, float64(writers), got.RealizedPnl)
}

func TestCloseRealizesPnl(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()

	pos, err := l.Open(ctx, longSignal(), 100, 10, 0)
	require.NoError(t, err)

	_, err = l.Update(ctx, pos.PositionID, func(p *models.TrackedPosition, o *models.SLTPOrder) error {
		p.UnrealizedPnl = 30
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, l.Close(ctx, pos.PositionID, "take profit hit"))

	got, err := l.Get(ctx, pos.PositionID)
	require.NoError(t, err)
	assert.Equal(t, models.PositionClosed, got.Status)
	assert.Equal(t, 30.0, got.RealizedPnl)

	// повторное закрытие — no-op
	require.NoError(t, l.Close(ctx, pos.PositionID, "again"))
	got, err = l.Get(ctx, pos.PositionID)
	require.NoError(t, err)
	assert.Equal(t, 30.0, got.RealizedPnl)
}

func TestRaiseAlertDeduplicates(t *testing.T) {
	l, store := testLedger(t)
	ctx := context.Background()

	pos, err := l.Open(ctx, longSignal(), 100, 10, 0)
	require.NoError(t, err)

	alert := models.PositionAlert{
		PositionID: pos.PositionID,
		AlertType:  models.AlertWarning,
		Message:    "health degraded",
		Severity:   2,
	}
	require.NoError(t, l.RaiseAlert(ctx, alert))
	require.NoError(t, l.RaiseAlert(ctx, alert))
	require.NoError(t, l.RaiseAlert(ctx, alert))
	assert.Len(t, store.Alerts(), 1)

	// другой тип живёт параллельно
	critical := alert
	critical.AlertType = models.AlertCritical
	require.NoError(t, l.RaiseAlert(ctx, critical))
	assert.Len(t, store.Alerts(), 2)

	// после resolve можно поднять заново
	require.NoError(t, l.ResolveAlert(ctx, pos.PositionID, models.AlertWarning))
	require.NoError(t, l.RaiseAlert(ctx, alert))
	assert.Len(t, store.Alerts(), 3)
}

func TestGetUnknownPosition(t *testing.T) {
	l, _ := testLedger(t)

	_, err := l.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, service.ErrNotFound)
}
