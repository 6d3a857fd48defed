package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trade_core/internal/models"
	"trade_core/internal/modules/config"
	"trade_core/internal/modules/gateway"
	healthsvc "trade_core/internal/modules/health/service"
	ledgersvc "trade_core/internal/modules/ledger/service"
	"trade_core/internal/modules/ledger/service/memory"
	phsvc "trade_core/internal/modules/position_health/service"
	protsvc "trade_core/internal/modules/protective/service"
)

type fakeGateway struct {
	statuses  map[string]models.OrderStatus
	flat      bool
	cancelled []string
}

func (f *fakeGateway) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (string, error) {
	return "algo-new", nil
}

func (f *fakeGateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeGateway) OrderStatus(ctx context.Context, symbol, orderID string) (models.OrderStatus, error) {
	if st, ok := f.statuses[orderID]; ok {
		return st, nil
	}
	return models.OrderLive, nil
}

func (f *fakeGateway) Position(ctx context.Context, symbol string) (*models.ExchangePosition, error) {
	if f.flat {
		return nil, nil
	}
	return &models.ExchangePosition{Symbol: symbol, Size: 10}, nil
}

func (f *fakeGateway) InstrumentMeta(ctx context.Context, symbol string) (models.InstrumentMeta, error) {
	return models.InstrumentMeta{Symbol: symbol, LotSize: 1, MinSize: 1, CtVal: 0.01}, nil
}

func (f *fakeGateway) Balance(ctx context.Context) (float64, error) { return 10000, nil }

type fakePrices struct{ px float64 }

func (f *fakePrices) Watch(symbol string) {}
func (f *fakePrices) Price(ctx context.Context, symbol string) (float64, error) {
	return f.px, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Exchange.Name = "okx"
	cfg.Protective = config.ProtectiveConfig{
		MaxAttempts:  3,
		RetryInitial: time.Millisecond,
		RetryMax:     5 * time.Millisecond,
		TriggerBy:    "last",
	}
	cfg.Health = config.HealthConfig{
		StopWeight: 0.35, TrendWeight: 0.25, TimeWeight: 0.15, VolWeight: 0.25,
		WarnBelow: 0.6, CriticalBelow: 0.3,
		StopRefPct: 1.0, RefVolatility: 0.02,
		ExpectedHold: 8 * time.Hour, Lookback: 30,
	}
	cfg.Supervisor = config.SupervisorConfig{
		Interval:       time.Second,
		TickTimeout:    time.Second,
		Workers:        4,
		PriceStaleness: time.Second,
	}
	return cfg
}

func testSupervisor(t *testing.T, gw *fakeGateway, px float64) (*Supervisor, *ledgersvc.Ledger, *memory.Store) {
	t.Helper()

	cfg := testConfig()
	store := memory.NewStore()
	log := zap.NewNop()
	led := ledgersvc.New(cfg, store, log)
	prot := protsvc.New(cfg, gw, led, log)
	eval := phsvc.New(cfg)
	s := New(cfg, led, prot, eval, &fakePrices{px: px}, gw, healthsvc.NewState(), log)
	return s, led, store
}

// placedPosition открывает позицию и приводит её ордер в PLACED с биржевыми id.
func placedPosition(t *testing.T, led *ledgersvc.Ledger) *models.TrackedPosition {
	t.Helper()

	sig := &models.TradingSignal{
		Symbol:           "BTC-USDT-SWAP",
		SignalType:       models.SignalLong,
		SuggestedStopPct: 1.0,
		SuggestedTakePct: 2.0,
	}
	pos, err := led.Open(context.Background(), sig, 100, 10, 0)
	require.NoError(t, err)

	_, err = led.Update(context.Background(), pos.PositionID, func(p *models.TrackedPosition, o *models.SLTPOrder) error {
		o.Status = models.SLTPPlaced
		o.SLOrderID = "sl-1"
		o.TPOrderID = "tp-1"
		return nil
	})
	require.NoError(t, err)
	return pos
}

func countWarnings(store *memory.Store, positionID string) int {
	n := 0
	for _, a := range store.Alerts() {
		if a.PositionID == positionID && a.AlertType == models.AlertWarning {
			n++
		}
	}
	return n
}

func TestReconcileAdoptsCancelledWithOneWarning(t *testing.T) {
	gw := &fakeGateway{statuses: map[string]models.OrderStatus{"sl-1": models.OrderCanceled}}
	s, led, store := testSupervisor(t, gw, 100)
	pos := placedPosition(t, led)
	ctx := context.Background()

	require.NoError(t, s.Tick(ctx))

	order, err := led.SLTP(ctx, pos.PositionID)
	require.NoError(t, err)
	assert.Equal(t, models.SLTPCancelled, order.Status)
	assert.Equal(t, 1, countWarnings(store, pos.PositionID))

	// следующий тик не плодит дубликаты
	require.NoError(t, s.Tick(ctx))
	assert.Equal(t, 1, countWarnings(store, pos.PositionID))
}

func TestReconcileTriggeredLegClosesPosition(t *testing.T) {
	gw := &fakeGateway{statuses: map[string]models.OrderStatus{"tp-1": models.OrderEffective}}
	s, led, _ := testSupervisor(t, gw, 102)
	pos := placedPosition(t, led)
	ctx := context.Background()

	require.NoError(t, s.Tick(ctx))

	got, err := led.Get(ctx, pos.PositionID)
	require.NoError(t, err)
	assert.Equal(t, models.PositionClosed, got.Status)
	assert.Equal(t, 0.0, got.Size)
	// pnl по последней цене: (102-100)*10
	assert.Equal(t, 20.0, got.RealizedPnl)

	order, err := led.SLTP(ctx, pos.PositionID)
	require.NoError(t, err)
	assert.Equal(t, models.SLTPTriggered, order.Status)
	assert.Equal(t, []string{"sl-1"}, gw.cancelled) // парная нога снята

	active, err := led.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestReconcileExchangeFlatClosesLocally(t *testing.T) {
	gw := &fakeGateway{flat: true}
	s, led, store := testSupervisor(t, gw, 100)
	pos := placedPosition(t, led)
	ctx := context.Background()

	require.NoError(t, s.Tick(ctx))

	got, err := led.Get(ctx, pos.PositionID)
	require.NoError(t, err)
	assert.Equal(t, models.PositionClosed, got.Status)

	order, err := led.SLTP(ctx, pos.PositionID)
	require.NoError(t, err)
	assert.Equal(t, models.SLTPCancelled, order.Status)
	assert.ElementsMatch(t, []string{"sl-1", "tp-1"}, gw.cancelled)
	assert.Equal(t, 1, countWarnings(store, pos.PositionID))
}

func TestTickAppendsSnapshotAndRollsMetrics(t *testing.T) {
	gw := &fakeGateway{}
	s, led, _ := testSupervisor(t, gw, 105)
	pos := placedPosition(t, led)
	ctx := context.Background()

	require.NoError(t, s.Tick(ctx))
	require.NoError(t, s.Tick(ctx))

	got, err := led.Get(ctx, pos.PositionID)
	require.NoError(t, err)
	assert.Equal(t, 105.0, got.CurrentPrice)
	assert.Equal(t, 50.0, got.UnrealizedPnl) // (105-100)*10
	assert.InDelta(t, 5.0, got.ROIPercent, 1e-9)
	assert.Equal(t, 50.0, got.MaxProfit)

	snaps, err := led.RecentSnapshots(ctx, pos.PositionID, 10)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
	assert.Equal(t, 105.0, snaps[0].CurrentPrice)
}

func TestTickTouchesHealthState(t *testing.T) {
	gw := &fakeGateway{}
	s, _, _ := testSupervisor(t, gw, 100)

	before := s.state.LastTick()
	require.NoError(t, s.Tick(context.Background()))
	assert.True(t, s.state.LastTick().After(before) || !s.state.LastTick().IsZero())
}
