package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"trade_core/internal/models"
	"trade_core/internal/modules/config"
)

func testEvaluator() *Evaluator {
	cfg := &config.Config{}
	cfg.Health = config.HealthConfig{
		StopWeight:    0.35,
		TrendWeight:   0.25,
		TimeWeight:    0.15,
		VolWeight:     0.25,
		WarnBelow:     0.6,
		CriticalBelow: 0.3,
		StopRefPct:    1.0,
		RefVolatility: 0.02,
		ExpectedHold:  8 * time.Hour,
		Lookback:      30,
	}
	return New(cfg)
}

func position(px, stop float64) *models.TrackedPosition {
	return &models.TrackedPosition{
		PositionID:   "pos-1",
		Symbol:       "BTC-USDT-SWAP",
		Side:         models.SideLong,
		Size:         10,
		EntryPrice:   100,
		CurrentPrice: px,
		StopLoss:     stop,
		Status:       models.PositionActive,
		HoldTime:     time.Hour,
	}
}

func history(prices []float64, rois []float64) []models.MetricsSnapshot {
	out := make([]models.MetricsSnapshot, len(prices))
	for i := range prices {
		out[i] = models.MetricsSnapshot{
			PositionID:   "pos-1",
			CurrentPrice: prices[i],
			ROIPercent:   rois[i],
		}
	}
	return out
}

func TestEvaluateUnknownWithoutHistory(t *testing.T) {
	e := testEvaluator()
	pos := position(101, 99)

	res := e.Evaluate(pos, nil)
	assert.Equal(t, models.HealthUnknown, res.Health)
	assert.Empty(t, res.Alerts)

	res = e.Evaluate(pos, history([]float64{101}, []float64{1}))
	assert.Equal(t, models.HealthUnknown, res.Health)
}

func TestEvaluateHealthyPosition(t *testing.T) {
	e := testEvaluator()
	// далеко от стопа, ровный рост, спокойная цена
	pos := position(102, 99)
	hist := history(
		[]float64{100.0, 100.5, 101.0, 101.5, 102.0},
		[]float64{0.0, 0.5, 1.0, 1.5, 2.0},
	)

	res := e.Evaluate(pos, hist)
	assert.Equal(t, models.HealthHealthy, res.Health)
	assert.Empty(t, res.Alerts)
	assert.GreaterOrEqual(t, res.Score, 0.6)
}

func TestEvaluateStopBreachedIsCritical(t *testing.T) {
	e := testEvaluator()
	// цена у стопа, монотонный слив
	pos := position(99.0, 99.0)
	pos.HoldTime = 9 * time.Hour
	hist := history(
		[]float64{101.0, 100.0, 99.6, 99.2, 99.0},
		[]float64{1.0, 0.0, -0.4, -0.8, -1.0},
	)

	res := e.Evaluate(pos, hist)
	assert.Equal(t, models.HealthCritical, res.Health)
	assert.Less(t, res.Score, 0.3)
	assert.Len(t, res.Alerts, 1)
	assert.Equal(t, models.AlertCritical, res.Alerts[0].AlertType)
	assert.Equal(t, "pos-1", res.Alerts[0].PositionID)
}

func TestEvaluateWarningBand(t *testing.T) {
	e := testEvaluator()
	// близко к стопу и лёгкий слив, но не катастрофа
	pos := position(99.5, 99.2)
	hist := history(
		[]float64{100.0, 99.9, 99.8, 99.6, 99.5},
		[]float64{0.0, -0.1, -0.2, -0.4, -0.5},
	)

	res := e.Evaluate(pos, hist)
	assert.Equal(t, models.HealthWarning, res.Health)
	assert.Len(t, res.Alerts, 1)
	assert.Equal(t, models.AlertWarning, res.Alerts[0].AlertType)
}

func TestScoreAlwaysInUnitInterval(t *testing.T) {
	e := testEvaluator()

	cases := []*models.TrackedPosition{
		position(150, 99),
		position(50, 99),
		position(100, 0),
	}
	hist := history(
		[]float64{100, 120, 80, 140, 60},
		[]float64{0, 20, -20, 40, -40},
	)
	for _, pos := range cases {
		res := e.Evaluate(pos, hist)
		assert.GreaterOrEqual(t, res.Score, 0.0)
		assert.LessOrEqual(t, res.Score, 1.0)
	}
}
