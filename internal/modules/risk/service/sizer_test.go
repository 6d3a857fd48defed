package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trade_core/internal/models"
	"trade_core/internal/modules/config"
)

func testSizer() *Sizer {
	cfg := &config.Config{}
	cfg.Risk = config.RiskConfig{
		MinStopPct:       0.2,
		MaxStopPct:       3.0,
		MinTakePct:       0.4,
		MaxTakePct:       9.0,
		DefaultStopPct:   0.5,
		DefaultTakePct:   1.5,
		StopBuffer:       1.2,
		TakeProfitRR:     2.0,
		RiskPct:          1.0,
		Leverage:         10,
		MaxOpenPositions: 10,
	}
	return New(cfg, zap.NewNop())
}

func longSignal() *models.TradingSignal {
	return &models.TradingSignal{Symbol: "BTC-USDT-SWAP", SignalType: models.SignalLong}
}

func TestSuggestFailsClosedOnNonFinite(t *testing.T) {
	s := testSizer()

	cases := [][2][]float64{
		{{math.NaN(), 0.01, 0.01, 0.01}, {0.2, 0.2, 0.2, 0.2}},
		{{0.01, 0.01, 0.01, 0.01}, {math.Inf(1), 0.2, 0.2, 0.2}},
		{nil, {0.2, 0.2, 0.2, 0.2}},
	}
	for _, c := range cases {
		sig := longSignal()
		s.Suggest(sig, c[0], c[1])
		assert.Equal(t, 0.5, sig.SuggestedStopPct)
		assert.Equal(t, 1.5, sig.SuggestedTakePct)
		assert.Equal(t, 1.0, sig.RiskScore)
	}
}

func TestSuggestClampsToBands(t *testing.T) {
	s := testSizer()

	// огромная предсказанная просадка упирается в MaxStopPct
	sig := longSignal()
	s.Suggest(sig, []float64{-0.5, -0.5, 0.2, 0.2}, []float64{0.3, 0.3, 0.3, 0.3})
	assert.Equal(t, 3.0, sig.SuggestedStopPct)
	assert.Equal(t, 9.0, sig.SuggestedTakePct)

	// крошечная — в MinStopPct, TP держит риск/прибыль
	sig = longSignal()
	s.Suggest(sig, []float64{-0.0001, 0.0001, 0.0001, 0.0001}, []float64{0.1, 0.1, 0.1, 0.1})
	assert.Equal(t, 0.2, sig.SuggestedStopPct)
	assert.InDelta(t, 0.4, sig.SuggestedTakePct, 1e-9)
}

func TestSuggestRiskScoreIsMeanClampedRisk(t *testing.T) {
	s := testSizer()
	sig := longSignal()
	s.Suggest(sig, []float64{-0.01, 0.02, 0.01, 0.01}, []float64{0.2, 0.4, 1.5, -0.1})
	// clamp01: 0.2, 0.4, 1.0, 0.0 → mean 0.4
	assert.InDelta(t, 0.4, sig.RiskScore, 1e-9)
}

func TestSizeByRisk(t *testing.T) {
	s := testSizer()
	meta := models.InstrumentMeta{Symbol: "BTC-USDT-SWAP", TickSize: 0.1, LotSize: 1, MinSize: 1, CtVal: 0.01}

	// риск 1% от 10000 = 100 USDT, stopDist 1 → 100 / (1 * 0.01) = 10000 контрактов
	sz, err := s.SizeByRisk(10000, 100, 99, meta)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, sz)
}

func TestSizeByRiskMarginCap(t *testing.T) {
	s := testSizer()
	meta := models.InstrumentMeta{LotSize: 1, MinSize: 1, CtVal: 1}

	// риск-формула дала бы 100 контрактов, маржа пускает только
	// (100 * 10) / (100 * 1) = 10
	sz, err := s.SizeByRisk(100, 100, 99.99, meta)
	require.NoError(t, err)
	assert.Equal(t, 10.0, sz)
}

func TestSizeByRiskLotRounding(t *testing.T) {
	s := testSizer()
	meta := models.InstrumentMeta{LotSize: 10, MinSize: 10, CtVal: 0.01}

	sz, err := s.SizeByRisk(10000, 100, 99.3, meta)
	require.NoError(t, err)
	assert.Equal(t, 0.0, math.Mod(sz, 10))
	assert.GreaterOrEqual(t, sz, 10.0)
}

func TestSizeByRiskRejectsBadInputs(t *testing.T) {
	s := testSizer()
	meta := models.InstrumentMeta{LotSize: 1, MinSize: 1, CtVal: 0.01}

	_, err := s.SizeByRisk(0, 100, 99, meta)
	assert.Error(t, err)

	_, err = s.SizeByRisk(10000, 0, 99, meta)
	assert.Error(t, err)

	_, err = s.SizeByRisk(10000, 100, 100, meta) // нулевая дистанция до стопа
	assert.Error(t, err)

	_, err = s.SizeByRisk(10000, 100, 99, models.InstrumentMeta{LotSize: 1, MinSize: 1})
	assert.Error(t, err) // ctVal = 0
}
