package service

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_core/internal/models"
	"trade_core/internal/modules/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Decoder = config.DecoderConfig{
		TimeframeWeights:   []float64{0.4, 0.3, 0.2, 0.1},
		LongThreshold:      1.5,
		ShortThreshold:     0.5,
		MinConfidence:      0.35,
		AgreementWeight:    0.5,
		ModelWeight:        0.3,
		RiskWeight:         0.2,
		TransformSteepness: 4.0,
	}
	return cfg
}

// vector собирает валидный выход модели из одной тройки логитов,
// повторённой на все таймфреймы.
func vector(triple [3]float64, risk float64) []float64 {
	out := make([]float64, 0, VectorLen)
	for i := 0; i < models.NumTimeframes; i++ {
		out = append(out, 0.01)
	}
	for i := 0; i < models.NumTimeframes; i++ {
		out = append(out, triple[0], triple[1], triple[2])
	}
	for i := 0; i < models.NumTimeframes; i++ {
		out = append(out, risk)
	}
	return out
}

func TestDecodeAllTimeframesLong(t *testing.T) {
	d := New(testConfig())

	sig, err := d.Decode("BTC-USDT-SWAP", vector([3]float64{2.0, 0.5, 0.1}, 0.2))
	require.NoError(t, err)

	// softmax([2.0, 0.5, 0.1]) = e^2 / (e^2 + e^0.5 + e^0.1)
	wantConf := math.Exp(2.0) / (math.Exp(2.0) + math.Exp(0.5) + math.Exp(0.1))

	assert.Equal(t, models.SignalLong, sig.SignalType)
	for tf := 0; tf < models.NumTimeframes; tf++ {
		assert.Equal(t, models.SignalLong, sig.Directions[tf])
		assert.InDelta(t, wantConf, sig.Confidences[tf], 1e-9)
	}
	assert.InDelta(t, 0.7285, sig.Confidences[0], 1e-3)
}

func TestDecodeAllTimeframesShort(t *testing.T) {
	d := New(testConfig())

	sig, err := d.Decode("ETH-USDT-SWAP", vector([3]float64{0.1, 0.5, 2.0}, 0.2))
	require.NoError(t, err)

	assert.Equal(t, models.SignalShort, sig.SignalType)
	for tf := 0; tf < models.NumTimeframes; tf++ {
		assert.Equal(t, models.SignalShort, sig.Directions[tf])
	}
}

func TestDecodeMixedIsNeutral(t *testing.T) {
	cfg := testConfig()
	cfg.Decoder.MinConfidence = 0 // интересует только score
	d := New(cfg)

	// все таймфреймы уверенно NEUTRAL → score = 1.0, между порогами
	sig, err := d.Decode("BTC-USDT-SWAP", vector([3]float64{0.1, 2.0, 0.1}, 0.2))
	require.NoError(t, err)
	assert.Equal(t, models.SignalNeutral, sig.SignalType)
}

func TestSoftmaxSumsToOne(t *testing.T) {
	triples := [][]float64{
		{2.0, 0.5, 0.1},
		{-3.2, 0.0, 4.7},
		{0.0, 0.0, 0.0},
		{1000.0, 1000.5, 999.0}, // переполнение без вычитания максимума
		{-745.0, -744.0, -746.0},
	}
	for _, tr := range triples {
		probs := softmax(tr)
		sum := 0.0
		for _, p := range probs {
			assert.False(t, math.IsNaN(p))
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestDecodeDeterministic(t *testing.T) {
	d := New(testConfig())
	in := vector([3]float64{1.3, 0.2, -0.4}, 0.31)

	a, err := d.Decode("BTC-USDT-SWAP", in)
	require.NoError(t, err)
	b, err := d.Decode("BTC-USDT-SWAP", in)
	require.NoError(t, err)

	assert.Equal(t, a.SignalType, b.SignalType)
	assert.Equal(t, a.Directions, b.Directions)
	assert.Equal(t, a.Confidences, b.Confidences)
	assert.Equal(t, a.CombinedConfidence, b.CombinedConfidence)
}

func TestDecodeMalformed(t *testing.T) {
	d := New(testConfig())

	cases := map[string][]float64{
		"too short": make([]float64, 19),
		"too long":  make([]float64, 21),
		"empty":     {},
		"nan": func() []float64 {
			v := vector([3]float64{1, 0, 0}, 0.2)
			v[7] = math.NaN()
			return v
		}(),
		"inf": func() []float64 {
			v := vector([3]float64{1, 0, 0}, 0.2)
			v[18] = math.Inf(1)
			return v
		}(),
	}
	for name, in := range cases {
		_, err := d.Decode("BTC-USDT-SWAP", in)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrMalformedOutput), name)
	}
}

func TestCombinedConfidenceInRange(t *testing.T) {
	d := New(testConfig())

	for _, risk := range []float64{0.0, 0.1, 0.5, 0.9, 1.0, 7.5, -3.0} {
		sig, err := d.Decode("BTC-USDT-SWAP", vector([3]float64{2.0, 0.5, 0.1}, risk))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, sig.CombinedConfidence, 0.0)
		assert.LessOrEqual(t, sig.CombinedConfidence, 1.0)
	}
}

func TestMinConfidenceRejects(t *testing.T) {
	cfg := testConfig()
	cfg.Decoder.MinConfidence = 0.99
	d := New(cfg)

	sig, err := d.Decode("BTC-USDT-SWAP", vector([3]float64{2.0, 0.5, 0.1}, 0.2))
	require.NoError(t, err)
	assert.Equal(t, models.SignalNeutral, sig.SignalType)
	assert.Equal(t, 0.0, sig.CombinedConfidence)
}

func TestWithTransformReplacesPolicy(t *testing.T) {
	base := New(testConfig())
	replaced := New(testConfig()).WithTransform(func(risk float64) float64 { return 1 })

	in := vector([3]float64{2.0, 0.5, 0.1}, 0.9)
	a, err := base.Decode("BTC-USDT-SWAP", in)
	require.NoError(t, err)
	b, err := replaced.Decode("BTC-USDT-SWAP", in)
	require.NoError(t, err)

	assert.Greater(t, b.CombinedConfidence, a.CombinedConfidence)
}
