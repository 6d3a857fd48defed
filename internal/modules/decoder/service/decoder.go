package service

import (
	"errors"
	"fmt"
	"math"
	"time"

	"trade_core/internal/helper"
	"trade_core/internal/models"
	"trade_core/internal/modules/config"
)

// Модель всегда отдаёт ровно 20 чисел:
//
//	[0:4)   — прогнозы доходности по таймфреймам
//	[4:16)  — логиты направлений, 4 тройки [long, neutral, short]
//	[16:20) — риск-метрики (ожидаемая просадка, доли)
//
// Любая другая длина или нечисловое значение — ErrMalformedOutput,
// молча пере-нарезать вектор нельзя.
const (
	VectorLen     = 20
	returnsOffset = 0
	logitsOffset  = 4
	risksOffset   = 16

	classesPerTimeframe = 3
)

var ErrMalformedOutput = errors.New("malformed model output")

// Индексы классов внутри тройки логитов.
const (
	classLong = iota
	classNeutral
	classShort
)

var classDirections = [classesPerTimeframe]models.SignalType{
	models.SignalLong, models.SignalNeutral, models.SignalShort,
}

// Вклад класса в weighted-direction score: LONG=2, NEUTRAL=1, SHORT=0.
var classValues = [classesPerTimeframe]float64{2, 1, 0}

// Transform — monotone risk→confidence map. Эвристика из исходной системы:
// обоснование слабое, поэтому политика заменяемая (см. WithTransform).
type Transform func(risk float64) float64

type Decoder struct {
	cfg       config.DecoderConfig
	transform Transform
}

func New(cfg *config.Config) *Decoder {
	k := cfg.Decoder.TransformSteepness
	if k <= 0 {
		k = 4.0
	}
	return &Decoder{
		cfg: cfg.Decoder,
		transform: func(risk float64) float64 {
			return 1 / (1 + math.Exp(k*(risk-0.5)))
		},
	}
}

// WithTransform подменяет risk→confidence политику.
func (d *Decoder) WithTransform(t Transform) *Decoder {
	d.transform = t
	return d
}

// SplitVector нарезает сырой вектор на каналы. Единственное место,
// где зафиксирована раскладка.
func SplitVector(out []float64) (returns, logits, risks []float64, err error) {
	if len(out) != VectorLen {
		return nil, nil, nil, fmt.Errorf("%w: expected %d values, got %d",
			ErrMalformedOutput, VectorLen, len(out))
	}
	if !helper.Finite(out...) {
		return nil, nil, nil, fmt.Errorf("%w: non-finite value", ErrMalformedOutput)
	}
	return out[returnsOffset:logitsOffset], out[logitsOffset:risksOffset], out[risksOffset:], nil
}

// Decode — чистая функция: вектор модели → TradingSignal.
// Детерминирована, без побочных эффектов.
func (d *Decoder) Decode(symbol string, out []float64) (*models.TradingSignal, error) {
	_, logits, risks, err := SplitVector(out)
	if err != nil {
		return nil, err
	}

	sig := &models.TradingSignal{
		Symbol:    symbol,
		CreatedAt: time.Now().UTC(),
	}

	// Пер-таймфреймовые softmax + weighted-direction score.
	score := 0.0
	var counts [classesPerTimeframe]int
	for tf := 0; tf < models.NumTimeframes; tf++ {
		triple := logits[tf*classesPerTimeframe : (tf+1)*classesPerTimeframe]
		probs := softmax(triple)
		cls := argmax(probs)

		sig.Directions[tf] = classDirections[cls]
		sig.Confidences[tf] = probs[cls]
		counts[cls]++
		score += d.weight(tf) * classValues[cls]
	}

	switch {
	case score >= d.cfg.LongThreshold:
		sig.SignalType = models.SignalLong
	case score <= d.cfg.ShortThreshold:
		sig.SignalType = models.SignalShort
	default:
		sig.SignalType = models.SignalNeutral
	}

	// Combined confidence: согласие таймфреймов + "уверенность модели"
	// из риск-канала + обратная средняя риск-метрика.
	majority := 0
	for _, c := range counts {
		if c > majority {
			majority = c
		}
	}
	agreement := float64(majority) / models.NumTimeframes

	modelConf, meanRisk := 0.0, 0.0
	for _, r := range risks {
		r = helper.Clamp01(r)
		modelConf += d.transform(r)
		meanRisk += r
	}
	modelConf /= float64(len(risks))
	meanRisk /= float64(len(risks))

	sig.CombinedConfidence = helper.Clamp01(
		d.cfg.AgreementWeight*agreement +
			d.cfg.ModelWeight*helper.Clamp01(modelConf) +
			d.cfg.RiskWeight*(1-meanRisk),
	)

	if sig.CombinedConfidence < d.cfg.MinConfidence {
		sig.SignalType = models.SignalNeutral
		sig.CombinedConfidence = 0
	}

	return sig, nil
}

func (d *Decoder) weight(tf int) float64 {
	if tf < len(d.cfg.TimeframeWeights) {
		return d.cfg.TimeframeWeights[tf]
	}
	return 0
}
