package models

import "time"

type SignalType string

const (
	SignalLong    SignalType = "LONG"
	SignalShort   SignalType = "SHORT"
	SignalNeutral SignalType = "NEUTRAL"
)

// NumTimeframes — сколько горизонтов покрывает выход модели.
const NumTimeframes = 4

// Timeframes covered by the model output, nearest horizon first.
var Timeframes = [NumTimeframes]string{"15m", "1h", "4h", "1d"}

// TradingSignal — decoded model output for one symbol. Immutable after decode;
// the entry runner is the only consumer.
type TradingSignal struct {
	Symbol             string
	SignalType         SignalType
	Directions         [NumTimeframes]SignalType
	Confidences        [NumTimeframes]float64
	CombinedConfidence float64
	SuggestedStopPct   float64 // дистанция до SL в процентах от entry
	SuggestedTakePct   float64
	RiskScore          float64
	CreatedAt          time.Time
}

// Inference — raw model output vector, supplied by the external
// inference collaborator.
type Inference struct {
	Symbol string
	Output []float64
}
