package models

type SLTPStatus string

const (
	SLTPPending   SLTPStatus = "PENDING"
	SLTPPlaced    SLTPStatus = "PLACED"
	SLTPTriggered SLTPStatus = "TRIGGERED"
	SLTPCancelled SLTPStatus = "CANCELLED"
	SLTPError     SLTPStatus = "ERROR"
)

// OrderStatus — статус алго-ордера, как его сообщает биржа.
type OrderStatus string

const (
	OrderLive      OrderStatus = "live"
	OrderEffective OrderStatus = "effective"
	OrderCanceled  OrderStatus = "canceled"
	OrderFailed    OrderStatus = "order_failed"
	OrderUnknown   OrderStatus = ""
)

// SLTP maps an exchange-reported order status onto the local state machine.
func (s OrderStatus) SLTP() SLTPStatus {
	switch s {
	case OrderLive:
		return SLTPPlaced
	case OrderEffective:
		return SLTPTriggered
	case OrderCanceled:
		return SLTPCancelled
	case OrderFailed:
		return SLTPError
	}
	return ""
}

// SLTPExtra is persisted as the extra_data jsonb blob.
type SLTPExtra struct {
	TickSize      float64 `json:"tick_size,omitempty"`
	PartialClosed bool    `json:"partial_closed,omitempty"`
}

// SLTPOrder — protective order pair (SL + TP) for one tracked position.
//
// Invariants: while trailing is active TrailingStopPrice only tightens
// (non-decreasing for long, non-increasing for short); IsBreakeven flips
// false→true at most once; Attempts are capped by config.
type SLTPOrder struct {
	TradeID             string // FK → TrackedPosition.PositionID
	Symbol              string
	Side                PositionSide
	StopLossPrice       float64
	TakeProfitPrice     float64
	SLOrderID           string
	TPOrderID           string
	Status              SLTPStatus
	Attempts            int
	TriggerBy           string // "last" / "mark" / "index"
	TrailingStop        bool
	TrailingStopPrice   float64
	ActivationPrice     float64
	Callback            float64 // доля, 0.01 = 1%
	IsBreakeven         bool
	PartialCloseRatio   float64 // 0 = partial close отключён
	PartialCloseTrigger float64 // цена-триггер
	OriginalStopLoss    float64
	OriginalTakeProfit  float64
	ErrorMessage        string
	Extra               SLTPExtra
}
