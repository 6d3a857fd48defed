package models

// InstrumentMeta — параметры инструмента, нужные для сайзинга и округления.
type InstrumentMeta struct {
	Symbol   string
	TickSize float64
	LotSize  float64
	MinSize  float64
	CtVal    float64
}

// ExchangePosition — позиция, как её видит биржа (eventually consistent).
type ExchangePosition struct {
	Symbol     string
	Side       PositionSide
	Size       float64
	EntryPrice float64
	MarkPrice  float64
}
