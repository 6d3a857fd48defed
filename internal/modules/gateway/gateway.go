package gateway

import (
	"context"

	"trade_core/internal/models"
)

// OrderGateway — абстракция над биржей для защитных ордеров и входов.
// Реализация обязана быть идемпотентной при ретраях (ответственность
// биржевого клиента, не ядра).
type OrderGateway interface {
	// PlaceOrder ставит ордер и возвращает его биржевой id
	// (ordId для market, algoId для conditional).
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	OrderStatus(ctx context.Context, symbol, orderID string) (models.OrderStatus, error)
	// Position — как биржа видит позицию; nil = flat.
	Position(ctx context.Context, symbol string) (*models.ExchangePosition, error)
	InstrumentMeta(ctx context.Context, symbol string) (models.InstrumentMeta, error)
	// Balance — USDT equity.
	Balance(ctx context.Context) (float64, error)
}

const (
	OrdTypeMarket      = "market"
	OrdTypeConditional = "conditional"
)

type OrderRequest struct {
	Symbol       string
	Side         string // "buy" / "sell"
	PosSide      models.PositionSide
	OrdType      string // market | conditional
	Size         float64
	Price        float64 // 0 — исполнение по рынку
	TriggerPrice float64 // для conditional
	TriggerBy    string  // last | mark | index
	TakeProfit   bool    // conditional: TP-нога вместо SL
	ReduceOnly   bool
}

// EntrySide — сторона открывающего ордера.
func EntrySide(ps models.PositionSide) string {
	if ps == models.SideShort {
		return "sell"
	}
	return "buy"
}

// CloseSide — сторона закрывающего/защитного ордера.
func CloseSide(ps models.PositionSide) string {
	if ps == models.SideShort {
		return "buy"
	}
	return "sell"
}
