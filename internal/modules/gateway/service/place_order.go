package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"

	"trade_core/internal/modules/gateway"
)

// PlaceOrder ставит market-ордер или conditional (SL/TP) алго-ордер.
// Возвращает ordId либо algoId.
func (c *Client) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (string, error) {
	if req.Size <= 0 {
		return "", fmt.Errorf("PlaceOrder: size <= 0")
	}
	if req.Side != "buy" && req.Side != "sell" {
		return "", fmt.Errorf("PlaceOrder: unsupported side=%q", req.Side)
	}

	body := map[string]string{
		"instId":  req.Symbol,
		"tdMode":  "cross",
		"side":    req.Side,
		"posSide": string(req.PosSide),
		"ordType": req.OrdType,
		"sz":      formatSize(req.Size),
	}
	if req.ReduceOnly {
		body["reduceOnly"] = "true"
	}

	requestPath := "/api/v5/trade/order"
	switch req.OrdType {
	case gateway.OrdTypeMarket:
		if req.Price > 0 {
			body["ordType"] = "limit"
			body["px"] = formatPrice(req.Price)
		}
	case gateway.OrdTypeConditional:
		if req.TriggerPrice <= 0 {
			return "", fmt.Errorf("PlaceOrder: triggerPx <= 0")
		}
		requestPath = "/api/v5/trade/order-algo"
		triggerBy := req.TriggerBy
		if triggerBy == "" {
			triggerBy = "last"
		}
		if req.TakeProfit {
			body["tpTriggerPx"] = formatPrice(req.TriggerPrice)
			body["tpOrdPx"] = "-1"
			body["tpTriggerPxType"] = triggerBy
		} else {
			body["slTriggerPx"] = formatPrice(req.TriggerPrice)
			body["slOrdPx"] = "-1"
			body["slTriggerPxType"] = triggerBy
		}
	default:
		return "", fmt.Errorf("PlaceOrder: unsupported ordType=%q", req.OrdType)
	}

	payload, err := sonic.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("PlaceOrder marshal: %w", err)
	}

	var r struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			OrdId  string `json:"ordId"`
			AlgoId string `json:"algoId"`
			SCode  string `json:"sCode"`
			SMsg   string `json:"sMsg"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, requestPath, payload, &r); err != nil {
		return "", fmt.Errorf("PlaceOrder: %w", err)
	}

	// детальный статус
	if len(r.Data) > 0 && r.Data[0].SCode != "0" {
		return "", &gateway.APIError{Code: r.Data[0].SCode, Msg: r.Data[0].SMsg}
	}
	// общий код
	if r.Code != "0" {
		return "", &gateway.APIError{Code: r.Code, Msg: r.Msg}
	}
	if len(r.Data) == 0 {
		return "", fmt.Errorf("PlaceOrder: empty response data")
	}

	id := r.Data[0].OrdId
	if id == "" {
		id = r.Data[0].AlgoId
	}
	if id == "" {
		return "", fmt.Errorf("PlaceOrder: empty order id")
	}
	return id, nil
}
