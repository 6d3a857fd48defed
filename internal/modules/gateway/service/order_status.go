package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"trade_core/internal/models"
	"trade_core/internal/modules/gateway"
)

// OrderStatus — текущее состояние алго-ордера, как его видит биржа.
func (c *Client) OrderStatus(ctx context.Context, symbol, orderID string) (models.OrderStatus, error) {
	if orderID == "" {
		return models.OrderUnknown, fmt.Errorf("OrderStatus: empty orderID")
	}

	requestPath := "/api/v5/trade/order-algo?algoId=" + url.QueryEscape(orderID)

	var r struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			AlgoId string `json:"algoId"`
			InstId string `json:"instId"`
			State  string `json:"state"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, requestPath, nil, &r); err != nil {
		return models.OrderUnknown, fmt.Errorf("OrderStatus: %w", err)
	}
	if r.Code != "0" {
		// 51603 — ордера нет (уже снят/исполнен и ушёл из выдачи)
		if r.Code == "51603" {
			return models.OrderCanceled, nil
		}
		return models.OrderUnknown, &gateway.APIError{Code: r.Code, Msg: r.Msg}
	}
	if len(r.Data) == 0 {
		return models.OrderCanceled, nil
	}

	switch st := r.Data[0].State; st {
	case "live", "effective", "canceled", "order_failed":
		return models.OrderStatus(st), nil
	case "partially_effective":
		return models.OrderEffective, nil
	default:
		return models.OrderUnknown, nil
	}
}
