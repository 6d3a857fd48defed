package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"

	"trade_core/internal/modules/gateway"
)

// CancelOrder снимает conditional алго-ордер.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if orderID == "" {
		return fmt.Errorf("CancelOrder: empty orderID")
	}

	body := []map[string]string{{"instId": symbol, "algoId": orderID}}
	payload, _ := sonic.Marshal(body)

	var r struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			AlgoId string `json:"algoId"`
			SCode  string `json:"sCode"`
			SMsg   string `json:"sMsg"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v5/trade/cancel-algos", payload, &r); err != nil {
		return fmt.Errorf("CancelOrder: %w", err)
	}

	if r.Code != "0" {
		return &gateway.APIError{Code: r.Code, Msg: r.Msg}
	}
	if len(r.Data) == 0 || r.Data[0].SCode != "0" {
		sCode, sMsg := "", "empty data"
		if len(r.Data) > 0 {
			sCode, sMsg = r.Data[0].SCode, r.Data[0].SMsg
		}
		return &gateway.APIError{Code: sCode, Msg: sMsg}
	}
	return nil
}
