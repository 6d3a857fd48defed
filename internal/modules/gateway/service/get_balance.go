package service

import (
	"context"
	"fmt"
	"net/http"

	"trade_core/internal/modules/gateway"
)

// Balance — USDT equity аккаунта.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	var r struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			Details []struct {
				Ccy   string `json:"ccy"`
				Eq    string `json:"eq"`
				CashBal string `json:"cashBal"`
			} `json:"details"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v5/account/balance?ccy=USDT", nil, &r); err != nil {
		return 0, fmt.Errorf("Balance: %w", err)
	}
	if r.Code != "0" {
		return 0, &gateway.APIError{Code: r.Code, Msg: r.Msg}
	}

	for _, d := range r.Data {
		for _, det := range d.Details {
			if det.Ccy != "USDT" {
				continue
			}
			eq := parseF(det.Eq)
			if eq == 0 {
				eq = parseF(det.CashBal)
			}
			return eq, nil
		}
	}
	return 0, fmt.Errorf("Balance: no USDT detail in response")
}
