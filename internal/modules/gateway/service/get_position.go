package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"trade_core/internal/models"
	"trade_core/internal/modules/gateway"
)

// Position — позиция глазами биржи; nil без ошибки = flat.
func (c *Client) Position(ctx context.Context, symbol string) (*models.ExchangePosition, error) {
	requestPath := "/api/v5/account/positions?instId=" + url.QueryEscape(symbol)

	var r struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			InstId  string `json:"instId"`
			PosSide string `json:"posSide"`
			Pos     string `json:"pos"`
			AvgPx   string `json:"avgPx"`
			MarkPx  string `json:"markPx"`
			Last    string `json:"last"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, requestPath, nil, &r); err != nil {
		return nil, fmt.Errorf("Position: %w", err)
	}
	if r.Code != "0" {
		return nil, &gateway.APIError{Code: r.Code, Msg: r.Msg}
	}

	for _, d := range r.Data {
		size := parseF(d.Pos)
		if size == 0 {
			continue
		}
		side := models.SideLong
		if d.PosSide == "short" || size < 0 {
			side = models.SideShort
		}
		if size < 0 {
			size = -size
		}
		mark := parseF(d.MarkPx)
		if mark == 0 {
			mark = parseF(d.Last)
		}
		return &models.ExchangePosition{
			Symbol:     d.InstId,
			Side:       side,
			Size:       size,
			EntryPrice: parseF(d.AvgPx),
			MarkPrice:  mark,
		}, nil
	}
	return nil, nil
}
