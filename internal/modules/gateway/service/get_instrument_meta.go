package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"trade_core/internal/models"
	"trade_core/internal/modules/gateway"
)

// InstrumentMeta — шаги цены/размера и минимальный размер инструмента.
func (c *Client) InstrumentMeta(ctx context.Context, symbol string) (models.InstrumentMeta, error) {
	requestPath := "/api/v5/public/instruments?instType=SWAP&instId=" + url.QueryEscape(symbol)

	var r struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			InstId string `json:"instId"`
			TickSz string `json:"tickSz"`
			LotSz  string `json:"lotSz"`
			MinSz  string `json:"minSz"`
			CtVal  string `json:"ctVal"`
			State  string `json:"state"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, requestPath, nil, &r); err != nil {
		return models.InstrumentMeta{}, fmt.Errorf("InstrumentMeta: %w", err)
	}
	if r.Code != "0" {
		return models.InstrumentMeta{}, &gateway.APIError{Code: r.Code, Msg: r.Msg}
	}
	if len(r.Data) == 0 {
		return models.InstrumentMeta{}, fmt.Errorf("InstrumentMeta: instrument %s not found", symbol)
	}

	inst := r.Data[0]
	if inst.State != "" && inst.State != "live" {
		return models.InstrumentMeta{}, fmt.Errorf("InstrumentMeta: %s not live: state=%s", symbol, inst.State)
	}

	parsePos := func(name, s string) (float64, error) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("InstrumentMeta: %s parse: %v (%q)", name, err, s)
		}
		return v, nil
	}

	tickSz, err := parsePos("tickSz", inst.TickSz)
	if err != nil {
		return models.InstrumentMeta{}, err
	}
	lotSz, err := parsePos("lotSz", inst.LotSz)
	if err != nil {
		return models.InstrumentMeta{}, err
	}
	minSz, err := parsePos("minSz", inst.MinSz)
	if err != nil {
		return models.InstrumentMeta{}, err
	}
	ctVal := 1.0
	if v, e := strconv.ParseFloat(inst.CtVal, 64); e == nil && v > 0 {
		ctVal = v
	}

	return models.InstrumentMeta{
		Symbol:   inst.InstId,
		TickSize: tickSz,
		LotSize:  lotSz,
		MinSize:  minSz,
		CtVal:    ctVal,
	}, nil
}
