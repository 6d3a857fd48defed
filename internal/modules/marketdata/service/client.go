package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"trade_core/internal/modules/config"
	healthsvc "trade_core/internal/modules/health/service"
)

type lastPx struct {
	px float64
	at time.Time
}

// Client — кэш последних цен поверх WS-стрима тикеров с REST-фоллбеком.
// Цена может отставать максимум на один интервал супервизора.
type Client struct {
	cfg   *config.Config
	log   *zap.Logger
	state *healthsvc.State

	wsDialer *websocket.Dialer
	http     *http.Client

	mu   sync.RWMutex
	last map[string]lastPx

	watchMu sync.Mutex
	watch   map[string]bool
	subCh   chan string
}

func NewClient(cfg *config.Config, log *zap.Logger, state *healthsvc.State) *Client {
	return &Client{
		cfg:      cfg,
		log:      log.Named("marketdata"),
		state:    state,
		wsDialer: &websocket.Dialer{},
		http:     &http.Client{Timeout: 10 * time.Second},
		last:     make(map[string]lastPx),
		watch:    make(map[string]bool),
		subCh:    make(chan string, 64),
	}
}

// Watch добавляет символ в WS-подписку (идемпотентно).
func (c *Client) Watch(symbol string) {
	c.watchMu.Lock()
	seen := c.watch[symbol]
	c.watch[symbol] = true
	c.watchMu.Unlock()
	if seen {
		return
	}
	select {
	case c.subCh <- symbol:
	default:
		// стример подпишет при следующем reconnect
	}
}

func (c *Client) watched() []string {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	out := make([]string, 0, len(c.watch))
	for s := range c.watch {
		out = append(out, s)
	}
	return out
}

func (c *Client) store(symbol string, px float64) {
	if px <= 0 {
		return
	}
	c.mu.Lock()
	c.last[symbol] = lastPx{px: px, at: time.Now()}
	c.mu.Unlock()
}

// Price — последняя цена; свежий кэш из WS, иначе REST.
func (c *Client) Price(ctx context.Context, symbol string) (float64, error) {
	c.Watch(symbol)

	c.mu.RLock()
	e, ok := c.last[symbol]
	c.mu.RUnlock()
	if ok && time.Since(e.at) <= c.cfg.Supervisor.PriceStaleness {
		return e.px, nil
	}

	px, err := c.fetchTicker(ctx, symbol)
	if err != nil {
		if ok {
			// лучше чуть устаревшая цена, чем пропуск тика
			return e.px, nil
		}
		return 0, err
	}
	c.store(symbol, px)
	return px, nil
}

func (c *Client) fetchTicker(ctx context.Context, symbol string) (float64, error) {
	reqURL := c.cfg.Exchange.BaseURL + "/api/v5/market/ticker?instId=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("ticker request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ticker do: %w", err)
	}
	defer resp.Body.Close()

	var r struct {
		Code string `json:"code"`
		Data []struct {
			Last string `json:"last"`
		} `json:"data"`
	}
	if err := decodeBody(resp, &r); err != nil {
		return 0, err
	}
	if r.Code != "0" || len(r.Data) == 0 {
		return 0, fmt.Errorf("ticker %s: empty response (code=%s)", symbol, r.Code)
	}
	px := parseF(r.Data[0].Last)
	if px <= 0 {
		return 0, fmt.Errorf("ticker %s: bad last price %q", symbol, r.Data[0].Last)
	}
	return px, nil
}
