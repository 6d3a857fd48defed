package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"trade_core/internal/modules/config"
	"trade_core/internal/modules/gateway"
)

// Client — подписанный REST-клиент OKX, реализует gateway.OrderGateway.
type Client struct {
	http    *http.Client
	log     *zap.Logger
	baseURL string

	apiKey    string
	apiSecret string
	passph    string
}

func NewClient(cfg *config.Config, log *zap.Logger) *Client {
	return &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		log:       log.Named("okx"),
		baseURL:   cfg.Exchange.BaseURL,
		apiKey:    cfg.Exchange.APIKey,
		apiSecret: cfg.Exchange.APISecret,
		passph:    cfg.Exchange.Passphrase,
	}
}

func (c *Client) sign(ts, method, requestPath, body string) string {
	msg := ts + strings.ToUpper(method) + requestPath + body
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(msg))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// do шлёт подписанный запрос и раскладывает ответ в out.
// Не-2xx превращается в *gateway.APIError.
func (c *Client) do(ctx context.Context, method, requestPath string, payload []byte, out any) error {
	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}

	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	req.Header.Set("OK-ACCESS-KEY", c.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", c.sign(ts, method, requestPath, string(payload)))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.passph)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return &gateway.APIError{HTTP: resp.StatusCode, Msg: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode: %w; body=%s", err, string(data))
	}
	return nil
}

func formatSize(v float64) string  { return strconv.FormatFloat(v, 'f', -1, 64) }
func formatPrice(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func parseF(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
