package service

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Run — reconnect-цикл WS-стрима тикеров. Подписки докидываются на лету
// через subCh, keepalive ping каждые 20s — иначе OKX рвёт соединение.
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := c.wsDialer.Dial(c.cfg.Exchange.WSURL, nil)
		if err != nil {
			c.log.Warn("ws dial failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		c.state.SetFeedConnected(true)
		c.runConn(ctx, conn)
		c.state.SetFeedConnected(false)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		time.Sleep(time.Second)
	}
}

func (c *Client) runConn(ctx context.Context, conn *websocket.Conn) {
	var writeMu sync.Mutex
	writeJSON := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	if syms := c.watched(); len(syms) > 0 {
		if err := c.subscribe(writeJSON, syms); err != nil {
			c.log.Warn("ws subscribe failed", zap.Error(err))
			return
		}
	}

	done := make(chan struct{})
	defer close(done)

	// ping + динамические подписки
	go func() {
		t := time.NewTicker(20 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case sym := <-c.subCh:
				if err := c.subscribe(writeJSON, []string{sym}); err != nil {
					c.log.Warn("ws subscribe failed", zap.String("symbol", sym), zap.Error(err))
				}
			case <-t.C:
				_ = writeJSON(map[string]string{"op": "ping"})
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.log.Warn("ws read error", zap.Error(err))
			return
		}

		var frame struct {
			Arg struct {
				Channel string `json:"channel"`
				InstID  string `json:"instId"`
			} `json:"arg"`
			Data []struct {
				Last string `json:"last"`
			} `json:"data"`
		}
		if err := sonic.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame.Arg.Channel != "tickers" || len(frame.Data) == 0 {
			continue
		}
		for _, row := range frame.Data {
			if px, err := strconv.ParseFloat(row.Last, 64); err == nil {
				c.store(frame.Arg.InstID, px)
			}
		}
	}
}

func (c *Client) subscribe(writeJSON func(any) error, syms []string) error {
	args := make([]map[string]string, 0, len(syms))
	for _, s := range syms {
		args = append(args, map[string]string{
			"channel": "tickers",
			"instId":  s,
		})
	}
	return writeJSON(map[string]any{"op": "subscribe", "args": args})
}

func decodeBody(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return sonic.Unmarshal(data, out)
}

func parseF(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
