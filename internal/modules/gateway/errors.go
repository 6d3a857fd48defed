package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// APIError — ошибка уровня биржевого API (HTTP дошёл, биржа отказала).
type APIError struct {
	Code string // биржевой код, напр. "51008"
	Msg  string
	HTTP int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange api error: code=%s msg=%s http=%d", e.Code, e.Msg, e.HTTP)
}

// Временные отказы OKX: rate limit и внутренние сбои.
// Всё остальное (auth, невалидный ордер, нехватка маржи) — фатально.
var transientCodes = map[string]bool{
	"50011": true, // too many requests
	"50013": true, // system busy
	"50026": true, // system error
	"51054": true, // request timeout, try again
}

func (e *APIError) Transient() bool {
	if e.HTTP == 429 || e.HTTP >= 500 {
		return true
	}
	return transientCodes[e.Code]
}

// IsTransient решает retry-vs-fail-fast: сетевые ошибки и rate limit
// ретраим, отказ биржи по существу — нет.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Transient()
	}
	var ne net.Error
	return errors.As(err, &ne)
}
