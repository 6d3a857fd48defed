package models

import "time"

type PositionStatus string

const (
	PositionActive PositionStatus = "ACTIVE"
	PositionClosed PositionStatus = "CLOSED"
	PositionError  PositionStatus = "ERROR"
)

type HealthStatus string

const (
	HealthUnknown  HealthStatus = "UNKNOWN"
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthWarning  HealthStatus = "WARNING"
	HealthCritical HealthStatus = "CRITICAL"
)

type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// TrackedPosition — authoritative local view of one open position.
// Mutated only through the ledger; position_id is unique.
type TrackedPosition struct {
	PositionID    string
	Symbol        string
	Side          PositionSide
	Size          float64
	EntryPrice    float64
	CurrentPrice  float64
	StopLoss      float64
	TakeProfit    float64
	Exchange      string
	Status        PositionStatus
	Health        HealthStatus
	UnrealizedPnl float64
	RealizedPnl   float64
	ROIPercent    float64
	HoldTime      time.Duration
	MaxProfit     float64 // running max of observed unrealized pnl
	MaxDrawdown   float64 // running min
	HealthScore   float64 // [0,1]
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PnlAt — unrealized pnl для произвольной цены, без мутации.
func (p *TrackedPosition) PnlAt(px float64) float64 {
	if p.Side == SideShort {
		return (p.EntryPrice - px) * p.Size
	}
	return (px - p.EntryPrice) * p.Size
}

// ApplyPrice rolls current price, pnl, roi and the running max/min for a
// fresh mark price.
func (p *TrackedPosition) ApplyPrice(px float64, now time.Time) {
	if px <= 0 {
		return
	}
	p.CurrentPrice = px
	p.UnrealizedPnl = p.PnlAt(px)

	if notional := p.EntryPrice * p.Size; notional > 0 {
		p.ROIPercent = p.UnrealizedPnl / notional * 100
	}
	if p.UnrealizedPnl > p.MaxProfit {
		p.MaxProfit = p.UnrealizedPnl
	}
	if p.UnrealizedPnl < p.MaxDrawdown {
		p.MaxDrawdown = p.UnrealizedPnl
	}
	p.HoldTime = now.Sub(p.CreatedAt)
	p.UpdatedAt = now
}

// MetricsSnapshot — append-only, one row per supervisor tick.
type MetricsSnapshot struct {
	PositionID    string
	Timestamp     time.Time
	CurrentPrice  float64
	UnrealizedPnl float64
	ROIPercent    float64
	HealthScore   float64
	Volume24h     float64
	Volatility    float64
}
