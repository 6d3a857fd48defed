package models

import "time"

type AlertType string

const (
	AlertInfo     AlertType = "info"
	AlertWarning  AlertType = "warning"
	AlertCritical AlertType = "critical"
)

// PositionAlert — at most one unresolved alert per (position_id, alert_type).
type PositionAlert struct {
	PositionID string
	AlertType  AlertType
	Message    string
	Severity   int // 1..5
	IsResolved bool
	ResolvedAt *time.Time
	CreatedAt  time.Time
}
