package service

import (
	"context"
	"errors"

	"trade_core/internal/models"
)

var ErrNotFound = errors.New("ledger: not found")

// Store — персистенция леджера. CreatePosition обязан быть транзакционным:
// позиция и её SLTP-ордер создаются вместе или никак.
type Store interface {
	CreatePosition(ctx context.Context, pos *models.TrackedPosition, order *models.SLTPOrder) error
	GetPosition(ctx context.Context, positionID string) (*models.TrackedPosition, error)
	SavePosition(ctx context.Context, pos *models.TrackedPosition) error
	ListActive(ctx context.Context) ([]*models.TrackedPosition, error)

	GetSLTP(ctx context.Context, tradeID string) (*models.SLTPOrder, error)
	SaveSLTP(ctx context.Context, order *models.SLTPOrder) error

	AppendSnapshot(ctx context.Context, snap *models.MetricsSnapshot) error
	RecentSnapshots(ctx context.Context, positionID string, limit int) ([]models.MetricsSnapshot, error)

	HasUnresolvedAlert(ctx context.Context, positionID string, alertType models.AlertType) (bool, error)
	InsertAlert(ctx context.Context, alert *models.PositionAlert) error
	ResolveAlert(ctx context.Context, positionID string, alertType models.AlertType) error
}
