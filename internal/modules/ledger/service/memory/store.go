// Package memory держит стор леджера в памяти: dry-run и тесты,
// семантика та же, что у pg-реализации.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"trade_core/internal/models"
	"trade_core/internal/modules/ledger/service"
)

type Store struct {
	mu        sync.RWMutex
	positions map[string]models.TrackedPosition
	orders    map[string]models.SLTPOrder
	snaps     map[string][]models.MetricsSnapshot
	alerts    []models.PositionAlert
}

func NewStore() *Store {
	return &Store{
		positions: make(map[string]models.TrackedPosition),
		orders:    make(map[string]models.SLTPOrder),
		snaps:     make(map[string][]models.MetricsSnapshot),
	}
}

func (s *Store) CreatePosition(ctx context.Context, pos *models.TrackedPosition, order *models.SLTPOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[pos.PositionID]; ok {
		return fmt.Errorf("position %s already exists", pos.PositionID)
	}
	s.positions[pos.PositionID] = *pos
	s.orders[order.TradeID] = *order
	return nil
}

func (s *Store) GetPosition(ctx context.Context, positionID string) (*models.TrackedPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[positionID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", positionID, service.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) SavePosition(ctx context.Context, pos *models.TrackedPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[pos.PositionID]; !ok {
		return fmt.Errorf("%s: %w", pos.PositionID, service.ErrNotFound)
	}
	s.positions[pos.PositionID] = *pos
	return nil
}

func (s *Store) ListActive(ctx context.Context) ([]*models.TrackedPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.TrackedPosition
	for _, p := range s.positions {
		if p.Status == models.PositionActive {
			cp := p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetSLTP(ctx context.Context, tradeID string) (*models.SLTPOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[tradeID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", tradeID, service.ErrNotFound)
	}
	return &o, nil
}

func (s *Store) SaveSLTP(ctx context.Context, order *models.SLTPOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.TradeID]; !ok {
		return fmt.Errorf("%s: %w", order.TradeID, service.ErrNotFound)
	}
	s.orders[order.TradeID] = *order
	return nil
}

func (s *Store) AppendSnapshot(ctx context.Context, snap *models.MetricsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snaps[snap.PositionID] = append(s.snaps[snap.PositionID], *snap)
	return nil
}

func (s *Store) RecentSnapshots(ctx context.Context, positionID string, limit int) ([]models.MetricsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.snaps[positionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]models.MetricsSnapshot, len(all))
	copy(out, all)
	return out, nil
}

func (s *Store) HasUnresolvedAlert(ctx context.Context, positionID string, alertType models.AlertType) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.alerts {
		if a.PositionID == positionID && a.AlertType == alertType && !a.IsResolved {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) InsertAlert(ctx context.Context, alert *models.PositionAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts = append(s.alerts, *alert)
	return nil
}

func (s *Store) ResolveAlert(ctx context.Context, positionID string, alertType models.AlertType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for i := range s.alerts {
		a := &s.alerts[i]
		if a.PositionID == positionID && a.AlertType == alertType && !a.IsResolved {
			a.IsResolved = true
			a.ResolvedAt = &now
		}
	}
	return nil
}

// Alerts — копия журнала алертов, для ассертов в тестах.
func (s *Store) Alerts() []models.PositionAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PositionAlert, len(s.alerts))
	copy(out, s.alerts)
	return out
}
