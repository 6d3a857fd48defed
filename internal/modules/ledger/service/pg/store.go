package pg

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"trade_core/internal/models"
	"trade_core/internal/modules/ledger/service"
	"trade_core/pkg/db"
)

// Store — postgres-реализация леджера. Схема в schema.sql.
type Store struct {
	tm *db.PgTxManager
}

func NewStore(tm *db.PgTxManager) *Store {
	return &Store{tm: tm}
}

const insertPositionSQL = `
INSERT INTO tracked_positions (
    position_id, symbol, side, size, entry_price, current_price,
    stop_loss, take_profit, exchange, status, health,
    unrealized_pnl, realized_pnl, roi_percent, hold_time_minutes,
    max_profit, max_drawdown, health_score, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`

const insertSLTPSQL = `
INSERT INTO sltp_orders (
    trade_id, symbol, side, stop_loss_price, take_profit_price,
    sl_order_id, tp_order_id, status, attempts, trigger_by,
    trailing_stop, trailing_stop_price, trailing_stop_activation_price,
    trailing_callback, is_breakeven, partial_close_ratio, partial_close_trigger,
    original_stop_loss, original_take_profit, error_message, extra_data
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`

func (s *Store) CreatePosition(ctx context.Context, pos *models.TrackedPosition, order *models.SLTPOrder) error {
	extra, err := sonic.Marshal(order.Extra)
	if err != nil {
		return errors.Wrap(err, "marshal extra_data")
	}

	return s.tm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, insertPositionSQL,
			pos.PositionID, pos.Symbol, pos.Side, pos.Size, pos.EntryPrice, pos.CurrentPrice,
			pos.StopLoss, pos.TakeProfit, pos.Exchange, pos.Status, pos.Health,
			pos.UnrealizedPnl, pos.RealizedPnl, pos.ROIPercent, pos.HoldTime.Minutes(),
			pos.MaxProfit, pos.MaxDrawdown, pos.HealthScore, pos.CreatedAt, pos.UpdatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "insert tracked_position")
		}

		_, err = tx.Exec(ctxTx, insertSLTPSQL,
			order.TradeID, order.Symbol, order.Side, order.StopLossPrice, order.TakeProfitPrice,
			order.SLOrderID, order.TPOrderID, order.Status, order.Attempts, order.TriggerBy,
			order.TrailingStop, order.TrailingStopPrice, order.ActivationPrice,
			order.Callback, order.IsBreakeven, order.PartialCloseRatio, order.PartialCloseTrigger,
			order.OriginalStopLoss, order.OriginalTakeProfit, order.ErrorMessage, extra,
		)
		return errors.Wrap(err, "insert sltp_order")
	})
}

const selectPositionSQL = `
SELECT position_id, symbol, side, size, entry_price, current_price,
       stop_loss, take_profit, exchange, status, health,
       unrealized_pnl, realized_pnl, roi_percent, hold_time_minutes,
       max_profit, max_drawdown, health_score, created_at, updated_at
FROM tracked_positions`

func scanPosition(row pgx.Row) (*models.TrackedPosition, error) {
	var p models.TrackedPosition
	var holdMinutes float64
	err := row.Scan(
		&p.PositionID, &p.Symbol, &p.Side, &p.Size, &p.EntryPrice, &p.CurrentPrice,
		&p.StopLoss, &p.TakeProfit, &p.Exchange, &p.Status, &p.Health,
		&p.UnrealizedPnl, &p.RealizedPnl, &p.ROIPercent, &holdMinutes,
		&p.MaxProfit, &p.MaxDrawdown, &p.HealthScore, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.HoldTime = time.Duration(holdMinutes * float64(time.Minute))
	return &p, nil
}

func (s *Store) GetPosition(ctx context.Context, positionID string) (*models.TrackedPosition, error) {
	row := s.tm.Conn().QueryRow(ctx, selectPositionSQL+" WHERE position_id = $1", positionID)
	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(service.ErrNotFound, positionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select tracked_position")
	}
	return p, nil
}

func (s *Store) SavePosition(ctx context.Context, pos *models.TrackedPosition) error {
	_, err := s.tm.Conn().Exec(ctx, `
UPDATE tracked_positions SET
    size=$2, current_price=$3, stop_loss=$4, take_profit=$5, status=$6, health=$7,
    unrealized_pnl=$8, realized_pnl=$9, roi_percent=$10, hold_time_minutes=$11,
    max_profit=$12, max_drawdown=$13, health_score=$14, updated_at=$15
WHERE position_id = $1`,
		pos.PositionID, pos.Size, pos.CurrentPrice, pos.StopLoss, pos.TakeProfit,
		pos.Status, pos.Health, pos.UnrealizedPnl, pos.RealizedPnl, pos.ROIPercent,
		pos.HoldTime.Minutes(), pos.MaxProfit, pos.MaxDrawdown, pos.HealthScore, pos.UpdatedAt,
	)
	return errors.Wrap(err, "update tracked_position")
}

func (s *Store) ListActive(ctx context.Context) ([]*models.TrackedPosition, error) {
	rows, err := s.tm.Conn().Query(ctx, selectPositionSQL+" WHERE status = $1 ORDER BY created_at", models.PositionActive)
	if err != nil {
		return nil, errors.Wrap(err, "select active positions")
	}
	defer rows.Close()

	var out []*models.TrackedPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan tracked_position")
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "iterate positions")
}

const selectSLTPSQL = `
SELECT trade_id, symbol, side, stop_loss_price, take_profit_price,
       sl_order_id, tp_order_id, status, attempts, trigger_by,
       trailing_stop, trailing_stop_price, trailing_stop_activation_price,
       trailing_callback, is_breakeven, partial_close_ratio, partial_close_trigger,
       original_stop_loss, original_take_profit, error_message, extra_data
FROM sltp_orders WHERE trade_id = $1`

func (s *Store) GetSLTP(ctx context.Context, tradeID string) (*models.SLTPOrder, error) {
	var o models.SLTPOrder
	var extra []byte
	err := s.tm.Conn().QueryRow(ctx, selectSLTPSQL, tradeID).Scan(
		&o.TradeID, &o.Symbol, &o.Side, &o.StopLossPrice, &o.TakeProfitPrice,
		&o.SLOrderID, &o.TPOrderID, &o.Status, &o.Attempts, &o.TriggerBy,
		&o.TrailingStop, &o.TrailingStopPrice, &o.ActivationPrice,
		&o.Callback, &o.IsBreakeven, &o.PartialCloseRatio, &o.PartialCloseTrigger,
		&o.OriginalStopLoss, &o.OriginalTakeProfit, &o.ErrorMessage, &extra,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(service.ErrNotFound, tradeID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select sltp_order")
	}
	if len(extra) > 0 {
		if err := sonic.Unmarshal(extra, &o.Extra); err != nil {
			return nil, errors.Wrap(err, "unmarshal extra_data")
		}
	}
	return &o, nil
}

func (s *Store) SaveSLTP(ctx context.Context, order *models.SLTPOrder) error {
	extra, err := sonic.Marshal(order.Extra)
	if err != nil {
		return errors.Wrap(err, "marshal extra_data")
	}

	_, err = s.tm.Conn().Exec(ctx, `
UPDATE sltp_orders SET
    stop_loss_price=$2, take_profit_price=$3, sl_order_id=$4, tp_order_id=$5,
    status=$6, attempts=$7, trailing_stop=$8, trailing_stop_price=$9,
    is_breakeven=$10, error_message=$11, extra_data=$12
WHERE trade_id = $1`,
		order.TradeID, order.StopLossPrice, order.TakeProfitPrice,
		order.SLOrderID, order.TPOrderID, order.Status, order.Attempts,
		order.TrailingStop, order.TrailingStopPrice, order.IsBreakeven,
		order.ErrorMessage, extra,
	)
	return errors.Wrap(err, "update sltp_order")
}

func (s *Store) AppendSnapshot(ctx context.Context, snap *models.MetricsSnapshot) error {
	_, err := s.tm.Conn().Exec(ctx, `
INSERT INTO position_metrics_history (
    position_id, timestamp, current_price, unrealized_pnl,
    roi_percent, health_score, volume_24h, volatility
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		snap.PositionID, snap.Timestamp, snap.CurrentPrice, snap.UnrealizedPnl,
		snap.ROIPercent, snap.HealthScore, snap.Volume24h, snap.Volatility,
	)
	return errors.Wrap(err, "insert snapshot")
}

func (s *Store) RecentSnapshots(ctx context.Context, positionID string, limit int) ([]models.MetricsSnapshot, error) {
	rows, err := s.tm.Conn().Query(ctx, `
SELECT position_id, timestamp, current_price, unrealized_pnl,
       roi_percent, health_score, volume_24h, volatility
FROM position_metrics_history
WHERE position_id = $1
ORDER BY timestamp DESC
LIMIT $2`, positionID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select snapshots")
	}
	defer rows.Close()

	var out []models.MetricsSnapshot
	for rows.Next() {
		var m models.MetricsSnapshot
		err := rows.Scan(
			&m.PositionID, &m.Timestamp, &m.CurrentPrice, &m.UnrealizedPnl,
			&m.ROIPercent, &m.HealthScore, &m.Volume24h, &m.Volatility,
		)
		if err != nil {
			return nil, errors.Wrap(err, "scan snapshot")
		}
		out = append(out, m)
	}

	// самые старые первыми, как ждёт тренд-регрессия
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, errors.Wrap(rows.Err(), "iterate snapshots")
}

func (s *Store) HasUnresolvedAlert(ctx context.Context, positionID string, alertType models.AlertType) (bool, error) {
	var exists bool
	err := s.tm.Conn().QueryRow(ctx, `
SELECT EXISTS (
    SELECT 1 FROM position_alerts
    WHERE position_id = $1 AND alert_type = $2 AND NOT is_resolved
)`, positionID, alertType).Scan(&exists)
	return exists, errors.Wrap(err, "select unresolved alert")
}

func (s *Store) InsertAlert(ctx context.Context, alert *models.PositionAlert) error {
	_, err := s.tm.Conn().Exec(ctx, `
INSERT INTO position_alerts (position_id, alert_type, message, severity, is_resolved, created_at)
VALUES ($1,$2,$3,$4,FALSE,$5)
ON CONFLICT DO NOTHING`,
		alert.PositionID, alert.AlertType, alert.Message, alert.Severity, alert.CreatedAt,
	)
	return errors.Wrap(err, "insert alert")
}

func (s *Store) ResolveAlert(ctx context.Context, positionID string, alertType models.AlertType) error {
	_, err := s.tm.Conn().Exec(ctx, `
UPDATE position_alerts SET is_resolved = TRUE, resolved_at = $3
WHERE position_id = $1 AND alert_type = $2 AND NOT is_resolved`,
		positionID, alertType, time.Now().UTC(),
	)
	return errors.Wrap(err, "resolve alert")
}
