package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

const (
	insertSpreadSampleSQL = `INSERT INTO spread_samples (
        tick_ts,
        symbol,
        buy_exchange,
        sell_exchange,
        buy_ask,
        sell_bid,
        spread_pct
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    );`

	listSpreadSamplesBetweenSQL = `SELECT
        tick_ts,
        symbol,
        buy_exchange,
        sell_exchange,
        buy_ask,
        sell_bid,
        spread_pct,
        created_at
    FROM spread_samples
    WHERE symbol = $1
      AND tick_ts >= $2
      AND tick_ts < $3
    ORDER BY tick_ts;`

	insertAlertSQL = `INSERT INTO alerts (
        tick_ts,
        symbol,
        buy_exchange,
        sell_exchange,
        spread_pct,
        threshold_pct
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id, tick_ts, symbol, buy_exchange, sell_exchange, spread_pct, threshold_pct, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        tick_ts,
        symbol,
        buy_exchange,
        sell_exchange,
        spread_pct,
        threshold_pct,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	insertExecutionSQL = `INSERT INTO executions (
        attempt_id,
        symbol,
        buy_exchange,
        sell_exchange,
        size,
        buy_price,
        sell_price,
        net_spread_pct,
        state,
        buy_error,
        sell_error,
        started_at,
        completed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
    );`

	listRecentExecutionsSQL = `SELECT
        attempt_id,
        symbol,
        buy_exchange,
        sell_exchange,
        size,
        buy_price,
        sell_price,
        net_spread_pct,
        state,
        buy_error,
        sell_error,
        started_at,
        completed_at
    FROM executions
    ORDER BY completed_at DESC
    LIMIT $1;`
)

// SpreadSampleStore defines operations for spread sample persistence.
type SpreadSampleStore interface {
	InsertSpreadSample(ctx context.Context, sample SpreadSample) error
	ListSpreadSamplesBetween(ctx context.Context, symbol string, from, to time.Time) ([]SpreadSample, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// ExecutionStore defines operations for execution auditing.
type ExecutionStore interface {
	InsertExecution(ctx context.Context, record ExecutionRecord) error
	ListRecentExecutions(ctx context.Context, limit int) ([]ExecutionRecord, error)
}

// Store aggregates access to spread samples, alerts, and executions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertSpreadSample persists one observed spread.
func (s *Store) InsertSpreadSample(ctx context.Context, sample SpreadSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, insertSpreadSampleSQL,
		sample.TickTS,
		sample.Symbol,
		sample.BuyExchange,
		sample.SellExchange,
		sample.BuyAsk,
		sample.SellBid,
		sample.SpreadPct,
	)
	if err != nil {
		return fmt.Errorf("insert spread sample: %w", err)
	}
	return nil
}

// ListSpreadSamplesBetween returns samples for a symbol inside [from, to).
func (s *Store) ListSpreadSamplesBetween(ctx context.Context, symbol string, from, to time.Time) ([]SpreadSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listSpreadSamplesBetweenSQL, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("list spread samples: %w", err)
	}
	defer rows.Close()

	var samples []SpreadSample
	for rows.Next() {
		var sample SpreadSample
		if err := rows.Scan(
			&sample.TickTS,
			&sample.Symbol,
			&sample.BuyExchange,
			&sample.SellExchange,
			&sample.BuyAsk,
			&sample.SellBid,
			&sample.SpreadPct,
			&sample.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan spread sample: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// InsertAlert persists an emitted alert and returns the stored row.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.TickTS,
		alert.Symbol,
		alert.BuyExchange,
		alert.SellExchange,
		alert.SpreadPct,
		alert.ThresholdPct,
	)

	var stored AlertRecord
	if err := row.Scan(
		&stored.ID,
		&stored.TickTS,
		&stored.Symbol,
		&stored.BuyExchange,
		&stored.SellExchange,
		&stored.SpreadPct,
		&stored.ThresholdPct,
		&stored.CreatedAt,
	); err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	return stored, nil
}

// ListRecentAlerts returns the newest alert rows.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listRecentAlertsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []AlertRecord
	for rows.Next() {
		var alert AlertRecord
		if err := rows.Scan(
			&alert.ID,
			&alert.TickTS,
			&alert.Symbol,
			&alert.BuyExchange,
			&alert.SellExchange,
			&alert.SpreadPct,
			&alert.ThresholdPct,
			&alert.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// DeleteAlertsBefore prunes old audit rows.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); err != nil {
		return fmt.Errorf("delete alerts: %w", err)
	}
	return nil
}

// InsertExecution persists a terminal execution outcome.
func (s *Store) InsertExecution(ctx context.Context, record ExecutionRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, insertExecutionSQL,
		record.AttemptID,
		record.Symbol,
		record.BuyExchange,
		record.SellExchange,
		record.Size,
		record.BuyPrice,
		record.SellPrice,
		record.NetSpreadPct,
		record.State,
		record.BuyError,
		record.SellError,
		record.StartedAt,
		record.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// ListRecentExecutions returns the newest execution rows.
func (s *Store) ListRecentExecutions(ctx context.Context, limit int) ([]ExecutionRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listRecentExecutionsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var records []ExecutionRecord
	for rows.Next() {
		var record ExecutionRecord
		if err := rows.Scan(
			&record.AttemptID,
			&record.Symbol,
			&record.BuyExchange,
			&record.SellExchange,
			&record.Size,
			&record.BuyPrice,
			&record.SellPrice,
			&record.NetSpreadPct,
			&record.State,
			&record.BuyError,
			&record.SellError,
			&record.StartedAt,
			&record.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

var (
	_ SpreadSampleStore = (*Store)(nil)
	_ AlertStore        = (*Store)(nil)
	_ ExecutionStore    = (*Store)(nil)
)
