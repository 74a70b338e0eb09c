package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertPoolSampleSQL = `INSERT INTO pool_samples (
        run_ts,
        pool_id,
        chain,
        project,
        symbol,
        apy,
        tvl_usd,
        threshold_apy,
        alert_triggered
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (run_ts, pool_id) DO UPDATE
    SET
        chain           = EXCLUDED.chain,
        project         = EXCLUDED.project,
        symbol          = EXCLUDED.symbol,
        apy             = EXCLUDED.apy,
        tvl_usd         = EXCLUDED.tvl_usd,
        threshold_apy   = EXCLUDED.threshold_apy,
        alert_triggered = EXCLUDED.alert_triggered;`

	listSamplesBetweenSQL = `SELECT
        run_ts,
        pool_id,
        chain,
        project,
        symbol,
        apy,
        tvl_usd,
        threshold_apy,
        alert_triggered,
        created_at
    FROM pool_samples
    WHERE run_ts >= $1
      AND run_ts < $2
    ORDER BY run_ts, pool_id;`

	listRecentSamplesSQL = `SELECT
        run_ts,
        pool_id,
        chain,
        project,
        symbol,
        apy,
        tvl_usd,
        threshold_apy,
        alert_triggered,
        created_at
    FROM pool_samples
    ORDER BY run_ts DESC, pool_id
    LIMIT $1;`

	countSamplesSQL = `SELECT COUNT(*) FROM pool_samples;`

	insertAlertSQL = `INSERT INTO alerts (
        run_ts,
        pool_id,
        symbol,
        apy,
        threshold_apy,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (run_ts, pool_id) DO UPDATE
    SET symbol        = EXCLUDED.symbol,
        apy           = EXCLUDED.apy,
        threshold_apy = EXCLUDED.threshold_apy,
        channels      = EXCLUDED.channels
    RETURNING id, run_ts, pool_id, symbol, apy, threshold_apy, channels, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        run_ts,
        pool_id,
        symbol,
        apy,
        threshold_apy,
        channels,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PoolSampleStore defines operations for pool sample persistence.
type PoolSampleStore interface {
	UpsertPoolSample(ctx context.Context, sample PoolSample) error
	ListSamplesBetween(ctx context.Context, from, to time.Time) ([]PoolSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]PoolSample, error)
	CountSamples(ctx context.Context) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to pool samples and alerts.
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

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertPoolSample persists or updates one per-pool observation.
func (s *Store) UpsertPoolSample(ctx context.Context, sample PoolSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertPoolSampleSQL,
		sample.RunTS,
		sample.PoolID,
		sample.Chain,
		sample.Project,
		sample.Symbol,
		sample.APY.String(),
		sample.TVLUSD.String(),
		sample.ThresholdAPY.String(),
		sample.AlertTriggered,
	)
	if execErr != nil {
		return fmt.Errorf("upsert pool sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists samples within a time window.
func (s *Store) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]PoolSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]PoolSample, 0)
	for rows.Next() {
		sample, scanErr := scanPoolSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// ListRecentSamples lists the most recent samples ordered by descending run timestamp.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]PoolSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]PoolSample, 0, limit)
	for rows.Next() {
		sample, scanErr := scanPoolSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// CountSamples counts stored samples.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.RunTS,
		alert.PoolID,
		alert.Symbol,
		alert.APY.String(),
		alert.ThresholdAPY.String(),
		alert.Channels,
	)

	rec, scanErr := scanAlert(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func scanPoolSample(rows pgx.Rows) (PoolSample, error) {
	var (
		sample       PoolSample
		apyStr       string
		tvlStr       string
		thresholdStr string
	)

	if err := rows.Scan(
		&sample.RunTS,
		&sample.PoolID,
		&sample.Chain,
		&sample.Project,
		&sample.Symbol,
		&apyStr,
		&tvlStr,
		&thresholdStr,
		&sample.AlertTriggered,
		&sample.CreatedAt,
	); err != nil {
		return PoolSample{}, err
	}

	var err error
	if sample.APY, err = decimal.NewFromString(apyStr); err != nil {
		return PoolSample{}, fmt.Errorf("parse apy: %w", err)
	}
	if sample.TVLUSD, err = decimal.NewFromString(tvlStr); err != nil {
		return PoolSample{}, fmt.Errorf("parse tvl_usd: %w", err)
	}
	if sample.ThresholdAPY, err = decimal.NewFromString(thresholdStr); err != nil {
		return PoolSample{}, fmt.Errorf("parse threshold_apy: %w", err)
	}

	return sample, nil
}

func scanAlert(row pgx.Row) (AlertRecord, error) {
	var (
		rec          AlertRecord
		apyStr       string
		thresholdStr string
	)

	if err := row.Scan(
		&rec.ID,
		&rec.RunTS,
		&rec.PoolID,
		&rec.Symbol,
		&apyStr,
		&thresholdStr,
		&rec.Channels,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	var err error
	if rec.APY, err = decimal.NewFromString(apyStr); err != nil {
		return AlertRecord{}, fmt.Errorf("parse apy: %w", err)
	}
	if rec.ThresholdAPY, err = decimal.NewFromString(thresholdStr); err != nil {
		return AlertRecord{}, fmt.Errorf("parse threshold apy: %w", err)
	}

	return rec, nil
}
