package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"cryptalert/internal/market"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

//go:embed schema.sql
var schemaSQL string

const (
	insertQuoteSampleSQL = `INSERT INTO quote_samples (
        fetched_at,
        asset,
        buy,
        sell,
        change_percent,
        day_high,
        rising
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (fetched_at, asset) DO NOTHING;`

	listQuotesBetweenSQL = `SELECT
        fetched_at,
        asset,
        buy,
        sell,
        change_percent,
        day_high,
        rising,
        created_at
    FROM quote_samples
    WHERE asset = $1
      AND fetched_at >= $2
      AND fetched_at < $3
    ORDER BY fetched_at;`

	listRecentQuotesSQL = `SELECT
        fetched_at,
        asset,
        buy,
        sell,
        change_percent,
        day_high,
        rising,
        created_at
    FROM quote_samples
    WHERE ($1 = '' OR asset = $1)
    ORDER BY fetched_at DESC, asset
    LIMIT $2;`

	countQuotesSQL = `SELECT COUNT(*) FROM quote_samples;`

	deleteQuotesBeforeSQL = `DELETE FROM quote_samples WHERE fetched_at < $1;`

	insertAlertSQL = `INSERT INTO alerts (
        batch_id,
        asset,
        window_name,
        change_percent,
        threshold_pct,
        message
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    );`

	listRecentAlertsSQL = `SELECT
        id,
        batch_id::text,
        asset,
        window_name,
        change_percent,
        threshold_pct,
        message,
        created_at
    FROM alerts
    ORDER BY created_at DESC, id DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// QuoteArchive defines operations for archived quotes.
type QuoteArchive interface {
	RecordSnapshot(ctx context.Context, snap *market.Snapshot) error
	ListQuotesBetween(ctx context.Context, asset string, from, to time.Time) ([]QuoteSample, error)
	ListRecentQuotes(ctx context.Context, asset string, limit int) ([]QuoteSample, error)
	CountQuotes(ctx context.Context) (int64, error)
	DeleteQuotesBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlerts(ctx context.Context, alerts []AlertRecord) error
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to archived quotes and alerts.
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

// EnsureSchema creates the archive tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
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
		// A failed unlock is released with the session when the connection closes.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
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

// RecordSnapshot archives every asset of the snapshot plus the market trend in one batch.
func (s *Store) RecordSnapshot(ctx context.Context, snap *market.Snapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	samples := SamplesFromSnapshot(snap)
	if len(samples) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, sample := range samples {
		batch.Queue(insertQuoteSampleSQL, quoteSampleArgs(sample)...)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for _, sample := range samples {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert quote sample %s: %w", sample.Asset, err)
		}
	}
	return nil
}

func quoteSampleArgs(sample QuoteSample) []any {
	var rising any
	if sample.Rising != nil {
		rising = *sample.Rising
	}
	return []any{
		sample.FetchedAt,
		sample.Asset,
		nullableDecimal(sample.Buy),
		nullableDecimal(sample.Sell),
		sample.ChangePercent.String(),
		nullableDecimal(sample.DayHigh),
		rising,
	}
}

func nullableDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

// ListQuotesBetween lists one asset's samples within a time window in ascending order.
func (s *Store) ListQuotesBetween(ctx context.Context, asset string, from, to time.Time) ([]QuoteSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listQuotesBetweenSQL, asset, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list quotes between: %w", queryErr)
	}
	defer rows.Close()

	return collectQuoteSamples(rows, 0)
}

// ListRecentQuotes lists the most recent samples, optionally for one asset.
func (s *Store) ListRecentQuotes(ctx context.Context, asset string, limit int) ([]QuoteSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentQuotesSQL, asset, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent quotes: %w", queryErr)
	}
	defer rows.Close()

	return collectQuoteSamples(rows, limit)
}

func collectQuoteSamples(rows pgx.Rows, capacity int) ([]QuoteSample, error) {
	samples := make([]QuoteSample, 0, capacity)
	for rows.Next() {
		sample, scanErr := scanQuoteSample(rows)
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

// CountQuotes counts archived samples.
func (s *Store) CountQuotes(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countQuotesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count quotes: %w", scanErr)
	}
	return count, nil
}

// DeleteQuotesBefore removes archived samples older than the cutoff.
func (s *Store) DeleteQuotesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteQuotesBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete quotes before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// InsertAlerts persists one tick's triggered comparisons.
func (s *Store) InsertAlerts(ctx context.Context, alerts []AlertRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, alert := range alerts {
		batch.Queue(insertAlertSQL,
			alert.BatchID.String(),
			alert.Asset,
			alert.Window,
			alert.ChangePercent.String(),
			alert.ThresholdPct.String(),
			alert.Message,
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for _, alert := range alerts {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert alert %s/%s: %w", alert.Asset, alert.Window, err)
		}
	}
	return nil
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
		var rec AlertRecord
		var batchStr, changeStr, thresholdStr string
		if err := rows.Scan(
			&rec.ID,
			&batchStr,
			&rec.Asset,
			&rec.Window,
			&changeStr,
			&thresholdStr,
			&rec.Message,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		if rec.BatchID, convErr = uuid.Parse(batchStr); convErr != nil {
			return nil, fmt.Errorf("parse batch id: %w", convErr)
		}
		if rec.ChangePercent, convErr = decimal.NewFromString(changeStr); convErr != nil {
			return nil, fmt.Errorf("parse change pct: %w", convErr)
		}
		if rec.ThresholdPct, convErr = decimal.NewFromString(thresholdStr); convErr != nil {
			return nil, fmt.Errorf("parse threshold pct: %w", convErr)
		}

		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete alerts before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// Prune applies the retention window to both tables.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (quotes, alerts int64, err error) {
	if quotes, err = s.DeleteQuotesBefore(ctx, olderThan); err != nil {
		return 0, 0, err
	}
	if alerts, err = s.DeleteAlertsBefore(ctx, olderThan); err != nil {
		return quotes, 0, err
	}
	return quotes, alerts, nil
}

func scanQuoteSample(rows pgx.Rows) (QuoteSample, error) {
	var (
		fetchedAt time.Time
		asset     string
		buyStr    sql.NullString
		sellStr   sql.NullString
		changeStr string
		highStr   sql.NullString
		rising    sql.NullBool
		createdAt time.Time
	)

	if err := rows.Scan(
		&fetchedAt,
		&asset,
		&buyStr,
		&sellStr,
		&changeStr,
		&highStr,
		&rising,
		&createdAt,
	); err != nil {
		return QuoteSample{}, err
	}

	change, err := decimal.NewFromString(changeStr)
	if err != nil {
		return QuoteSample{}, fmt.Errorf("parse change pct: %w", err)
	}
	buy, err := parseNullDecimal(buyStr)
	if err != nil {
		return QuoteSample{}, fmt.Errorf("parse buy: %w", err)
	}
	sell, err := parseNullDecimal(sellStr)
	if err != nil {
		return QuoteSample{}, fmt.Errorf("parse sell: %w", err)
	}
	high, err := parseNullDecimal(highStr)
	if err != nil {
		return QuoteSample{}, fmt.Errorf("parse day high: %w", err)
	}

	sample := QuoteSample{
		FetchedAt:     fetchedAt,
		Asset:         asset,
		Buy:           buy,
		Sell:          sell,
		ChangePercent: change,
		DayHigh:       high,
		CreatedAt:     createdAt,
	}
	if rising.Valid {
		value := rising.Bool
		sample.Rising = &value
	}
	return sample, nil
}

func parseNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

var (
	_ QuoteArchive   = (*Store)(nil)
	_ AlertStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
