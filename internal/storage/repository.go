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
	// ErrNotFound indicates a lookup matched no rows.
	ErrNotFound = errors.New("storage: not found")
)

const readingColumns = `id,
        reading_ts,
        event_id,
        lat,
        long,
        sensor_name,
        sensor_reading,
        recent_average,
        sensor_type,
        created_at`

const (
	insertReadingSQL = `INSERT INTO readings (
        reading_ts,
        event_id,
        lat,
        long,
        sensor_name,
        sensor_reading,
        recent_average,
        sensor_type
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING id;`

	latestReadingByTypeSQL = `SELECT ` + readingColumns + `
    FROM readings
    WHERE sensor_type = $1
    ORDER BY reading_ts DESC, id DESC
    LIMIT 1;`

	listRecentReadingsSQL = `SELECT ` + readingColumns + `
    FROM readings
    ORDER BY reading_ts DESC, id DESC
    LIMIT $1;`

	listReadingsBetweenSQL = `SELECT ` + readingColumns + `
    FROM readings
    WHERE reading_ts >= $1
      AND reading_ts < $2
      AND ($3 = '' OR sensor_name = $3)
    ORDER BY reading_ts, id;`

	insertAlertSQL = `INSERT INTO alerts (
        batch_id,
        event_id,
        sensor_name,
        sensor_type,
        classification,
        sensor_reading,
        recent_average,
        dispatched
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    );`

	listRecentAlertsSQL = `SELECT
        id,
        batch_id,
        event_id,
        sensor_name,
        sensor_type,
        classification,
        sensor_reading,
        recent_average,
        dispatched,
        created_at
    FROM alerts
    ORDER BY created_at DESC, id DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ReadingStore defines durable reading persistence.
type ReadingStore interface {
	InsertReading(ctx context.Context, rec ReadingRecord) (int64, error)
	LatestReadingByType(ctx context.Context, sensorType string) (ReadingRecord, error)
	ListRecentReadings(ctx context.Context, limit int) ([]ReadingRecord, error)
	ListReadingsBetween(ctx context.Context, sensorName string, from, to time.Time) ([]ReadingRecord, error)
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

// Store aggregates access to readings and alerts.
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

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
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
		// best effort; the session lock is dropped with the connection anyway
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

// InsertReading persists a reading durably and returns its id.
func (s *Store) InsertReading(ctx context.Context, rec ReadingRecord) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var id int64
	row := pool.QueryRow(ctx, insertReadingSQL,
		rec.Timestamp,
		rec.EventID,
		decimal.NewFromFloat(rec.Lat).String(),
		decimal.NewFromFloat(rec.Long).String(),
		rec.SensorName,
		decimal.NewFromFloat(rec.SensorReading).String(),
		decimal.NewFromFloat(rec.RecentAverage).String(),
		rec.SensorType,
	)
	if scanErr := row.Scan(&id); scanErr != nil {
		return 0, fmt.Errorf("insert reading: %w", scanErr)
	}
	return id, nil
}

// LatestReadingByType returns the newest reading of the given sensor type.
func (s *Store) LatestReadingByType(ctx context.Context, sensorType string) (ReadingRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return ReadingRecord{}, err
	}

	rows, queryErr := pool.Query(ctx, latestReadingByTypeSQL, sensorType)
	if queryErr != nil {
		return ReadingRecord{}, fmt.Errorf("latest reading: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return ReadingRecord{}, rows.Err()
		}
		return ReadingRecord{}, ErrNotFound
	}
	return scanReading(rows)
}

// ListRecentReadings lists the most recent readings, newest first.
func (s *Store) ListRecentReadings(ctx context.Context, limit int) ([]ReadingRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentReadingsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent readings: %w", queryErr)
	}
	defer rows.Close()

	return collectReadings(rows, limit)
}

// ListReadingsBetween lists readings within [from, to), oldest first. An
// empty sensorName matches every sensor.
func (s *Store) ListReadingsBetween(ctx context.Context, sensorName string, from, to time.Time) ([]ReadingRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listReadingsBetweenSQL, from, to, sensorName)
	if queryErr != nil {
		return nil, fmt.Errorf("list readings between: %w", queryErr)
	}
	defer rows.Close()

	return collectReadings(rows, 0)
}

// InsertAlerts persists every alert of a batch in one round trip.
func (s *Store) InsertAlerts(ctx context.Context, alerts []AlertRecord) error {
	if len(alerts) == 0 {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, a := range alerts {
		batch.Queue(insertAlertSQL,
			a.BatchID,
			a.EventID,
			a.SensorName,
			a.SensorType,
			a.Classification,
			a.SensorReading.String(),
			a.RecentAverage.String(),
			a.Dispatched,
		)
	}

	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert alerts: %w", err)
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
		var readingStr, averageStr string
		if err := rows.Scan(
			&rec.ID,
			&rec.BatchID,
			&rec.EventID,
			&rec.SensorName,
			&rec.SensorType,
			&rec.Classification,
			&readingStr,
			&averageStr,
			&rec.Dispatched,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		rec.SensorReading, convErr = decimal.NewFromString(readingStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse sensor reading: %w", convErr)
		}
		rec.RecentAverage, convErr = decimal.NewFromString(averageStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse recent average: %w", convErr)
		}

		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts and reports how many went.
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

func collectReadings(rows pgx.Rows, capacity int) ([]ReadingRecord, error) {
	readings := make([]ReadingRecord, 0, capacity)
	for rows.Next() {
		rec, scanErr := scanReading(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		readings = append(readings, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return readings, nil
}

func scanReading(rows pgx.Rows) (ReadingRecord, error) {
	var (
		rec        ReadingRecord
		latStr     string
		longStr    string
		readingStr string
		averageStr string
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.Timestamp,
		&rec.EventID,
		&latStr,
		&longStr,
		&rec.SensorName,
		&readingStr,
		&averageStr,
		&rec.SensorType,
		&rec.CreatedAt,
	); err != nil {
		return ReadingRecord{}, err
	}

	values := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"lat", latStr, &rec.Lat},
		{"long", longStr, &rec.Long},
		{"sensor reading", readingStr, &rec.SensorReading},
		{"recent average", averageStr, &rec.RecentAverage},
	}
	for _, v := range values {
		d, err := decimal.NewFromString(v.raw)
		if err != nil {
			return ReadingRecord{}, fmt.Errorf("parse %s: %w", v.name, err)
		}
		*v.dst = d.InexactFloat64()
	}

	return rec, nil
}
