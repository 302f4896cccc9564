// Package storage archives readings in SQLite and serves them back to the
// readings API and the sync loop.
//
// Each reading is keyed by its timestamp at millisecond precision; inserting
// a second reading for the same instant is ignored. The archive is bounded:
// Rotate keeps only the newest maxReadings rows.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/comfortdash/internal/models"
	"github.com/rewired-gh/comfortdash/internal/source"
)

// ErrNotFound is returned when no reading exists for a timestamp.
var ErrNotFound = errors.New("reading not found")

const schema = `
CREATE TABLE IF NOT EXISTS readings (
	id             TEXT    PRIMARY KEY,
	ts             INTEGER NOT NULL UNIQUE,
	temperature    REAL    NOT NULL,
	humidity       REAL    NOT NULL,
	comfort_index  REAL,
	forecast_index REAL,
	kind           TEXT    NOT NULL DEFAULT 'history',
	created_at     INTEGER NOT NULL
);`

const insertSQL = `INSERT OR IGNORE INTO readings
	(id, ts, temperature, humidity, comfort_index, forecast_index, kind, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

const selectLatestSQL = `SELECT id, ts, temperature, humidity, comfort_index, forecast_index, kind
	FROM readings ORDER BY ts DESC LIMIT ?`

// Storage is a SQLite-backed reading archive. It is safe for concurrent use.
type Storage struct {
	db          *sql.DB
	maxReadings int
}

// New opens (or creates) the archive at dbPath. ":memory:" gives a private
// in-memory database.
func New(maxReadings int, dbPath string) (*Storage, error) {
	dsn, err := buildDSN(dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Storage{db: db, maxReadings: maxReadings}, nil
}

func buildDSN(path string) (string, error) {
	if path == "" || path == ":memory:" {
		return ":memory:", nil
	}
	if strings.HasPrefix(path, "file:") {
		return path, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
}

// Close closes the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// AddReading stores r. It reports false when a reading with the same
// timestamp already exists.
func (s *Storage) AddReading(ctx context.Context, r models.Reading) (bool, error) {
	res, err := s.db.ExecContext(ctx, insertSQL, insertArgs(r)...)
	if err != nil {
		return false, fmt.Errorf("failed to insert reading: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert reading: %w", err)
	}
	return n > 0, nil
}

// AddReadings stores readings in one transaction and returns how many were new.
func (s *Storage) AddReadings(ctx context.Context, readings []models.Reading) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range readings {
		res, err := stmt.ExecContext(ctx, insertArgs(r)...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert reading at %s: %w", r.Timestamp.Format(time.RFC3339), err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit readings: %w", err)
	}
	return inserted, nil
}

func insertArgs(r models.Reading) []any {
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	return []any{
		id,
		r.Timestamp.UnixMilli(),
		r.Temperature,
		r.Humidity,
		nullFloat(r.ComfortIndex),
		nullFloat(r.ForecastIndex),
		string(kindOrDefault(r.Kind)),
		time.Now().UnixMilli(),
	}
}

// LatestReadings returns up to n readings, newest first.
func (s *Storage) LatestReadings(ctx context.Context, n int) ([]models.Reading, error) {
	if n <= 0 {
		return []models.Reading{}, nil
	}

	rows, err := s.db.QueryContext(ctx, selectLatestSQL, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	out := make([]models.Reading, 0, n)
	for rows.Next() {
		var (
			r        models.Reading
			ts       int64
			thi      sql.NullFloat64
			forecast sql.NullFloat64
			kind     string
		)
		if err := rows.Scan(&r.ID, &ts, &r.Temperature, &r.Humidity, &thi, &forecast, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.Timestamp = time.UnixMilli(ts).UTC()
		r.ComfortIndex = floatPtr(thi)
		r.ForecastIndex = floatPtr(forecast)
		r.Kind = kindOrDefault(models.Kind(kind))
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of stored readings.
func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count readings: %w", err)
	}
	return n, nil
}

// SetForecast records a precomputed forecast index for the reading at ts.
func (s *Storage) SetForecast(ctx context.Context, ts time.Time, value float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE readings SET forecast_index = ? WHERE ts = ?`, value, ts.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to update forecast: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update forecast: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, ts.UTC().Format(time.RFC3339Nano))
	}
	return nil
}

// Rotate deletes everything but the newest maxReadings readings and returns
// the number removed. A non-positive limit disables rotation.
func (s *Storage) Rotate(ctx context.Context) (int64, error) {
	if s.maxReadings <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM readings WHERE ts NOT IN (SELECT ts FROM readings ORDER BY ts DESC LIMIT ?)`,
		s.maxReadings)
	if err != nil {
		return 0, fmt.Errorf("failed to rotate readings: %w", err)
	}
	return res.RowsAffected()
}

// Source exposes the newest limit readings as a sync collaborator.
func (s *Storage) Source(limit int) source.Fetcher {
	return source.FetcherFunc(func(ctx context.Context) ([]models.RawReading, error) {
		readings, err := s.LatestReadings(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", source.ErrFetchFailure, err)
		}
		raws := make([]models.RawReading, len(readings))
		for i, r := range readings {
			raws[i] = r.Raw()
		}
		return raws, nil
	})
}

func kindOrDefault(k models.Kind) models.Kind {
	if k == "" {
		return models.KindHistory
	}
	return k
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
