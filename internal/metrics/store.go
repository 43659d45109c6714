// Package metrics implements the embedded time-series store of §4.6: a
// single SQLite file opened in WAL mode, fed by both daemons every
// cycle, with scheduled retention and time-thresholded downsampling.
// mattn/go-sqlite3 is grounded on leptonai-gpud's go.mod in the example
// pack — the teacher repo and galpt-cake-stats carry no persistent
// store of their own, so this package has no direct teacher file to
// adapt from and is built from the spec's schema directly, in the
// teacher's "small struct + plain SQL, no ORM" register.
package metrics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Granularity is one of the four retention tiers a sample can live at.
type Granularity string

const (
	Raw  Granularity = "raw"
	Min1 Granularity = "1m"
	Min5 Granularity = "5m"
	Hour1 Granularity = "1h"
)

// Sample is one row of the metrics table (§3.3).
type Sample struct {
	TimestampSeconds int64
	WANName          string
	MetricName       string
	Value            float64
	Labels           map[string]string
	Granularity      Granularity
}

const schema = `
CREATE TABLE IF NOT EXISTS metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp_seconds INTEGER NOT NULL,
	wan_name TEXT NOT NULL,
	metric_name TEXT NOT NULL,
	value REAL NOT NULL,
	labels TEXT,
	granularity TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_ts ON metrics(timestamp_seconds);
CREATE INDEX IF NOT EXISTS idx_metrics_wan_metric_ts ON metrics(wan_name, metric_name, timestamp_seconds);
CREATE INDEX IF NOT EXISTS idx_metrics_gran_ts ON metrics(granularity, timestamp_seconds);
`

// stateMetrics are downsampled by mode (most frequent value) rather than
// average — §9 open question, pinned here per the spec's explicit call-out.
var stateMetrics = map[string]bool{
	"wanctl_state":             true,
	"wanctl_steering_enabled": true,
}

// Store is a process-singleton SQLite-backed writer/reader. Opened once
// per process (§9: "Metrics DB writer: one per process"); WAL mode lets
// the CLI and HTTP history endpoint open their own independent read-only
// connections safely.
type Store struct {
	db *sql.DB
}

// Open creates the schema if absent and configures WAL + relaxed sync.
// A missing database file is created, not an error (§4.6: "opened ...
// idempotently on first open").
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("metrics: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // writer singleton; avoid SQLITE_BUSY from concurrent writers in-process
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("metrics: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenReadOnly opens a second connection for the CLI / HTTP history
// reader, independent of the writer singleton (§5: "external readers ...
// use separate read-only connections — WAL mode allows this safely").
func OpenReadOnly(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?mode=ro&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("metrics: open read-only %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection(s).
func (s *Store) Close() error {
	return s.db.Close()
}

// WriteMetric inserts a single raw sample.
func (s *Store) WriteMetric(sample Sample) error {
	return s.WriteMetricsBatch([]Sample{sample})
}

// WriteMetricsBatch inserts all samples in one transaction.
func (s *Store) WriteMetricsBatch(samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("metrics: begin batch write: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO metrics (timestamp_seconds, wan_name, metric_name, value, labels, granularity) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("metrics: prepare batch write: %w", err)
	}
	defer stmt.Close()

	for _, sm := range samples {
		var labels any
		if len(sm.Labels) > 0 {
			b, err := json.Marshal(sm.Labels)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("metrics: marshal labels: %w", err)
			}
			labels = string(b)
		}
		gran := sm.Granularity
		if gran == "" {
			gran = Raw
		}
		if _, err := stmt.Exec(sm.TimestampSeconds, sm.WANName, sm.MetricName, sm.Value, labels, string(gran)); err != nil {
			tx.Rollback()
			return fmt.Errorf("metrics: insert sample: %w", err)
		}
	}
	return tx.Commit()
}

// Retention deletes rows older than retentionDays, in batches, until
// exhausted (§4.6).
func (s *Store) Retention(retentionDays int, now time.Time) (deleted int64, err error) {
	cutoff := now.Add(-time.Duration(retentionDays) * 24 * time.Hour).Unix()
	const batchSize = 10_000
	for {
		res, err := s.db.Exec(`DELETE FROM metrics WHERE id IN (SELECT id FROM metrics WHERE timestamp_seconds < ? LIMIT ?)`, cutoff, batchSize)
		if err != nil {
			return deleted, fmt.Errorf("metrics: retention delete: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
		if n < batchSize {
			return deleted, nil
		}
	}
}
