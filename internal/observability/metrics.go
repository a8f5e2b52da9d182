// Package observability persists subsystem telemetry (scheduler resource
// samples, pause/emergency events, query timings) to a local SQLite
// database so operators can inspect behavior without an external metrics
// stack.
//
// All persistence is async and non-blocking: the buffer flushes in
// batches, and a full buffer drops datapoints rather than applying
// backpressure to the request path.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const schema = `
CREATE TABLE IF NOT EXISTS metrics (
    metric_id TEXT PRIMARY KEY DEFAULT ('met_' || hex(randomblob(16))),
    metric_name TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    value REAL NOT NULL,
    labels TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_time
    ON metrics(metric_name, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_metrics_timestamp
    ON metrics(timestamp DESC);
`

// Open opens (creating if needed) the telemetry database and applies the
// schema. Use ":memory:" for tests.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise get its own empty db.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply telemetry schema: %w", err)
	}
	return db, nil
}

// Metric is a single timeseries datapoint.
type Metric struct {
	Name      string
	Timestamp time.Time
	Value     float64
	Labels    map[string]string
}

// Manager buffers metrics and flushes them to SQLite in batches.
type Manager struct {
	db            *sql.DB
	bufferSize    int
	flushInterval time.Duration
	mu            sync.Mutex
	buffer        []Metric
	stop          chan struct{}
	done          chan struct{}
}

// NewManager starts a manager flushing on interval or when the buffer
// fills. Zero arguments get defaults (100 datapoints, 5s).
func NewManager(db *sql.DB, bufferSize int, flushInterval time.Duration) *Manager {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	m := &Manager{
		db:            db,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		buffer:        make([]Metric, 0, bufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go m.flushLoop()
	return m
}

// Record satisfies the scheduler's telemetry hook. Non-blocking.
func (m *Manager) Record(name string, value float64) {
	m.RecordLabeled(name, value, nil)
}

// RecordLabeled queues a labeled datapoint for async persistence.
func (m *Manager) RecordLabeled(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = append(m.buffer, Metric{Name: name, Timestamp: time.Now(), Value: value, Labels: labels})
	if len(m.buffer) >= m.bufferSize {
		m.flushLocked()
	}
}

// Query retrieves datapoints for one metric, newest first. A zero since
// means unbounded.
func (m *Manager) Query(name string, since time.Time, limit int) ([]Metric, error) {
	q := "SELECT metric_name, timestamp, value, labels FROM metrics WHERE metric_name = ?"
	args := []any{name}
	if !since.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, since.Unix())
	}
	q += " ORDER BY timestamp DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := m.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []Metric
	for rows.Next() {
		var metric Metric
		var ts int64
		var labelsJSON sql.NullString
		if err := rows.Scan(&metric.Name, &ts, &metric.Value, &labelsJSON); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		metric.Timestamp = time.Unix(ts, 0)
		if labelsJSON.Valid {
			var labels map[string]string
			if json.Unmarshal([]byte(labelsJSON.String), &labels) == nil {
				metric.Labels = labels
			}
		}
		out = append(out, metric)
	}
	return out, rows.Err()
}

// Cleanup deletes datapoints older than the retention window and returns
// the count removed.
func (m *Manager) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).Unix()
	result, err := m.db.ExecContext(ctx, "DELETE FROM metrics WHERE timestamp < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup metrics: %w", err)
	}
	return result.RowsAffected()
}

// Close flushes remaining datapoints and stops the background goroutine.
func (m *Manager) Close() error {
	close(m.stop)
	<-m.done
	return nil
}

func (m *Manager) flushLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			m.mu.Lock()
			m.flushLocked()
			m.mu.Unlock()
			return
		case <-ticker.C:
			m.mu.Lock()
			m.flushLocked()
			m.mu.Unlock()
		}
	}
}

// flushLocked writes the buffer in one transaction. Caller holds m.mu.
// Flush failures drop the batch; telemetry must never take down the
// subsystem it observes.
func (m *Manager) flushLocked() {
	if len(m.buffer) == 0 {
		return
	}
	batch := m.buffer
	m.buffer = make([]Metric, 0, m.bufferSize)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("telemetry flush: begin tx", "error", err, "dropped", len(batch))
		return
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO metrics (metric_name, timestamp, value, labels) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		slog.Error("telemetry flush: prepare", "error", err, "dropped", len(batch))
		return
	}
	defer stmt.Close()

	for _, metric := range batch {
		var labels any
		if len(metric.Labels) > 0 {
			if b, err := json.Marshal(metric.Labels); err == nil {
				labels = string(b)
			}
		}
		if _, err := stmt.ExecContext(ctx, metric.Name, metric.Timestamp.Unix(), metric.Value, labels); err != nil {
			tx.Rollback()
			slog.Error("telemetry flush: insert", "error", err, "dropped", len(batch))
			return
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("telemetry flush: commit", "error", err, "dropped", len(batch))
	}
}
