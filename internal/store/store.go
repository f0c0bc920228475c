// Package store persists one record per completed vendor request to a
// local SQLite database. Recording is strictly observational: a store
// failure is logged by the caller and never changes proxy behavior.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// RequestRecord is one completed vendor request.
type RequestRecord struct {
	ID              string    `json:"id"`
	ReceivedAt      time.Time `json:"received_at"`
	Endpoint        string    `json:"endpoint"`
	Model           string    `json:"model,omitempty"`
	Stream          bool      `json:"stream"`
	Status          int       `json:"status"`
	Chunks          int       `json:"chunks"`
	PromptEvalCount int       `json:"prompt_eval_count"`
	EvalCount       int       `json:"eval_count"`
	DurationMs      int64     `json:"duration_ms"`
	UpstreamErr     string    `json:"upstream_err,omitempty"`
}

// Summary aggregates the stored records.
type Summary struct {
	TotalRequests   int64            `json:"total_requests"`
	ByEndpoint      map[string]int64 `json:"by_endpoint"`
	Failures        int64            `json:"failures"`
	PromptEvalCount int64            `json:"prompt_eval_count"`
	EvalCount       int64            `json:"eval_count"`
	AvgDurationMs   float64          `json:"avg_duration_ms"`
}

const schema = `
CREATE TABLE IF NOT EXISTS requests (
    id                TEXT PRIMARY KEY,
    received_at       INTEGER NOT NULL,
    endpoint          TEXT NOT NULL,
    model             TEXT NOT NULL DEFAULT '',
    stream            INTEGER NOT NULL DEFAULT 0,
    status            INTEGER NOT NULL,
    chunks            INTEGER NOT NULL DEFAULT 0,
    prompt_eval_count INTEGER NOT NULL DEFAULT 0,
    eval_count        INTEGER NOT NULL DEFAULT 0,
    duration_ms       INTEGER NOT NULL DEFAULT 0,
    upstream_err      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_requests_received ON requests(received_at);
CREATE INDEX IF NOT EXISTS idx_requests_endpoint ON requests(endpoint);
`

// Store wraps the SQLite database holding request records.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and initializes the
// schema. WAL mode keeps concurrent connection handlers from blocking
// each other on writes.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one completed request.
func (s *Store) Record(rec *RequestRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO requests
		 (id, received_at, endpoint, model, stream, status, chunks, prompt_eval_count, eval_count, duration_ms, upstream_err)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ReceivedAt.UnixMilli(), rec.Endpoint, rec.Model, rec.Stream, rec.Status,
		rec.Chunks, rec.PromptEvalCount, rec.EvalCount, rec.DurationMs, rec.UpstreamErr,
	)
	if err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}

// Recent returns up to n records, newest first.
func (s *Store) Recent(n int) ([]RequestRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, received_at, endpoint, model, stream, status, chunks, prompt_eval_count, eval_count, duration_ms, upstream_err
		 FROM requests ORDER BY received_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent requests: %w", err)
	}
	defer rows.Close()

	var recs []RequestRecord
	for rows.Next() {
		var rec RequestRecord
		var receivedAt int64
		if err := rows.Scan(&rec.ID, &receivedAt, &rec.Endpoint, &rec.Model, &rec.Stream, &rec.Status,
			&rec.Chunks, &rec.PromptEvalCount, &rec.EvalCount, &rec.DurationMs, &rec.UpstreamErr); err != nil {
			return nil, fmt.Errorf("failed to scan request record: %w", err)
		}
		rec.ReceivedAt = time.UnixMilli(receivedAt).UTC()
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Summarize aggregates all stored records.
func (s *Store) Summarize() (*Summary, error) {
	sum := &Summary{ByEndpoint: make(map[string]int64)}

	err := s.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status >= 400 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(prompt_eval_count), 0),
		        COALESCE(SUM(eval_count), 0),
		        COALESCE(AVG(duration_ms), 0)
		 FROM requests`).
		Scan(&sum.TotalRequests, &sum.Failures, &sum.PromptEvalCount, &sum.EvalCount, &sum.AvgDurationMs)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize requests: %w", err)
	}

	rows, err := s.db.Query(`SELECT endpoint, COUNT(*) FROM requests GROUP BY endpoint`)
	if err != nil {
		return nil, fmt.Errorf("failed to count requests by endpoint: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var endpoint string
		var count int64
		if err := rows.Scan(&endpoint, &count); err != nil {
			return nil, fmt.Errorf("failed to scan endpoint count: %w", err)
		}
		sum.ByEndpoint[endpoint] = count
	}
	return sum, rows.Err()
}

// Prune deletes records older than the cutoff and reports how many
// rows were removed.
func (s *Store) Prune(olderThan time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM requests WHERE received_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune requests: %w", err)
	}
	return res.RowsAffected()
}
