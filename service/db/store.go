package db

import (
	"context"
	"fmt"
	"time"

	"github.com/brojonat/lumenpay/service/metrics"
	"github.com/brojonat/lumenpay/service/payment"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const attemptsTable = "payment_attempts"

const schema = `
CREATE TABLE IF NOT EXISTS payment_attempts (
    attempt_id  TEXT PRIMARY KEY,
    address     TEXT NOT NULL,
    recipient   TEXT NOT NULL,
    amount      TEXT NOT NULL,
    status      TEXT NOT NULL,
    cause       TEXT,
    hash        TEXT,
    error       TEXT,
    superseded  BOOLEAN NOT NULL DEFAULT FALSE,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_payment_attempts_address_started
    ON payment_attempts (address, started_at DESC);
`

// Store keeps an audit log of payment attempt outcomes, including the internal
// failure cause users never see.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If m is nil, no metrics are recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// AttemptRecord is one stored attempt outcome.
type AttemptRecord struct {
	AttemptID  string    `json:"attempt_id"`
	Address    string    `json:"address"`
	Recipient  string    `json:"recipient"`
	Amount     string    `json:"amount"`
	Status     string    `json:"status"`
	Cause      *string   `json:"cause,omitempty"`
	Hash       *string   `json:"hash,omitempty"`
	Error      *string   `json:"error,omitempty"`
	Superseded bool      `json:"superseded"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// EnsureSchema creates the attempts table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// RecordAttempt stores the outcome of an attempt. Recording the same attempt
// twice keeps the first row.
func (s *Store) RecordAttempt(ctx context.Context, o payment.Outcome) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, `
INSERT INTO payment_attempts
    (attempt_id, address, recipient, amount, status, cause, hash, error, superseded, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (attempt_id) DO NOTHING`,
		o.AttemptID,
		o.Address,
		o.Recipient,
		o.Amount,
		string(o.Status),
		pgtextFromString(string(o.Cause)),
		pgtextFromString(o.Hash),
		pgtextFromString(o.Error),
		o.Superseded,
		pgtype.Timestamptz{Time: o.StartedAt, Valid: true},
		pgtype.Timestamptz{Time: o.FinishedAt, Valid: true},
	)
	s.metrics.RecordDBQuery("insert", attemptsTable, metrics.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to record attempt %s: %w", o.AttemptID, err)
	}
	return nil
}

// ListAttemptsByAddress returns the most recent attempts sent from address.
func (s *Store) ListAttemptsByAddress(ctx context.Context, address string, limit int32) ([]*AttemptRecord, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
SELECT attempt_id, address, recipient, amount, status, cause, hash, error,
       superseded, started_at, finished_at, created_at
FROM payment_attempts
WHERE address = $1
ORDER BY started_at DESC
LIMIT $2`, address, limit)
	if err != nil {
		s.metrics.RecordDBQuery("select", attemptsTable, metrics.Since(start), err)
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	records, err := pgx.CollectRows(rows, scanAttempt)
	s.metrics.RecordDBQuery("select", attemptsTable, metrics.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to scan attempts: %w", err)
	}
	return records, nil
}

// GetAttempt retrieves one attempt by ID. It returns pgx.ErrNoRows if none exists.
func (s *Store) GetAttempt(ctx context.Context, attemptID string) (*AttemptRecord, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
SELECT attempt_id, address, recipient, amount, status, cause, hash, error,
       superseded, started_at, finished_at, created_at
FROM payment_attempts
WHERE attempt_id = $1`, attemptID)
	if err != nil {
		s.metrics.RecordDBQuery("select", attemptsTable, metrics.Since(start), err)
		return nil, err
	}

	record, err := pgx.CollectExactlyOneRow(rows, scanAttempt)
	s.metrics.RecordDBQuery("select", attemptsTable, metrics.Since(start), err)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func scanAttempt(row pgx.CollectableRow) (*AttemptRecord, error) {
	var (
		r                 AttemptRecord
		cause, hash, errT pgtype.Text
		started, finished pgtype.Timestamptz
		created           pgtype.Timestamptz
	)
	if err := row.Scan(
		&r.AttemptID,
		&r.Address,
		&r.Recipient,
		&r.Amount,
		&r.Status,
		&cause,
		&hash,
		&errT,
		&r.Superseded,
		&started,
		&finished,
		&created,
	); err != nil {
		return nil, err
	}
	r.Cause = stringPtrFromPgtext(cause)
	r.Hash = stringPtrFromPgtext(hash)
	r.Error = stringPtrFromPgtext(errT)
	r.StartedAt = started.Time
	r.FinishedAt = finished.Time
	r.CreatedAt = created.Time
	return &r, nil
}

// pgtextFromString maps the empty string to NULL.
func pgtextFromString(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}
