package idempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// TTL bounds how long a cached response is replayed. After expiry the same
// key is treated as a fresh request.
const TTL = 24 * time.Hour

var (
	ErrNotFound     = errors.New("idempotency record not found")
	ErrDuplicateKey = errors.New("idempotency key already recorded")
)

// Record caches the response of a completed mutating request, keyed on
// (key, user, endpoint) so one client key cannot collide across users or
// routes.
type Record struct {
	ID         string          `json:"id"`
	Key        string          `json:"key"`
	UserID     string          `json:"userId"`
	Endpoint   string          `json:"endpoint"`
	StatusCode int             `json:"statusCode"`
	Response   json.RawMessage `json:"response"`
	CreatedAt  time.Time       `json:"createdAt"`
	ExpiresAt  time.Time       `json:"expiresAt"`
}

// Store persists idempotency records. InsertInTx takes the caller's open
// transaction so the record commits or aborts together with the work it
// protects.
type Store interface {
	FindExisting(ctx context.Context, key, userID, endpoint string) (*Record, error)
	InsertInTx(ctx context.Context, tx *sql.Tx, rec *Record) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindExisting(ctx context.Context, key, userID, endpoint string) (*Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx, `
  SELECT id, key, user_id, endpoint, status_code, response, created_at, expires_at
  FROM idempotency_records
  WHERE key = $1 AND user_id = $2 AND endpoint = $3 AND expires_at > NOW()`,
		key, userID, endpoint,
	).Scan(&rec.ID, &rec.Key, &rec.UserID, &rec.Endpoint, &rec.StatusCode,
		&rec.Response, &rec.CreatedAt, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) InsertInTx(ctx context.Context, tx *sql.Tx, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	if rec.ExpiresAt.IsZero() {
		rec.ExpiresAt = now.Add(TTL)
	}

	_, err := tx.ExecContext(ctx, `
  INSERT INTO idempotency_records (id, key, user_id, endpoint, status_code, response, created_at, expires_at)
  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.Key, rec.UserID, rec.Endpoint, rec.StatusCode,
		[]byte(rec.Response), rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert idempotency record: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_records WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired idempotency records: %w", err)
	}
	return res.RowsAffected()
}
