package coupon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrNotFound      = errors.New("coupon not found")
	ErrExpired       = errors.New("coupon has expired")
	ErrDuplicateCode = errors.New("coupon code already exists for tenant")
)

// Coupon is a percentage discount voucher scoped to one tenant.
type Coupon struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Code      string    `json:"code"`
	Discount  float64   `json:"discount"` // percentage, e.g. 10 for 10%
	ValidUpto time.Time `json:"validUpto"`
	TenantID  string    `json:"tenantId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the coupon is past its validity.
func (c *Coupon) Expired(now time.Time) bool {
	return !c.ValidUpto.After(now)
}

// Store persists coupons. Code uniqueness per tenant is enforced by the
// schema; Create surfaces that as ErrDuplicateCode.
type Store interface {
	ByCode(ctx context.Context, code, tenantID string) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ByCode(ctx context.Context, code, tenantID string) (*Coupon, error) {
	var c Coupon
	err := s.db.QueryRowContext(ctx, `
  SELECT id, title, code, discount, valid_upto, tenant_id, created_at
  FROM coupons WHERE code = $1 AND tenant_id = $2`,
		code, tenantID,
	).Scan(&c.ID, &c.Title, &c.Code, &c.Discount, &c.ValidUpto, &c.TenantID, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch coupon %s: %w", code, err)
	}
	return &c, nil
}

func (s *PostgresStore) Create(ctx context.Context, c *Coupon) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
  INSERT INTO coupons (id, title, code, discount, valid_upto, tenant_id, created_at)
  VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		c.ID, c.Title, c.Code, c.Discount, c.ValidUpto, c.TenantID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return fmt.Errorf("failed to create coupon %s: %w", c.Code, err)
	}
	return nil
}
