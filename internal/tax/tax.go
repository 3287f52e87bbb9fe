package tax

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNotConfigured = errors.New("tax configuration not found for tenant")

// Component is one named tax line, e.g. CGST 9%.
type Component struct {
	Name     string  `json:"name"`
	Rate     float64 `json:"rate"`
	IsActive bool    `json:"isActive"`
}

// Configuration is the per-tenant tax table.
type Configuration struct {
	TenantID  string      `json:"tenantId"`
	Taxes     []Component `json:"taxes"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Store reads tenant tax configuration. The pricing engine is the consumer.
type Store interface {
	ForTenant(ctx context.Context, tenantID string) (*Configuration, error)
	Upsert(ctx context.Context, cfg *Configuration) error
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ForTenant(ctx context.Context, tenantID string) (*Configuration, error) {
	var cfg Configuration
	var rawTaxes []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT tenant_id, taxes, updated_at FROM tax_configurations WHERE tenant_id = $1`,
		tenantID,
	).Scan(&cfg.TenantID, &rawTaxes, &cfg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tax configuration for tenant %s: %w", tenantID, err)
	}
	if err := json.Unmarshal(rawTaxes, &cfg.Taxes); err != nil {
		return nil, fmt.Errorf("corrupt tax table for tenant %s: %w", tenantID, err)
	}
	return &cfg, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, cfg *Configuration) error {
	rawTaxes, err := json.Marshal(cfg.Taxes)
	if err != nil {
		return fmt.Errorf("failed to marshal tax table: %w", err)
	}
	query := `
  INSERT INTO tax_configurations (tenant_id, taxes, updated_at)
  VALUES ($1, $2, NOW())
  ON CONFLICT (tenant_id) DO UPDATE SET taxes = EXCLUDED.taxes, updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, query, cfg.TenantID, rawTaxes); err != nil {
		return fmt.Errorf("failed to upsert tax configuration for tenant %s: %w", cfg.TenantID, err)
	}
	return nil
}
