package delivery

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ForTenant(ctx context.Context, tenantID string) (*Configuration, error) {
	var cfg Configuration
	var rawTiers []byte
	var threshold sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
  SELECT tenant_id, is_active, order_value_tiers, free_delivery_threshold, updated_at
  FROM delivery_configurations WHERE tenant_id = $1`,
		tenantID,
	).Scan(&cfg.TenantID, &cfg.IsActive, &rawTiers, &threshold, &cfg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch delivery configuration for tenant %s: %w", tenantID, err)
	}
	if err := json.Unmarshal(rawTiers, &cfg.OrderValueTiers); err != nil {
		return nil, fmt.Errorf("corrupt tier table for tenant %s: %w", tenantID, err)
	}
	if threshold.Valid {
		cfg.FreeDeliveryThreshold = threshold.Float64
	}
	return &cfg, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, cfg *Configuration) error {
	rawTiers, err := json.Marshal(cfg.OrderValueTiers)
	if err != nil {
		return fmt.Errorf("failed to marshal tier table: %w", err)
	}
	var threshold sql.NullFloat64
	if cfg.FreeDeliveryThreshold > 0 {
		threshold = sql.NullFloat64{Float64: cfg.FreeDeliveryThreshold, Valid: true}
	}
	query := `
  INSERT INTO delivery_configurations (tenant_id, is_active, order_value_tiers, free_delivery_threshold, updated_at)
  VALUES ($1, $2, $3, $4, NOW())
  ON CONFLICT (tenant_id) DO UPDATE SET
    is_active = EXCLUDED.is_active,
    order_value_tiers = EXCLUDED.order_value_tiers,
    free_delivery_threshold = EXCLUDED.free_delivery_threshold,
    updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, query, cfg.TenantID, cfg.IsActive, rawTiers, threshold); err != nil {
		return fmt.Errorf("failed to upsert delivery configuration for tenant %s: %w", cfg.TenantID, err)
	}
	return nil
}
