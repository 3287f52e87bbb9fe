package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists catalog snapshots. The price configuration is kept
// as a JSONB blob: the billing service never queries inside it, it only
// loads it to price an order.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ProductByID(ctx context.Context, id string) (*Product, error) {
	query := `
  SELECT id, name, tenant_id, is_published, price_configuration, updated_at
  FROM catalog_products WHERE id = $1`

	var p Product
	var rawConfig []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.TenantID, &p.IsPublished, &rawConfig, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product %s: %w", id, err)
	}
	if err := json.Unmarshal(rawConfig, &p.PriceConfiguration); err != nil {
		return nil, fmt.Errorf("corrupt price configuration for product %s: %w", id, err)
	}
	return &p, nil
}

func (s *PostgresStore) ToppingByID(ctx context.Context, id string) (*Topping, error) {
	query := `
  SELECT id, name, tenant_id, price, is_published, updated_at
  FROM catalog_toppings WHERE id = $1`

	var t Topping
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.TenantID, &t.Price, &t.IsPublished, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrToppingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch topping %s: %w", id, err)
	}
	return &t, nil
}

func (s *PostgresStore) UpsertProduct(ctx context.Context, p *Product) error {
	rawConfig, err := json.Marshal(p.PriceConfiguration)
	if err != nil {
		return fmt.Errorf("failed to marshal price configuration: %w", err)
	}
	query := `
  INSERT INTO catalog_products (id, name, tenant_id, is_published, price_configuration, updated_at)
  VALUES ($1, $2, $3, $4, $5, NOW())
  ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    tenant_id = EXCLUDED.tenant_id,
    is_published = EXCLUDED.is_published,
    price_configuration = EXCLUDED.price_configuration,
    updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, p.ID, p.Name, p.TenantID, p.IsPublished, rawConfig); err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
	}
	return nil
}

func (s *PostgresStore) UpsertTopping(ctx context.Context, t *Topping) error {
	query := `
  INSERT INTO catalog_toppings (id, name, tenant_id, price, is_published, updated_at)
  VALUES ($1, $2, $3, $4, $5, NOW())
  ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    tenant_id = EXCLUDED.tenant_id,
    price = EXCLUDED.price,
    is_published = EXCLUDED.is_published,
    updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, t.ID, t.Name, t.TenantID, t.Price, t.IsPublished); err != nil {
		return fmt.Errorf("failed to upsert topping %s: %w", t.ID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM catalog_products WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete product %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) DeleteTopping(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM catalog_toppings WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete topping %s: %w", id, err)
	}
	return nil
}
