package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/KoushikPanda1729/billing-service/internal/idempotency"
	"github.com/KoushikPanda1729/billing-service/internal/pricing"
)

// Store persists orders. Create writes the order and its idempotency record
// in one database transaction so a retried request can never produce a
// second order. WithRefundLock serializes refund bookkeeping per order.
type Store interface {
	Create(ctx context.Context, o *Order, rec *idempotency.Record) error
	ByID(ctx context.Context, id string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]Order, error)
	ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	UpdatePaymentStatus(ctx context.Context, id string, status PaymentStatus, paymentID string) error
	SetGatewayOrder(ctx context.Context, id, gatewayOrderID string) error
	WithRefundLock(ctx context.Context, id string, fn func(o *Order) error) error
	Delete(ctx context.Context, id string) error
	FindStalePendingPayments(ctx context.Context, olderThan time.Duration, limit int) ([]Order, error)
}

type PostgresStore struct {
	db   *sql.DB
	idem idempotency.Store
}

func NewPostgresStore(db *sql.DB, idem idempotency.Store) *PostgresStore {
	return &PostgresStore{db: db, idem: idem}
}

const orderColumns = `id, customer_id, tenant_id, items, address, comment,
  sub_total, discount, coupon_code, delivery_charge, taxes, tax_total, total,
  wallet_credits_applied, final_total, payment_mode, payment_status,
  payment_id, gateway_order_id, status, refund_details, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, o *Order, rec *idempotency.Record) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("failed to encode order items: %w", err)
	}
	taxes, err := json.Marshal(o.Taxes)
	if err != nil {
		return fmt.Errorf("failed to encode order taxes: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
  INSERT INTO orders (`+orderColumns+`)
  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
          $16, $17, $18, $19, $20, NULL, $21, $22)`,
		o.ID, o.CustomerID, o.TenantID, items, o.Address,
		sql.NullString{String: o.Comment, Valid: o.Comment != ""},
		o.SubTotal, o.Discount,
		sql.NullString{String: o.CouponCode, Valid: o.CouponCode != ""},
		o.DeliveryCharge, taxes, o.TaxTotal, o.Total,
		o.WalletCreditsApplied, o.FinalTotal, o.PaymentMode, o.PaymentStatus,
		sql.NullString{String: o.PaymentID, Valid: o.PaymentID != ""},
		sql.NullString{String: o.GatewayOrderID, Valid: o.GatewayOrderID != ""},
		o.Status, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order %s: %w", o.ID, err)
	}

	if rec != nil {
		if err := s.idem.InsertInTx(ctx, tx, rec); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order %s: %w", o.ID, err)
	}
	return nil
}

func scanOrder(row interface{ Scan(...any) error }) (*Order, error) {
	var o Order
	var items, taxes []byte
	var refundDetails []byte
	var comment, couponCode, paymentID, gatewayOrderID sql.NullString
	err := row.Scan(&o.ID, &o.CustomerID, &o.TenantID, &items, &o.Address, &comment,
		&o.SubTotal, &o.Discount, &couponCode, &o.DeliveryCharge, &taxes,
		&o.TaxTotal, &o.Total, &o.WalletCreditsApplied, &o.FinalTotal,
		&o.PaymentMode, &o.PaymentStatus, &paymentID, &gatewayOrderID,
		&o.Status, &refundDetails, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Comment = comment.String
	o.CouponCode = couponCode.String
	o.PaymentID = paymentID.String
	o.GatewayOrderID = gatewayOrderID.String

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("failed to decode items for order %s: %w", o.ID, err)
	}
	if len(taxes) > 0 {
		if err := json.Unmarshal(taxes, &o.Taxes); err != nil {
			return nil, fmt.Errorf("failed to decode taxes for order %s: %w", o.ID, err)
		}
	}
	if len(refundDetails) > 0 {
		var rd RefundDetails
		if err := json.Unmarshal(refundDetails, &rd); err != nil {
			return nil, fmt.Errorf("failed to decode refund details for order %s: %w", o.ID, err)
		}
		o.RefundDetails = &rd
	}
	if o.Items == nil {
		o.Items = []pricing.OrderItem{}
	}
	return &o, nil
}

func (s *PostgresStore) ByID(ctx context.Context, id string) (*Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order %s: %w", id, err)
	}
	return o, nil
}

func (s *PostgresStore) list(ctx context.Context, where string, arg any, limit, offset int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
  SELECT `+orderColumns+` FROM orders
  WHERE `+where+` = $1
  ORDER BY created_at DESC
  LIMIT $2 OFFSET $3`,
		arg, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]Order, error) {
	return s.list(ctx, "customer_id", customerID, limit, offset)
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]Order, error) {
	return s.list(ctx, "tenant_id", tenantID, limit, offset)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	res, err := s.db.ExecContext(ctx, `
  UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update status for order %s: %w", id, err)
	}
	return requireMatched(res, id)
}

func (s *PostgresStore) UpdatePaymentStatus(ctx context.Context, id string, status PaymentStatus, paymentID string) error {
	res, err := s.db.ExecContext(ctx, `
  UPDATE orders SET payment_status = $1,
    payment_id = COALESCE(NULLIF($2, ''), payment_id),
    updated_at = NOW()
  WHERE id = $3`,
		status, paymentID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment status for order %s: %w", id, err)
	}
	return requireMatched(res, id)
}

func (s *PostgresStore) SetGatewayOrder(ctx context.Context, id, gatewayOrderID string) error {
	res, err := s.db.ExecContext(ctx, `
  UPDATE orders SET gateway_order_id = $1, updated_at = NOW() WHERE id = $2`,
		gatewayOrderID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set gateway order for order %s: %w", id, err)
	}
	return requireMatched(res, id)
}

// WithRefundLock loads the order under a row lock, runs fn against it, and
// persists the refund details and payment status fn left behind. Concurrent
// refunds of one order queue on the lock, so fn always sees the books as the
// previous refund left them. An error from fn rolls everything back.
func (s *PostgresStore) WithRefundLock(ctx context.Context, id string, fn func(o *Order) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin refund transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock order %s: %w", id, err)
	}

	if err := fn(o); err != nil {
		return err
	}

	payload, err := json.Marshal(o.RefundDetails)
	if err != nil {
		return fmt.Errorf("failed to encode refund details: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
  UPDATE orders SET refund_details = $1, payment_status = $2, updated_at = NOW()
  WHERE id = $3`,
		payload, o.PaymentStatus, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update refund details for order %s: %w", id, err)
	}
	if err := requireMatched(res, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete order %s: %w", id, err)
	}
	return requireMatched(res, id)
}

func (s *PostgresStore) FindStalePendingPayments(ctx context.Context, olderThan time.Duration, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
  SELECT `+orderColumns+` FROM orders
  WHERE payment_status = 'pending' AND final_total > 0 AND created_at < $1
  ORDER BY created_at ASC
  LIMIT $2`,
		time.Now().UTC().Add(-olderThan), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for stale pending payments: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func requireMatched(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for order %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
