package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresStore keeps wallets in the wallets table and ledger entries in
// wallet_transactions. A partial unique index on (order_id, type) for
// pending/completed cashback and redemption rows backs the idempotency
// guarantees; refunds are excluded because one order may legally receive
// several partial refunds.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const txColumns = `id, wallet_id, user_id, order_id, type, amount,
  balance_before, balance_after, status, description, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (*Transaction, error) {
	var t Transaction
	var desc sql.NullString
	err := row.Scan(&t.ID, &t.WalletID, &t.UserID, &t.OrderID, &t.Type, &t.Amount,
		&t.BalanceBefore, &t.BalanceAfter, &t.Status, &desc, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Description = desc.String
	return &t, nil
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, userID string) (*Wallet, error) {
	// Upsert-by-unique-index: a concurrent create degrades to a fetch.
	_, err := s.db.ExecContext(ctx, `
  INSERT INTO wallets (id, user_id, balance, currency, status, created_at, updated_at)
  VALUES ($1, $2, 0, 'INR', 'active', NOW(), NOW())
  ON CONFLICT (user_id) DO NOTHING`,
		uuid.NewString(), userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet for user %s: %w", userID, err)
	}

	var w Wallet
	err = s.db.QueryRowContext(ctx, `
  SELECT id, user_id, balance, currency, status, created_at, updated_at
  FROM wallets WHERE user_id = $1`,
		userID,
	).Scan(&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.Status, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch wallet for user %s: %w", userID, err)
	}
	return &w, nil
}

func (s *PostgresStore) FindTransaction(ctx context.Context, orderID string, txType TransactionType) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
  SELECT `+txColumns+`
  FROM wallet_transactions
  WHERE order_id = $1 AND type = $2 AND status IN ('pending', 'completed')`,
		orderID, txType,
	)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s transaction for order %s: %w", txType, orderID, err)
	}
	return t, nil
}

func (s *PostgresStore) ApplyCredit(ctx context.Context, userID string, txn *Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var walletID string
	var balanceAfter float64
	err = tx.QueryRowContext(ctx, `
  UPDATE wallets SET balance = balance + $1, updated_at = NOW()
  WHERE user_id = $2 AND status = 'active'
  RETURNING id, balance`,
		txn.Amount, userID,
	).Scan(&walletID, &balanceAfter)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrWalletUnavailable
	}
	if err != nil {
		return fmt.Errorf("failed to credit wallet for user %s: %w", userID, err)
	}

	txn.WalletID = walletID
	txn.UserID = userID
	txn.BalanceBefore = balanceAfter - txn.Amount
	txn.BalanceAfter = balanceAfter

	if err := insertTransaction(ctx, tx, txn); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit wallet credit: %w", err)
	}
	return nil
}

func (s *PostgresStore) ApplyDebit(ctx context.Context, userID string, txn *Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The balance guard lives inside the UPDATE itself. Two concurrent
	// debits racing past any prior read cannot both match once the
	// balance no longer covers them.
	var walletID string
	var balanceAfter float64
	err = tx.QueryRowContext(ctx, `
  UPDATE wallets SET balance = balance - $1, updated_at = NOW()
  WHERE user_id = $2 AND status = 'active' AND balance >= $1
  RETURNING id, balance`,
		txn.Amount, userID,
	).Scan(&walletID, &balanceAfter)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInsufficientBalance
	}
	if err != nil {
		return fmt.Errorf("failed to debit wallet for user %s: %w", userID, err)
	}

	txn.WalletID = walletID
	txn.UserID = userID
	txn.BalanceBefore = balanceAfter + txn.Amount
	txn.BalanceAfter = balanceAfter

	if err := insertTransaction(ctx, tx, txn); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit wallet debit: %w", err)
	}
	return nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, txn *Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	txn.CreatedAt = now
	txn.UpdatedAt = now

	_, err := tx.ExecContext(ctx, `
  INSERT INTO wallet_transactions (`+txColumns+`)
  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		txn.ID, txn.WalletID, txn.UserID, txn.OrderID, txn.Type, txn.Amount,
		txn.BalanceBefore, txn.BalanceAfter, txn.Status,
		sql.NullString{String: txn.Description, Valid: txn.Description != ""},
		txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("failed to record wallet transaction for order %s: %w", txn.OrderID, err)
	}
	return nil
}

func (s *PostgresStore) MarkRedemptionCompleted(ctx context.Context, orderID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
  UPDATE wallet_transactions SET status = 'completed', updated_at = NOW()
  WHERE order_id = $1 AND type = 'redemption' AND status = 'pending'`,
		orderID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete redemption for order %s: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result for order %s: %w", orderID, err)
	}
	return n > 0, nil
}

func (s *PostgresStore) RollbackRedemption(ctx context.Context, userID, orderID string) (*Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Lock the pending entry so a concurrent rollback or completion waits
	// behind us instead of double-crediting.
	row := tx.QueryRowContext(ctx, `
  SELECT `+txColumns+`
  FROM wallet_transactions
  WHERE order_id = $1 AND user_id = $2 AND type = 'redemption' AND status = 'pending'
  FOR UPDATE`,
		orderID, userID,
	)
	pending, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending redemption for order %s: %w", orderID, err)
	}

	var balanceAfter float64
	err = tx.QueryRowContext(ctx, `
  UPDATE wallets SET balance = balance + $1, updated_at = NOW()
  WHERE user_id = $2 AND status = 'active'
  RETURNING balance`,
		pending.Amount, userID,
	).Scan(&balanceAfter)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to restore wallet balance for user %s: %w", userID, err)
	}

	_, err = tx.ExecContext(ctx, `
  UPDATE wallet_transactions SET status = 'rolled_back', updated_at = NOW()
  WHERE id = $1`,
		pending.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark redemption rolled back for order %s: %w", orderID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit redemption rollback: %w", err)
	}
	pending.Status = TxRolledBack
	return pending, nil
}

func (s *PostgresStore) FindCompletedRefund(ctx context.Context, orderID string, amount float64) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
  SELECT `+txColumns+`
  FROM wallet_transactions
  WHERE order_id = $1 AND type = 'refund' AND amount = $2 AND status = 'completed'
  ORDER BY created_at DESC
  LIMIT 1`,
		orderID, amount,
	)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up refund for order %s: %w", orderID, err)
	}
	return t, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
  SELECT `+txColumns+`
  FROM wallet_transactions
  WHERE user_id = $1
  ORDER BY created_at DESC
  LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet transactions for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet transaction: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
