package wallet

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientBalance covers both a balance below the requested
	// debit and a frozen or missing wallet. The conditional update cannot
	// tell them apart and the caller treats them the same.
	ErrInsufficientBalance = errors.New("insufficient wallet balance or wallet unavailable")

	// ErrWalletUnavailable means a credit matched no active wallet row.
	ErrWalletUnavailable = errors.New("wallet not found or frozen")

	// ErrDuplicateTransaction surfaces the (order_id, type) unique index.
	ErrDuplicateTransaction = errors.New("transaction already exists for order")

	// ErrTransactionNotFound is returned by lookups that matched nothing.
	ErrTransactionNotFound = errors.New("wallet transaction not found")
)

// Store persists wallets and their ledger. Every balance-mutating method
// updates the wallet row and writes the ledger entry in one database
// transaction; a failure of either rolls back both.
type Store interface {
	// GetOrCreate returns the user's wallet, creating an empty one on
	// first access. Safe to race: a concurrent create resolves to a fetch.
	GetOrCreate(ctx context.Context, userID string) (*Wallet, error)

	// FindTransaction returns the pending or completed entry for
	// (orderID, txType), or ErrTransactionNotFound.
	FindTransaction(ctx context.Context, orderID string, txType TransactionType) (*Transaction, error)

	// ApplyCredit atomically increments the balance of the user's active
	// wallet and appends txn. Fills txn's wallet and balance fields.
	// Returns ErrWalletUnavailable if no active wallet matched, or
	// ErrDuplicateTransaction if an entry for (orderID, type) exists.
	ApplyCredit(ctx context.Context, userID string, txn *Transaction) error

	// ApplyDebit atomically decrements the balance, conditioned on
	// balance >= txn.Amount and status active at mutation time. Returns
	// ErrInsufficientBalance when the condition fails.
	ApplyDebit(ctx context.Context, userID string, txn *Transaction) error

	// MarkRedemptionCompleted flips the pending redemption for orderID to
	// completed. Reports whether a row was updated.
	MarkRedemptionCompleted(ctx context.Context, orderID string) (bool, error)

	// RollbackRedemption credits the pending redemption amount back and
	// marks the entry rolled_back, in one transaction. Returns
	// ErrTransactionNotFound if no pending redemption exists.
	RollbackRedemption(ctx context.Context, userID, orderID string) (*Transaction, error)

	// FindCompletedRefund returns the completed refund entry matching
	// (orderID, amount) exactly, or ErrTransactionNotFound.
	FindCompletedRefund(ctx context.Context, orderID string, amount float64) (*Transaction, error)

	// ListTransactions returns the user's ledger, newest first.
	ListTransactions(ctx context.Context, userID string, limit, offset int) ([]Transaction, error)
}
