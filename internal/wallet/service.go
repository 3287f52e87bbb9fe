package wallet

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/KoushikPanda1729/billing-service/internal/config"
	"github.com/KoushikPanda1729/billing-service/pkg/logging"
)

// Service is the wallet ledger. All idempotency is keyed on the order: at
// most one cashback and one live redemption per order, and refunds matched
// by (order, amount).
type Service struct {
	store    Store
	cashback config.CashbackConfig
	logger   *logging.Logger
}

func NewService(store Store, cashback config.CashbackConfig, logger *logging.Logger) *Service {
	return &Service{store: store, cashback: cashback, logger: logger}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CalculateCashback previews the cashback an order would earn, applying the
// same gates AddCashback applies.
func (s *Service) CalculateCashback(orderAmount, walletAmountUsed float64) float64 {
	if !s.cashback.Enabled || orderAmount < s.cashback.MinOrderAmount {
		return 0
	}
	base := orderAmount
	if !s.cashback.ApplyOnWalletPayment {
		base -= walletAmountUsed
	}
	if base <= 0 {
		return 0
	}
	amount := round2(base * s.cashback.Percentage / 100)
	if amount > s.cashback.MaxCashbackPerOrder {
		amount = s.cashback.MaxCashbackPerOrder
	}
	return amount
}

// AddCashback credits the percentage rebate for a paid order. Calling it
// again for the same order returns the original entry. Returns (nil, nil)
// when the policy yields no cashback.
func (s *Service) AddCashback(ctx context.Context, userID, orderID string, orderAmount, walletAmountUsed float64) (*Transaction, error) {
	amount := s.CalculateCashback(orderAmount, walletAmountUsed)
	if amount <= 0 {
		return nil, nil
	}

	if existing, err := s.store.FindTransaction(ctx, orderID, TypeCashback); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrTransactionNotFound) {
		return nil, err
	}

	if _, err := s.store.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	txn := &Transaction{
		OrderID:     orderID,
		Type:        TypeCashback,
		Amount:      amount,
		Status:      TxCompleted,
		Description: fmt.Sprintf("Cashback for order %s", orderID),
	}
	err := s.store.ApplyCredit(ctx, userID, txn)
	if errors.Is(err, ErrDuplicateTransaction) {
		// Lost the race to a concurrent retry; its entry is ours.
		return s.store.FindTransaction(ctx, orderID, TypeCashback)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info(logging.Fields{
		OrderID: orderID,
		UserID:  userID,
		Step:    "cashback_credited",
		Amount:  fmt.Sprintf("%.2f", amount),
	})
	return txn, nil
}

// RedeemCredits debits the wallet to pay for part of an order. The entry
// is written pending; CompleteRedemption or RollbackRedemption finalizes it
// once the order outcome is known.
func (s *Service) RedeemCredits(ctx context.Context, userID string, amount float64, orderID string) (*Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("redemption amount must be positive, got %v", amount)
	}

	if existing, err := s.store.FindTransaction(ctx, orderID, TypeRedemption); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrTransactionNotFound) {
		return nil, err
	}

	w, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	// Pre-check for a friendly error message only. The debit below
	// re-checks atomically and is the real guard.
	if w.Balance < amount {
		return nil, fmt.Errorf("%w: balance %.2f, requested %.2f", ErrInsufficientBalance, w.Balance, amount)
	}

	txn := &Transaction{
		OrderID:     orderID,
		Type:        TypeRedemption,
		Amount:      round2(amount),
		Status:      TxPending,
		Description: fmt.Sprintf("Credits redeemed for order %s", orderID),
	}
	err = s.store.ApplyDebit(ctx, userID, txn)
	if errors.Is(err, ErrDuplicateTransaction) {
		return s.store.FindTransaction(ctx, orderID, TypeRedemption)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info(logging.Fields{
		OrderID: orderID,
		UserID:  userID,
		Step:    "credits_redeemed",
		Amount:  fmt.Sprintf("%.2f", txn.Amount),
	})
	return txn, nil
}

// CompleteRedemption finalizes the pending redemption for an order.
// Idempotent: completing an already-completed or absent redemption is a
// no-op.
func (s *Service) CompleteRedemption(ctx context.Context, orderID string) error {
	updated, err := s.store.MarkRedemptionCompleted(ctx, orderID)
	if err != nil {
		return err
	}
	if !updated {
		s.logger.Warn(logging.Fields{
			OrderID: orderID,
			Step:    "complete_redemption",
			Message: "no pending redemption to complete",
		})
	}
	return nil
}

// RollbackRedemption returns the pending redemption amount to the wallet
// after a failed payment. A missing pending entry is logged and ignored so
// double-rollback is harmless.
func (s *Service) RollbackRedemption(ctx context.Context, userID, orderID string) error {
	txn, err := s.store.RollbackRedemption(ctx, userID, orderID)
	if errors.Is(err, ErrTransactionNotFound) {
		s.logger.Warn(logging.Fields{
			OrderID: orderID,
			UserID:  userID,
			Step:    "rollback_redemption",
			Message: "no pending redemption to roll back",
		})
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Info(logging.Fields{
		OrderID: orderID,
		UserID:  userID,
		Step:    "redemption_rolled_back",
		Amount:  fmt.Sprintf("%.2f", txn.Amount),
	})
	return nil
}

// RefundToWallet credits a refund. Idempotency matches on the exact
// (order, amount) pair, so distinct partial refunds for one order are all
// honored while a retried identical refund is not double-applied.
func (s *Service) RefundToWallet(ctx context.Context, userID string, amount float64, orderID string) (*Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("refund amount must be positive, got %v", amount)
	}
	amount = round2(amount)

	if existing, err := s.store.FindCompletedRefund(ctx, orderID, amount); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrTransactionNotFound) {
		return nil, err
	}

	if _, err := s.store.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	txn := &Transaction{
		OrderID:     orderID,
		Type:        TypeRefund,
		Amount:      amount,
		Status:      TxCompleted,
		Description: fmt.Sprintf("Refund for order %s", orderID),
	}
	if err := s.store.ApplyCredit(ctx, userID, txn); err != nil {
		return nil, err
	}

	s.logger.Info(logging.Fields{
		OrderID: orderID,
		UserID:  userID,
		Step:    "refund_credited",
		Amount:  fmt.Sprintf("%.2f", amount),
	})
	return txn, nil
}

// Balance returns the user's wallet, creating it on first access.
func (s *Service) Balance(ctx context.Context, userID string) (*Wallet, error) {
	return s.store.GetOrCreate(ctx, userID)
}

// Transactions returns the user's ledger, newest first.
func (s *Service) Transactions(ctx context.Context, userID string, limit, offset int) ([]Transaction, error) {
	return s.store.ListTransactions(ctx, userID, limit, offset)
}
