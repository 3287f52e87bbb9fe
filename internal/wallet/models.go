package wallet

import "time"

// Status is the wallet lifecycle state. A frozen wallet rejects every
// balance mutation.
type Status string

const (
	StatusActive Status = "active"
	StatusFrozen Status = "frozen"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TypeCashback   TransactionType = "cashback"
	TypeRedemption TransactionType = "redemption"
	TypeRefund     TransactionType = "refund"
)

// TransactionStatus tracks the lifecycle of a ledger entry. Redemptions are
// created pending and later completed or rolled back; cashback and refund
// entries are written completed.
type TransactionStatus string

const (
	TxPending    TransactionStatus = "pending"
	TxCompleted  TransactionStatus = "completed"
	TxFailed     TransactionStatus = "failed"
	TxRolledBack TransactionStatus = "rolled_back"
)

// Wallet is the per-user store-credit account. Balance never goes below
// zero; the schema and every debit enforce that independently.
type Wallet struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Balance   float64   `json:"balance"`
	Currency  string    `json:"currency"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Transaction is one append-only ledger entry. Amount is always positive;
// Type determines the direction.
type Transaction struct {
	ID            string            `json:"id"`
	WalletID      string            `json:"walletId"`
	UserID        string            `json:"userId"`
	OrderID       string            `json:"orderId"`
	Type          TransactionType   `json:"type"`
	Amount        float64           `json:"amount"`
	BalanceBefore float64           `json:"balanceBefore"`
	BalanceAfter  float64           `json:"balanceAfter"`
	Status        TransactionStatus `json:"status"`
	Description   string            `json:"description,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}
