package payment

import (
	"errors"
	"math"
)

var (
	ErrInvalidAmount      = errors.New("payment amount must be positive")
	ErrAlreadyPaid        = errors.New("order is already paid")
	ErrNotPayable         = errors.New("order has no payable amount")
	ErrPaymentFailed      = errors.New("payment failed")
	ErrVerificationFailed = errors.New("payment verification failed")
	ErrProviderDown       = errors.New("payment provider unavailable")
	ErrRefundFailed       = errors.New("refund failed")
	ErrNotRefundable      = errors.New("order is not in a refundable state")
)

// CreateOrderRequest asks the gateway to open a payment for an order.
// Amounts cross the gateway boundary in integer minor units only.
type CreateOrderRequest struct {
	OrderID     string
	AmountMinor int64
	Currency    string
	Notes       map[string]string
}

// GatewayOrder is the gateway-side handle the client completes payment
// against.
type GatewayOrder struct {
	GatewayOrderID string `json:"gatewayOrderId"`
	AmountMinor    int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"keyId,omitempty"`
}

// VerifyPaymentRequest carries the client's proof of payment back to us.
type VerifyPaymentRequest struct {
	OrderID          string `json:"orderId"`
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
}

// RefundRequest asks for a (possibly partial) refund of a paid order.
type RefundRequest struct {
	OrderID string  `json:"orderId"`
	Amount  float64 `json:"amount"`
	Reason  string  `json:"reason,omitempty"`
}

// RefundResult reports how the refund was split across sources.
type RefundResult struct {
	OrderID         string  `json:"orderId"`
	Amount          float64 `json:"amount"`
	WalletRefund    float64 `json:"walletRefund"`
	GatewayRefund   float64 `json:"gatewayRefund"`
	GatewayRefundID string  `json:"gatewayRefundId,omitempty"`
	FullRefund      bool    `json:"fullRefund"`
	TotalRefunded   float64 `json:"totalRefunded"`
}

// ToMinor converts a rupee amount to integer minor units.
func ToMinor(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
