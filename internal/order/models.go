package order

import (
	"errors"
	"time"

	"github.com/KoushikPanda1729/billing-service/internal/pricing"
)

var (
	ErrNotFound       = errors.New("order not found")
	ErrForbidden      = errors.New("order does not belong to caller")
	ErrNotCancellable = errors.New("order can no longer be cancelled")
)

// PaymentMode is how the payable amount is collected.
type PaymentMode string

const (
	ModeCard   PaymentMode = "card"
	ModeCash   PaymentMode = "cash"
	ModeWallet PaymentMode = "wallet"
)

// PaymentStatus tracks the money side of an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Status tracks fulfilment.
type Status string

const (
	StatusReceived       Status = "received"
	StatusConfirmed      Status = "confirmed"
	StatusPrepared       Status = "prepared"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// RefundEntry records one processed refund and how it was split across the
// wallet and gateway legs.
type RefundEntry struct {
	Amount          float64   `json:"amount"`
	WalletAmount    float64   `json:"walletAmount"`
	GatewayAmount   float64   `json:"gatewayAmount"`
	GatewayRefundID string    `json:"gatewayRefundId,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// RefundDetails accumulates all refunds issued against one order.
type RefundDetails struct {
	TotalRefunded float64       `json:"totalRefunded"`
	Refunds       []RefundEntry `json:"refunds"`
}

// Order is the settled record of a priced cart.
//
// Total is the server-computed amount before wallet credits; FinalTotal is
// what the gateway collects after credits. For a full wallet payment
// FinalTotal is 0 and PaymentMode is forced to wallet.
type Order struct {
	ID         string `json:"id"`
	CustomerID string `json:"customerId"`
	TenantID   string `json:"tenantId"`

	Items   []pricing.OrderItem `json:"items"`
	Address string              `json:"address"`
	Comment string              `json:"comment,omitempty"`

	SubTotal       float64                    `json:"subTotal"`
	Discount       float64                    `json:"discount"`
	CouponCode     string                     `json:"couponCode,omitempty"`
	DeliveryCharge float64                    `json:"deliveryCharge"`
	Taxes          []pricing.TaxBreakdownItem `json:"taxes"`
	TaxTotal       float64                    `json:"taxTotal"`
	Total          float64                    `json:"total"`

	WalletCreditsApplied float64 `json:"walletCreditsApplied"`
	FinalTotal           float64 `json:"finalTotal"`

	PaymentMode    PaymentMode   `json:"paymentMode"`
	PaymentStatus  PaymentStatus `json:"paymentStatus"`
	PaymentID      string        `json:"paymentId,omitempty"`
	GatewayOrderID string        `json:"gatewayOrderId,omitempty"`

	Status        Status         `json:"status"`
	RefundDetails *RefundDetails `json:"refundDetails,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FullyWalletFunded reports whether no gateway money was involved.
func (o *Order) FullyWalletFunded() bool {
	return o.FinalTotal == 0 && o.WalletCreditsApplied > 0
}

// TotalRefunded is the cumulative refunded amount so far.
func (o *Order) TotalRefunded() float64 {
	if o.RefundDetails == nil {
		return 0
	}
	return o.RefundDetails.TotalRefunded
}

// Event is the order-lifecycle message published to the broker.
type Event struct {
	Event         string        `json:"event"`
	OrderID       string        `json:"orderId"`
	CustomerID    string        `json:"customerId"`
	TenantID      string        `json:"tenantId"`
	Total         float64       `json:"total"`
	FinalTotal    float64       `json:"finalTotal"`
	PaymentMode   PaymentMode   `json:"paymentMode"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	Timestamp     time.Time     `json:"timestamp"`
}

const (
	EventCreated          = "order-created"
	EventPaymentCompleted = "order-payment-completed"
	EventPaymentFailed    = "order-payment-failed"
	EventStatusUpdated    = "order-status-updated"
	EventDeleted          = "order-deleted"
	EventRefunded         = "order-refunded"
)
