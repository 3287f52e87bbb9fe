package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/KoushikPanda1729/billing-service/internal/coupon"
	"github.com/KoushikPanda1729/billing-service/internal/idempotency"
	"github.com/KoushikPanda1729/billing-service/internal/pricing"
	"github.com/KoushikPanda1729/billing-service/internal/wallet"
	"github.com/KoushikPanda1729/billing-service/pkg/logging"
)

// ValidationError carries the full mismatch list from a failed price
// validation so the client can see every problem in one response.
type ValidationError struct {
	Result *pricing.ValidationResult
}

func (e *ValidationError) Error() string {
	return "order validation failed: " + strings.Join(e.Result.Errors, "; ")
}

// PriceValidator recomputes and checks an order's pricing.
type PriceValidator interface {
	ValidateOrderPricing(ctx context.Context, items []pricing.OrderItem, tenantID string,
		submittedTotal float64, cpn *coupon.Coupon,
		submittedDiscount, submittedTaxTotal, submittedDeliveryCharge *float64) (*pricing.ValidationResult, error)
}

// CouponReader resolves a coupon code within a tenant.
type CouponReader interface {
	ByCode(ctx context.Context, code, tenantID string) (*coupon.Coupon, error)
}

// WalletLedger is the slice of the wallet service settlement needs.
type WalletLedger interface {
	RedeemCredits(ctx context.Context, userID string, amount float64, orderID string) (*wallet.Transaction, error)
	CompleteRedemption(ctx context.Context, orderID string) error
	AddCashback(ctx context.Context, userID, orderID string, orderAmount, walletAmountUsed float64) (*wallet.Transaction, error)
}

// EventPublisher emits order-lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// CreateOrderRequest is the client's order submission. The money fields are
// the client's own figures; the server recomputes everything and rejects
// mismatches.
type CreateOrderRequest struct {
	Items      []pricing.OrderItem `json:"items"`
	TenantID   string              `json:"tenantId"`
	Address    string              `json:"address"`
	Comment    string              `json:"comment"`
	CouponCode string              `json:"couponCode"`

	PaymentMode PaymentMode `json:"paymentMode"`

	Total                float64  `json:"total"`
	Discount             *float64 `json:"discount,omitempty"`
	TaxTotal             *float64 `json:"taxTotal,omitempty"`
	DeliveryCharge       *float64 `json:"deliveryCharge,omitempty"`
	WalletCreditsApplied float64  `json:"walletCreditsApplied"`
}

// Service settles orders: validate pricing, persist the order together with
// its idempotency record, then run the best-effort post-commit steps.
type Service struct {
	validator PriceValidator
	coupons   CouponReader
	wallet    WalletLedger
	store     Store
	publisher EventPublisher
	logger    *logging.Logger
	clock     func() time.Time
}

func NewService(validator PriceValidator, coupons CouponReader, wallet WalletLedger,
	store Store, publisher EventPublisher, logger *logging.Logger) *Service {
	return &Service{
		validator: validator,
		coupons:   coupons,
		wallet:    wallet,
		store:     store,
		publisher: publisher,
		logger:    logger,
		clock:     time.Now,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CreateOrder runs the settlement transaction for one submitted cart.
//
// The order row and the idempotency record commit atomically; wallet
// redemption, cashback, and event publication happen after the commit and
// are individually retryable, so their failures are logged but never unwind
// the order.
func (s *Service) CreateOrder(ctx context.Context, customerID string, req *CreateOrderRequest, idemKey, idemEndpoint string) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("order must contain at least one item")
	}
	if req.TenantID == "" {
		return nil, fmt.Errorf("tenantId is required")
	}

	var cpn *coupon.Coupon
	if req.CouponCode != "" {
		var err error
		cpn, err = s.coupons.ByCode(ctx, req.CouponCode, req.TenantID)
		if errors.Is(err, coupon.ErrNotFound) {
			return nil, fmt.Errorf("coupon %q not found for tenant", req.CouponCode)
		}
		if err != nil {
			return nil, err
		}
	}

	result, err := s.validator.ValidateOrderPricing(ctx, req.Items, req.TenantID,
		req.Total, cpn, req.Discount, req.TaxTotal, req.DeliveryCharge)
	if err != nil {
		return nil, err
	}
	if !result.IsValid {
		return nil, &ValidationError{Result: result}
	}

	credits := round2(req.WalletCreditsApplied)
	if credits < 0 {
		return nil, fmt.Errorf("walletCreditsApplied must not be negative")
	}
	if credits > result.FinalTotal {
		credits = result.FinalTotal
	}
	finalTotal := round2(result.FinalTotal - credits)
	if finalTotal < 0 {
		finalTotal = 0
	}

	o := &Order{
		CustomerID:           customerID,
		TenantID:             req.TenantID,
		Items:                req.Items,
		Address:              req.Address,
		Comment:              req.Comment,
		SubTotal:             result.SubTotal,
		Discount:             result.DiscountAmount,
		CouponCode:           req.CouponCode,
		DeliveryCharge:       result.DeliveryCharge,
		Taxes:                result.Taxes,
		TaxTotal:             result.TaxTotal,
		Total:                result.FinalTotal,
		WalletCreditsApplied: credits,
		FinalTotal:           finalTotal,
		PaymentMode:          req.PaymentMode,
		PaymentStatus:        PaymentPending,
		Status:               StatusReceived,
	}
	if o.PaymentMode == "" {
		o.PaymentMode = ModeCard
	}
	// Fully wallet-funded orders never touch the gateway: paid on the spot.
	if o.FullyWalletFunded() {
		o.PaymentMode = ModeWallet
		o.PaymentStatus = PaymentPaid
	}
	if o.PaymentMode == ModeCash {
		o.PaymentStatus = PaymentPending
	}

	var rec *idempotency.Record
	if idemKey != "" {
		response, err := json.Marshal(map[string]any{"order": o})
		if err != nil {
			return nil, fmt.Errorf("failed to encode order response: %w", err)
		}
		rec = &idempotency.Record{
			Key:        idemKey,
			UserID:     customerID,
			Endpoint:   idemEndpoint,
			StatusCode: 201,
			Response:   response,
		}
	}

	if err := s.store.Create(ctx, o, rec); err != nil {
		return nil, err
	}

	s.afterCreate(ctx, o)
	return o, nil
}

// afterCreate runs the best-effort post-commit steps. Each one is wrapped
// so a failure in one does not stop the others.
func (s *Service) afterCreate(ctx context.Context, o *Order) {
	if o.WalletCreditsApplied > 0 {
		if _, err := s.wallet.RedeemCredits(ctx, o.CustomerID, o.WalletCreditsApplied, o.ID); err != nil {
			s.logger.Error(logging.Fields{
				OrderID: o.ID,
				UserID:  o.CustomerID,
				Step:    "redeem_credits",
			}, err)
		}
	}

	event := EventCreated
	if o.FullyWalletFunded() {
		if err := s.wallet.CompleteRedemption(ctx, o.ID); err != nil {
			s.logger.Error(logging.Fields{OrderID: o.ID, Step: "complete_redemption"}, err)
		}
		if _, err := s.wallet.AddCashback(ctx, o.CustomerID, o.ID, o.Total, o.WalletCreditsApplied); err != nil {
			s.logger.Error(logging.Fields{OrderID: o.ID, Step: "add_cashback"}, err)
		}
		event = EventPaymentCompleted
	}

	s.publish(ctx, event, o)
}

func (s *Service) publish(ctx context.Context, eventName string, o *Order) {
	err := s.publisher.Publish(ctx, o.ID, Event{
		Event:         eventName,
		OrderID:       o.ID,
		CustomerID:    o.CustomerID,
		TenantID:      o.TenantID,
		Total:         o.Total,
		FinalTotal:    o.FinalTotal,
		PaymentMode:   o.PaymentMode,
		PaymentStatus: o.PaymentStatus,
		Timestamp:     s.clock().UTC(),
	})
	if err != nil {
		s.logger.Error(logging.Fields{OrderID: o.ID, Step: "publish_" + eventName}, err)
	}
}

// GetOrder fetches one order and enforces ownership: customers see only
// their own orders, tenant staff only their tenant's.
func (s *Service) GetOrder(ctx context.Context, id, callerID, role, callerTenant string) (*Order, error) {
	o, err := s.store.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch role {
	case "admin":
		return o, nil
	case "manager":
		if o.TenantID != callerTenant {
			return nil, ErrForbidden
		}
		return o, nil
	default:
		if o.CustomerID != callerID {
			return nil, ErrForbidden
		}
		return o, nil
	}
}

// ListOrders returns the caller's visible orders: own history for
// customers, the tenant's book for managers.
func (s *Service) ListOrders(ctx context.Context, callerID, role, callerTenant string, limit, offset int) ([]Order, error) {
	if role == "manager" || role == "admin" {
		return s.store.ListByTenant(ctx, callerTenant, limit, offset)
	}
	return s.store.ListByCustomer(ctx, callerID, limit, offset)
}

// CancelOrder lets a customer cancel their own order while it is still in
// the kitchen queue. Anything already being prepared needs tenant staff.
func (s *Service) CancelOrder(ctx context.Context, id, callerID string) (*Order, error) {
	o, err := s.store.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != callerID {
		return nil, ErrForbidden
	}
	if o.Status != StatusReceived && o.Status != StatusConfirmed {
		return nil, ErrNotCancellable
	}
	return s.applyStatus(ctx, id, StatusCancelled)
}

// UpdateStatus moves the order through fulfilment and publishes the change.
// Managers may only touch orders of their own tenant.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status, callerRole, callerTenant string) (*Order, error) {
	o, err := s.store.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerRole == "manager" && o.TenantID != callerTenant {
		return nil, ErrForbidden
	}
	return s.applyStatus(ctx, id, status)
}

func (s *Service) applyStatus(ctx context.Context, id string, status Status) (*Order, error) {
	if err := s.store.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	o, err := s.store.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventStatusUpdated, o)
	return o, nil
}

// DeleteOrder removes an order outright and publishes order-deleted.
// Managers are scoped to their own tenant; customers cannot delete orders.
func (s *Service) DeleteOrder(ctx context.Context, id, callerRole, callerTenant string) error {
	o, err := s.store.ByID(ctx, id)
	if err != nil {
		return err
	}
	switch callerRole {
	case "admin":
	case "manager":
		if o.TenantID != callerTenant {
			return ErrForbidden
		}
	default:
		return ErrForbidden
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, EventDeleted, o)
	return nil
}
