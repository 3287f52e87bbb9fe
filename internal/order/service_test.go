package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KoushikPanda1729/billing-service/internal/coupon"
	"github.com/KoushikPanda1729/billing-service/internal/idempotency"
	"github.com/KoushikPanda1729/billing-service/internal/pricing"
	"github.com/KoushikPanda1729/billing-service/internal/wallet"
	"github.com/KoushikPanda1729/billing-service/pkg/logging"
)

type fakeValidator struct {
	result *pricing.ValidationResult
	err    error
}

func (f *fakeValidator) ValidateOrderPricing(ctx context.Context, items []pricing.OrderItem, tenantID string,
	submittedTotal float64, cpn *coupon.Coupon,
	submittedDiscount, submittedTaxTotal, submittedDeliveryCharge *float64) (*pricing.ValidationResult, error) {
	return f.result, f.err
}

type fakeCoupons struct {
	coupons map[string]*coupon.Coupon
}

func (f *fakeCoupons) ByCode(ctx context.Context, code, tenantID string) (*coupon.Coupon, error) {
	if c, ok := f.coupons[code]; ok {
		return c, nil
	}
	return nil, coupon.ErrNotFound
}

type fakeLedger struct {
	redeemed   []string
	completed  []string
	cashbacked []string
	redeemErr  error
}

func (f *fakeLedger) RedeemCredits(ctx context.Context, userID string, amount float64, orderID string) (*wallet.Transaction, error) {
	if f.redeemErr != nil {
		return nil, f.redeemErr
	}
	f.redeemed = append(f.redeemed, orderID)
	return &wallet.Transaction{OrderID: orderID, Amount: amount, Status: wallet.TxPending}, nil
}

func (f *fakeLedger) CompleteRedemption(ctx context.Context, orderID string) error {
	f.completed = append(f.completed, orderID)
	return nil
}

func (f *fakeLedger) AddCashback(ctx context.Context, userID, orderID string, orderAmount, walletAmountUsed float64) (*wallet.Transaction, error) {
	f.cashbacked = append(f.cashbacked, orderID)
	return &wallet.Transaction{OrderID: orderID}, nil
}

type fakeStore struct {
	created    []*Order
	records    []*idempotency.Record
	createErr  error
	statusSets map[string]Status
}

func (f *fakeStore) Create(ctx context.Context, o *Order, rec *idempotency.Record) error {
	if f.createErr != nil {
		return f.createErr
	}
	o.ID = "order-1"
	f.created = append(f.created, o)
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStore) ByID(ctx context.Context, id string) (*Order, error) {
	for _, o := range f.created {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]Order, error) {
	return nil, nil
}
func (f *fakeStore) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]Order, error) {
	return nil, nil
}
func (f *fakeStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	if f.statusSets == nil {
		f.statusSets = map[string]Status{}
	}
	f.statusSets[id] = status
	for _, o := range f.created {
		if o.ID == id {
			o.Status = status
		}
	}
	return nil
}
func (f *fakeStore) UpdatePaymentStatus(ctx context.Context, id string, status PaymentStatus, paymentID string) error {
	return nil
}
func (f *fakeStore) SetGatewayOrder(ctx context.Context, id, gatewayOrderID string) error { return nil }
func (f *fakeStore) WithRefundLock(ctx context.Context, id string, fn func(o *Order) error) error {
	o, err := f.ByID(ctx, id)
	if err != nil {
		return err
	}
	return fn(o)
}
func (f *fakeStore) Delete(ctx context.Context, id string) error {
	for i, o := range f.created {
		if o.ID == id {
			f.created = append(f.created[:i], f.created[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
func (f *fakeStore) FindStalePendingPayments(ctx context.Context, olderThan time.Duration, limit int) ([]Order, error) {
	return nil, nil
}

type fakePublisher struct {
	events []Event
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, key string, value interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, value.(Event))
	return nil
}

func validResult(total float64) *pricing.ValidationResult {
	return &pricing.ValidationResult{
		IsValid:    true,
		SubTotal:   total,
		FinalTotal: total,
		Taxes:      []pricing.TaxBreakdownItem{},
	}
}

func testRequest(total float64) *CreateOrderRequest {
	return &CreateOrderRequest{
		Items:    []pricing.OrderItem{{ID: "p1", Qty: 1, TotalPrice: total}},
		TenantID: "tenant-1",
		Address:  "42 Main St",
		Total:    total,
	}
}

func newTestService(v PriceValidator, st Store, ledger WalletLedger, pub EventPublisher) *Service {
	svc := NewService(v, &fakeCoupons{}, ledger, st, pub, logging.New("order-test"))
	svc.clock = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestCreateOrder_CardPayment(t *testing.T) {
	store := &fakeStore{}
	ledger := &fakeLedger{}
	pub := &fakePublisher{}
	svc := newTestService(&fakeValidator{result: validResult(500)}, store, ledger, pub)

	o, err := svc.CreateOrder(context.Background(), "u1", testRequest(500), "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if o.PaymentMode != ModeCard || o.PaymentStatus != PaymentPending {
		t.Errorf("expected pending card payment, got %s/%s", o.PaymentMode, o.PaymentStatus)
	}
	if o.FinalTotal != 500 {
		t.Errorf("finalTotal = %v, want 500", o.FinalTotal)
	}
	if len(ledger.redeemed) != 0 {
		t.Errorf("no credits should be redeemed, got %v", ledger.redeemed)
	}
	if len(pub.events) != 1 || pub.events[0].Event != EventCreated {
		t.Errorf("expected one order-created event, got %+v", pub.events)
	}
}

// Total 1000 fully covered by wallet credits: paid immediately in wallet
// mode, redemption completed and cashback granted, no gateway involvement.
func TestCreateOrder_FullWalletPayment(t *testing.T) {
	store := &fakeStore{}
	ledger := &fakeLedger{}
	pub := &fakePublisher{}
	svc := newTestService(&fakeValidator{result: validResult(1000)}, store, ledger, pub)

	req := testRequest(1000)
	req.WalletCreditsApplied = 1000

	o, err := svc.CreateOrder(context.Background(), "u1", req, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if o.FinalTotal != 0 {
		t.Errorf("finalTotal = %v, want 0", o.FinalTotal)
	}
	if o.PaymentMode != ModeWallet {
		t.Errorf("paymentMode = %s, want wallet", o.PaymentMode)
	}
	if o.PaymentStatus != PaymentPaid {
		t.Errorf("paymentStatus = %s, want paid", o.PaymentStatus)
	}
	if len(ledger.redeemed) != 1 || len(ledger.completed) != 1 || len(ledger.cashbacked) != 1 {
		t.Errorf("expected redeem+complete+cashback, got %+v", ledger)
	}
	if len(pub.events) != 1 || pub.events[0].Event != EventPaymentCompleted {
		t.Errorf("expected order-payment-completed event, got %+v", pub.events)
	}
}

func TestCreateOrder_PartialWalletPayment(t *testing.T) {
	store := &fakeStore{}
	ledger := &fakeLedger{}
	pub := &fakePublisher{}
	svc := newTestService(&fakeValidator{result: validResult(300)}, store, ledger, pub)

	req := testRequest(300)
	req.WalletCreditsApplied = 100

	o, err := svc.CreateOrder(context.Background(), "u1", req, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if o.FinalTotal != 200 {
		t.Errorf("finalTotal = %v, want 200", o.FinalTotal)
	}
	if o.PaymentStatus != PaymentPending {
		t.Errorf("paymentStatus = %s, want pending", o.PaymentStatus)
	}
	// Credits are held pending until payment verification settles them.
	if len(ledger.redeemed) != 1 {
		t.Errorf("expected one redemption, got %v", ledger.redeemed)
	}
	if len(ledger.completed) != 0 || len(ledger.cashbacked) != 0 {
		t.Errorf("redemption must stay pending, got %+v", ledger)
	}
}

func TestCreateOrder_CreditsClampedToTotal(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(&fakeValidator{result: validResult(100)}, store, &fakeLedger{}, &fakePublisher{})

	req := testRequest(100)
	req.WalletCreditsApplied = 250

	o, err := svc.CreateOrder(context.Background(), "u1", req, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.WalletCreditsApplied != 100 || o.FinalTotal != 0 {
		t.Errorf("credits = %v, finalTotal = %v, want 100 and 0", o.WalletCreditsApplied, o.FinalTotal)
	}
}

func TestCreateOrder_ValidationFailure(t *testing.T) {
	result := &pricing.ValidationResult{
		IsValid: false,
		Errors:  []string{"Total mismatch: calculated 440, submitted 450"},
	}
	store := &fakeStore{}
	svc := newTestService(&fakeValidator{result: result}, store, &fakeLedger{}, &fakePublisher{})

	_, err := svc.CreateOrder(context.Background(), "u1", testRequest(450), "", "")

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(vErr.Result.Errors) != 1 {
		t.Errorf("expected the mismatch list to survive, got %+v", vErr.Result)
	}
	if len(store.created) != 0 {
		t.Errorf("no order should be persisted on validation failure")
	}
}

// The idempotency record rides in the same store call as the order so both
// commit or neither does.
func TestCreateOrder_IdempotencyRecordAttached(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(&fakeValidator{result: validResult(500)}, store, &fakeLedger{}, &fakePublisher{})

	_, err := svc.CreateOrder(context.Background(), "u1", testRequest(500), "key-1", "POST /orders")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.records) != 1 || store.records[0] == nil {
		t.Fatalf("expected idempotency record to accompany the order")
	}
	rec := store.records[0]
	if rec.Key != "key-1" || rec.UserID != "u1" || rec.Endpoint != "POST /orders" {
		t.Errorf("record mis-keyed: %+v", rec)
	}
	if rec.StatusCode != 201 || len(rec.Response) == 0 {
		t.Errorf("record must cache the response, got %+v", rec)
	}
}

func TestCreateOrder_WalletFailureDoesNotFailOrder(t *testing.T) {
	store := &fakeStore{}
	ledger := &fakeLedger{redeemErr: wallet.ErrInsufficientBalance}
	pub := &fakePublisher{}
	svc := newTestService(&fakeValidator{result: validResult(300)}, store, ledger, pub)

	req := testRequest(300)
	req.WalletCreditsApplied = 100

	o, err := svc.CreateOrder(context.Background(), "u1", req, "", "")
	if err != nil {
		t.Fatalf("post-commit wallet failure must not fail the order, got %v", err)
	}
	if len(store.created) != 1 || o.ID != "order-1" {
		t.Errorf("order should be persisted, got %+v", store.created)
	}
	if len(pub.events) != 1 {
		t.Errorf("event should still be published, got %+v", pub.events)
	}
}

func TestCreateOrder_UnknownCoupon(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(&fakeValidator{result: validResult(500)}, store, &fakeLedger{}, &fakePublisher{})

	req := testRequest(500)
	req.CouponCode = "NOPE"

	if _, err := svc.CreateOrder(context.Background(), "u1", req, "", ""); err == nil {
		t.Fatal("expected error for unknown coupon")
	}
	if len(store.created) != 0 {
		t.Errorf("no order should be persisted")
	}
}

func TestCancelOrder(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	svc := newTestService(&fakeValidator{result: validResult(100)}, store, &fakeLedger{}, pub)
	if _, err := svc.CreateOrder(context.Background(), "u1", testRequest(100), "", ""); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	if _, err := svc.CancelOrder(context.Background(), "order-1", "u2"); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger cancel err = %v, want ErrForbidden", err)
	}

	o, err := svc.CancelOrder(context.Background(), "order-1", "u1")
	if err != nil {
		t.Fatalf("owner cancel failed: %v", err)
	}
	if o.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", o.Status)
	}

	// Already cancelled, no longer in the kitchen queue.
	if _, err := svc.CancelOrder(context.Background(), "order-1", "u1"); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("second cancel err = %v, want ErrNotCancellable", err)
	}
}

func TestUpdateStatus_TenantScope(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(&fakeValidator{result: validResult(100)}, store, &fakeLedger{}, &fakePublisher{})
	if _, err := svc.CreateOrder(context.Background(), "u1", testRequest(100), "", ""); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	// A manager of another tenant cannot move the order.
	_, err := svc.UpdateStatus(context.Background(), "order-1", StatusConfirmed, "manager", "tenant-2")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("cross-tenant manager err = %v, want ErrForbidden", err)
	}
	if store.created[0].Status != StatusReceived {
		t.Errorf("status must be unchanged after a forbidden update, got %s", store.created[0].Status)
	}

	o, err := svc.UpdateStatus(context.Background(), "order-1", StatusConfirmed, "manager", "tenant-1")
	if err != nil {
		t.Fatalf("own-tenant manager update failed: %v", err)
	}
	if o.Status != StatusConfirmed {
		t.Errorf("status = %s, want confirmed", o.Status)
	}

	if _, err := svc.UpdateStatus(context.Background(), "order-1", StatusPrepared, "admin", ""); err != nil {
		t.Errorf("admin update failed: %v", err)
	}
}

func TestDeleteOrder(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	svc := newTestService(&fakeValidator{result: validResult(100)}, store, &fakeLedger{}, pub)
	if _, err := svc.CreateOrder(context.Background(), "u1", testRequest(100), "", ""); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	if err := svc.DeleteOrder(context.Background(), "order-1", "customer", ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("customer delete err = %v, want ErrForbidden", err)
	}
	if err := svc.DeleteOrder(context.Background(), "order-1", "manager", "tenant-2"); !errors.Is(err, ErrForbidden) {
		t.Errorf("cross-tenant manager delete err = %v, want ErrForbidden", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("order must survive forbidden deletes")
	}

	if err := svc.DeleteOrder(context.Background(), "order-1", "manager", "tenant-1"); err != nil {
		t.Fatalf("own-tenant manager delete failed: %v", err)
	}
	if len(store.created) != 0 {
		t.Errorf("order should be gone")
	}

	last := pub.events[len(pub.events)-1]
	if last.Event != EventDeleted || last.OrderID != "order-1" {
		t.Errorf("expected order-deleted event, got %+v", last)
	}

	if err := svc.DeleteOrder(context.Background(), "order-1", "admin", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleting a missing order err = %v, want ErrNotFound", err)
	}
}

func TestGetOrder_Authorization(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(&fakeValidator{result: validResult(100)}, store, &fakeLedger{}, &fakePublisher{})
	if _, err := svc.CreateOrder(context.Background(), "u1", testRequest(100), "", ""); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	tests := []struct {
		name     string
		callerID string
		role     string
		tenant   string
		wantErr  error
	}{
		{"owner reads own order", "u1", "customer", "", nil},
		{"stranger denied", "u2", "customer", "", ErrForbidden},
		{"manager of tenant allowed", "m1", "manager", "tenant-1", nil},
		{"manager of other tenant denied", "m1", "manager", "tenant-2", ErrForbidden},
		{"admin always allowed", "a1", "admin", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetOrder(context.Background(), "order-1", tt.callerID, tt.role, tt.tenant)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
