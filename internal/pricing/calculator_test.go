package pricing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/KoushikPanda1729/billing-service/internal/catalog"
	"github.com/KoushikPanda1729/billing-service/internal/coupon"
	"github.com/KoushikPanda1729/billing-service/internal/delivery"
	"github.com/KoushikPanda1729/billing-service/internal/tax"
)

// --- MOCKS ---

type mockCatalog struct {
	products map[string]*catalog.Product
	toppings map[string]*catalog.Topping
}

func (m *mockCatalog) ProductByID(ctx context.Context, id string) (*catalog.Product, error) {
	if p, ok := m.products[id]; ok {
		return p, nil
	}
	return nil, catalog.ErrProductNotFound
}

func (m *mockCatalog) ToppingByID(ctx context.Context, id string) (*catalog.Topping, error) {
	if t, ok := m.toppings[id]; ok {
		return t, nil
	}
	return nil, catalog.ErrToppingNotFound
}

type mockTaxes struct {
	cfg *tax.Configuration
}

func (m *mockTaxes) ForTenant(ctx context.Context, tenantID string) (*tax.Configuration, error) {
	if m.cfg == nil {
		return nil, tax.ErrNotConfigured
	}
	return m.cfg, nil
}

type mockDelivery struct {
	cfg *delivery.Configuration
}

func (m *mockDelivery) ForTenant(ctx context.Context, tenantID string) (*delivery.Configuration, error) {
	if m.cfg == nil {
		return nil, delivery.ErrNotConfigured
	}
	return m.cfg, nil
}

const testTenant = "tenant-1"

func newTestCalculator(cat *mockCatalog, taxes *mockTaxes, del *mockDelivery) *Calculator {
	c := NewCalculator(cat, taxes, del)
	c.clock = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func simpleProduct(id string, price float64) *catalog.Product {
	return &catalog.Product{
		ID:          id,
		TenantID:    testTenant,
		IsPublished: true,
		PriceConfiguration: catalog.PriceConfiguration{
			"size": {PriceType: "base", AvailableOptions: map[string]float64{"regular": price}},
		},
	}
}

func simpleItem(id string, qty int, totalPrice float64) OrderItem {
	return OrderItem{
		ID:                 id,
		Qty:                qty,
		PriceConfiguration: map[string]string{"size": "regular"},
		TotalPrice:         totalPrice,
	}
}

func hasError(result *ValidationResult, substr string) bool {
	for _, e := range result.Errors {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

// --- TESTS ---

// Item costs 200, qty 2, no coupon, no delivery config, 10% tax:
// subtotal 400, tax 40, total 440.
func TestValidateOrderPricing_HappyPath(t *testing.T) {
	cat := &mockCatalog{products: map[string]*catalog.Product{"p1": simpleProduct("p1", 200)}}
	taxes := &mockTaxes{cfg: &tax.Configuration{
		TenantID: testTenant,
		Taxes:    []tax.Component{{Name: "GST", Rate: 10, IsActive: true}},
	}}
	calc := newTestCalculator(cat, taxes, &mockDelivery{})

	result, err := calc.ValidateOrderPricing(context.Background(),
		[]OrderItem{simpleItem("p1", 2, 400)}, testTenant, 440, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.IsValid {
		t.Fatalf("expected valid, got errors: %v", result.Errors)
	}
	if result.SubTotal != 400 {
		t.Errorf("subTotal = %v, want 400", result.SubTotal)
	}
	if result.DiscountAmount != 0 {
		t.Errorf("discount = %v, want 0", result.DiscountAmount)
	}
	if result.DeliveryCharge != 0 {
		t.Errorf("deliveryCharge = %v, want 0", result.DeliveryCharge)
	}
	if result.TaxTotal != 40 {
		t.Errorf("taxTotal = %v, want 40", result.TaxTotal)
	}
	if result.FinalTotal != 440 {
		t.Errorf("finalTotal = %v, want 440", result.FinalTotal)
	}
}

func TestValidateOrderPricing_TotalMismatch(t *testing.T) {
	cat := &mockCatalog{products: map[string]*catalog.Product{"p1": simpleProduct("p1", 200)}}
	taxes := &mockTaxes{cfg: &tax.Configuration{
		TenantID: testTenant,
		Taxes:    []tax.Component{{Name: "GST", Rate: 10, IsActive: true}},
	}}
	calc := newTestCalculator(cat, taxes, &mockDelivery{})

	result, err := calc.ValidateOrderPricing(context.Background(),
		[]OrderItem{simpleItem("p1", 2, 400)}, testTenant, 450, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.IsValid {
		t.Fatal("expected invalid result for wrong total")
	}
	if !hasError(result, "Total mismatch") {
		t.Errorf("expected total mismatch error, got %v", result.Errors)
	}
	// Computed figures still present for diagnosis.
	if result.FinalTotal != 440 {
		t.Errorf("finalTotal = %v, want 440", result.FinalTotal)
	}
}

// Subtotal 500, 10% coupon -> discount 50; tiers {0:40, 300:20} against 450
// post-discount -> tier 300 applies -> delivery 20.
func TestValidateOrderPricing_CouponAndDeliveryTiers(t *testing.T) {
	cat := &mockCatalog{products: map[string]*catalog.Product{"p1": simpleProduct("p1", 500)}}
	del := &mockDelivery{cfg: &delivery.Configuration{
		TenantID: testTenant,
		IsActive: true,
		OrderValueTiers: []delivery.OrderValueTier{
			{MinOrderValue: 0, DeliveryCharge: 40},
			{MinOrderValue: 300, DeliveryCharge: 20},
		},
	}}
	calc := newTestCalculator(cat, &mockTaxes{}, del)

	cpn := &coupon.Coupon{
		Code:      "SAVE10",
		Discount:  10,
		ValidUpto: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		TenantID:  testTenant,
	}

	// total = 500 - 50 + 0 tax + 20 delivery = 470
	result, err := calc.ValidateOrderPricing(context.Background(),
		[]OrderItem{simpleItem("p1", 1, 500)}, testTenant, 470, cpn, nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.IsValid {
		t.Fatalf("expected valid, got errors: %v", result.Errors)
	}
	if result.DiscountAmount != 50 {
		t.Errorf("discount = %v, want 50", result.DiscountAmount)
	}
	if result.DeliveryCharge != 20 {
		t.Errorf("deliveryCharge = %v, want 20", result.DeliveryCharge)
	}
	if result.DeliveryInfo == nil || result.DeliveryInfo.AppliedTier == nil ||
		result.DeliveryInfo.AppliedTier.MinOrderValue != 300 {
		t.Errorf("expected tier with floor 300, got %+v", result.DeliveryInfo)
	}
}

func TestValidateOrderPricing_ExpiredCoupon(t *testing.T) {
	cat := &mockCatalog{products: map[string]*catalog.Product{"p1": simpleProduct("p1", 100)}}
	calc := newTestCalculator(cat, &mockTaxes{}, &mockDelivery{})

	cpn := &coupon.Coupon{
		Code:      "OLD",
		Discount:  10,
		ValidUpto: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		TenantID:  testTenant,
	}

	result, err := calc.ValidateOrderPricing(context.Background(),
		[]OrderItem{simpleItem("p1", 1, 100)}, testTenant, 100, cpn, nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.IsValid {
		t.Fatal("expected invalid result for expired coupon")
	}
	if !hasError(result, "Coupon has expired") {
		t.Errorf("expected expired coupon error, got %v", result.Errors)
	}
	if result.DiscountAmount != 0 {
		t.Errorf("expired coupon must not discount, got %v", result.DiscountAmount)
	}
}

func TestValidateOrderPricing_ItemErrorsAccumulate(t *testing.T) {
	cat := &mockCatalog{
		products: map[string]*catalog.Product{
			"published": simpleProduct("published", 100),
			"foreign": {
				ID:          "foreign",
				TenantID:    "other-tenant",
				IsPublished: true,
			},
			"draft": {
				ID:          "draft",
				TenantID:    testTenant,
				IsPublished: false,
			},
		},
	}
	calc := newTestCalculator(cat, &mockTaxes{}, &mockDelivery{})

	items := []OrderItem{
		{ID: "missing", Qty: 1, TotalPrice: 50},
		{ID: "foreign", Qty: 1, TotalPrice: 50},
		{ID: "draft", Qty: 1, TotalPrice: 50},
		simpleItem("published", 1, 100),
	}

	result, err := calc.ValidateOrderPricing(context.Background(), items, testTenant, 100, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.IsValid {
		t.Fatal("expected invalid result")
	}
	// All three broken items reported, not just the first.
	for _, want := range []string{"Product not found: missing", "does not belong to tenant", "is not available"} {
		if !hasError(result, want) {
			t.Errorf("missing expected error %q in %v", want, result.Errors)
		}
	}
	if len(result.ItemDetails) != 4 {
		t.Errorf("expected 4 item details, got %d", len(result.ItemDetails))
	}
	// The valid item still contributed to the subtotal.
	if result.SubTotal != 100 {
		t.Errorf("subTotal = %v, want 100", result.SubTotal)
	}
}

func TestValidateOrderPricing_UnknownConfigKeyAndOption(t *testing.T) {
	cat := &mockCatalog{products: map[string]*catalog.Product{"p1": simpleProduct("p1", 100)}}
	calc := newTestCalculator(cat, &mockTaxes{}, &mockDelivery{})

	items := []OrderItem{
		{ID: "p1", Qty: 1, PriceConfiguration: map[string]string{"crust": "thin"}, TotalPrice: 100},
	}
	result, err := calc.ValidateOrderPricing(context.Background(), items, testTenant, 100, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasError(result, `Invalid configuration key "crust"`) {
		t.Errorf("expected unknown key error, got %v", result.Errors)
	}

	items = []OrderItem{
		{ID: "p1", Qty: 1, PriceConfiguration: map[string]string{"size": "jumbo"}, TotalPrice: 100},
	}
	result, err = calc.ValidateOrderPricing(context.Background(), items, testTenant, 100, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasError(result, `Invalid option "jumbo"`) {
		t.Errorf("expected unknown option error, got %v", result.Errors)
	}
}

func TestValidateOrderPricing_ToppingPriceExact(t *testing.T) {
	cat := &mockCatalog{
		products: map[string]*catalog.Product{"p1": simpleProduct("p1", 100)},
		toppings: map[string]*catalog.Topping{
			"t1": {ID: "t1", TenantID: testTenant, Price: 30, IsPublished: true},
		},
	}
	calc := newTestCalculator(cat, &mockTaxes{}, &mockDelivery{})

	item := simpleItem("p1", 1, 130)
	item.Toppings = []OrderTopping{{ID: "t1", Price: 30}}

	result, err := calc.ValidateOrderPricing(context.Background(), []OrderItem{item}, testTenant, 130, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsValid {
		t.Fatalf("expected valid, got errors: %v", result.Errors)
	}

	// Even a sub-tolerance topping difference must fail.
	item.Toppings = []OrderTopping{{ID: "t1", Price: 30.005}}
	item.TotalPrice = 130.005
	result, err = calc.ValidateOrderPricing(context.Background(), []OrderItem{item}, testTenant, 130.005, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsValid {
		t.Fatal("expected invalid result for topping price drift")
	}
	if !hasError(result, "Topping price mismatch") {
		t.Errorf("expected topping mismatch error, got %v", result.Errors)
	}
}

func TestValidateOrderPricing_SubmittedComponentMismatches(t *testing.T) {
	cat := &mockCatalog{products: map[string]*catalog.Product{"p1": simpleProduct("p1", 500)}}
	taxes := &mockTaxes{cfg: &tax.Configuration{
		TenantID: testTenant,
		Taxes:    []tax.Component{{Name: "VAT", Rate: 10, IsActive: true}},
	}}
	calc := newTestCalculator(cat, taxes, &mockDelivery{})

	wrongDiscount := 25.0
	wrongTax := 99.0
	wrongDelivery := 5.0

	result, err := calc.ValidateOrderPricing(context.Background(),
		[]OrderItem{simpleItem("p1", 1, 500)}, testTenant, 550,
		nil, &wrongDiscount, &wrongTax, &wrongDelivery)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"Discount mismatch", "Tax mismatch", "Delivery charge mismatch"} {
		if !hasError(result, want) {
			t.Errorf("missing expected error %q in %v", want, result.Errors)
		}
	}
}

func TestValidateOrderPricing_InactiveTaxSkipped(t *testing.T) {
	cat := &mockCatalog{products: map[string]*catalog.Product{"p1": simpleProduct("p1", 100)}}
	taxes := &mockTaxes{cfg: &tax.Configuration{
		TenantID: testTenant,
		Taxes: []tax.Component{
			{Name: "CGST", Rate: 9, IsActive: true},
			{Name: "SGST", Rate: 9, IsActive: false},
		},
	}}
	calc := newTestCalculator(cat, taxes, &mockDelivery{})

	result, err := calc.ValidateOrderPricing(context.Background(),
		[]OrderItem{simpleItem("p1", 1, 100)}, testTenant, 109, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsValid {
		t.Fatalf("expected valid, got errors: %v", result.Errors)
	}
	if len(result.Taxes) != 1 || result.Taxes[0].Name != "CGST" {
		t.Errorf("expected only active CGST applied, got %+v", result.Taxes)
	}
	if result.TaxTotal != 9 {
		t.Errorf("taxTotal = %v, want 9", result.TaxTotal)
	}
}

// Two identical calls must produce identical output.
func TestValidateOrderPricing_Deterministic(t *testing.T) {
	cat := &mockCatalog{products: map[string]*catalog.Product{"p1": simpleProduct("p1", 333.33)}}
	taxes := &mockTaxes{cfg: &tax.Configuration{
		TenantID: testTenant,
		Taxes:    []tax.Component{{Name: "GST", Rate: 7.5, IsActive: true}},
	}}
	calc := newTestCalculator(cat, taxes, &mockDelivery{})
	items := []OrderItem{simpleItem("p1", 3, 999.99)}

	first, err := calc.ValidateOrderPricing(context.Background(), items, testTenant, 1074.99, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := calc.ValidateOrderPricing(context.Background(), items, testTenant, 1074.99, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.SubTotal != second.SubTotal || first.TaxTotal != second.TaxTotal || first.FinalTotal != second.FinalTotal {
		t.Errorf("calculator is not deterministic: %+v vs %+v", first, second)
	}
}

func TestValidateOrderPricing_WithinTolerance(t *testing.T) {
	cat := &mockCatalog{products: map[string]*catalog.Product{"p1": simpleProduct("p1", 100)}}
	calc := newTestCalculator(cat, &mockTaxes{}, &mockDelivery{})

	// 0.005 under the computed total is inside the +-0.01 window.
	result, err := calc.ValidateOrderPricing(context.Background(),
		[]OrderItem{simpleItem("p1", 1, 100.005)}, testTenant, 99.995, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsValid {
		t.Fatalf("expected valid within tolerance, got errors: %v", result.Errors)
	}

	// A difference of exactly 0.01 sits on the boundary of the window and
	// passes, at the item level like everywhere else. A free promotional
	// item gives the one diff that is exactly representable.
	freeCat := &mockCatalog{products: map[string]*catalog.Product{"promo": simpleProduct("promo", 0)}}
	boundaryCalc := newTestCalculator(freeCat, &mockTaxes{}, &mockDelivery{})
	result, err = boundaryCalc.ValidateOrderPricing(context.Background(),
		[]OrderItem{simpleItem("promo", 1, 0.01)}, testTenant, 0, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsValid {
		t.Fatalf("expected exact-boundary diff to pass, got errors: %v", result.Errors)
	}
	if len(result.ItemDetails) != 1 || !result.ItemDetails[0].IsValid {
		t.Errorf("item-level boundary diff should be valid, got %+v", result.ItemDetails)
	}
}
