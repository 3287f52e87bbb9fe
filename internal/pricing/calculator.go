package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/KoushikPanda1729/billing-service/internal/catalog"
	"github.com/KoushikPanda1729/billing-service/internal/coupon"
	"github.com/KoushikPanda1729/billing-service/internal/delivery"
	"github.com/KoushikPanda1729/billing-service/internal/tax"
)

// Tolerance is the accepted difference between a submitted figure and the
// recomputed one. Topping prices are exempt: those must match exactly.
const Tolerance = 0.01

// CatalogReader is the slice of the catalog snapshot the calculator needs.
type CatalogReader interface {
	ProductByID(ctx context.Context, id string) (*catalog.Product, error)
	ToppingByID(ctx context.Context, id string) (*catalog.Topping, error)
}

// TaxReader fetches the tenant tax table.
type TaxReader interface {
	ForTenant(ctx context.Context, tenantID string) (*tax.Configuration, error)
}

// DeliveryReader fetches the tenant delivery policy.
type DeliveryReader interface {
	ForTenant(ctx context.Context, tenantID string) (*delivery.Configuration, error)
}

// Calculator recomputes the authoritative price of an order from the catalog
// snapshot and tenant configuration. The server's figures win; the client's
// figures are only compared against them.
type Calculator struct {
	catalog  CatalogReader
	taxes    TaxReader
	delivery DeliveryReader
	// clock allows tests to pin "now" for coupon expiry checks.
	clock func() time.Time
}

func NewCalculator(catalogReader CatalogReader, taxReader TaxReader, deliveryReader DeliveryReader) *Calculator {
	return &Calculator{
		catalog:  catalogReader,
		taxes:    taxReader,
		delivery: deliveryReader,
		clock:    time.Now,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// calculateItemPrice prices one order line against the catalog snapshot.
// A validation problem comes back as a message (the scan continues); only
// infrastructure failures return an error.
func (c *Calculator) calculateItemPrice(ctx context.Context, item OrderItem, tenantID string) (float64, string, error) {
	product, err := c.catalog.ProductByID(ctx, item.ID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return 0, fmt.Sprintf("Product not found: %s", item.ID), nil
	}
	if err != nil {
		return 0, "", err
	}

	if product.TenantID != tenantID {
		return 0, fmt.Sprintf("Product %s does not belong to tenant", item.ID), nil
	}
	if !product.IsPublished {
		return 0, fmt.Sprintf("Product %s is not available", item.ID), nil
	}

	var itemPrice float64

	for configKey, selectedOption := range item.PriceConfiguration {
		config, ok := product.PriceConfiguration[configKey]
		if !ok {
			return 0, fmt.Sprintf("Invalid configuration key %q for product %s", configKey, item.ID), nil
		}
		optionPrice, ok := config.AvailableOptions[selectedOption]
		if !ok {
			return 0, fmt.Sprintf("Invalid option %q for configuration %q in product %s", selectedOption, configKey, item.ID), nil
		}
		itemPrice += optionPrice
	}

	for _, topping := range item.Toppings {
		dbTopping, err := c.catalog.ToppingByID(ctx, topping.ID)
		if errors.Is(err, catalog.ErrToppingNotFound) {
			return 0, fmt.Sprintf("Topping not found: %s", topping.ID), nil
		}
		if err != nil {
			return 0, "", err
		}
		if dbTopping.TenantID != tenantID {
			return 0, fmt.Sprintf("Topping %s does not belong to tenant", topping.ID), nil
		}
		if !dbTopping.IsPublished {
			return 0, fmt.Sprintf("Topping %s is not available", topping.ID), nil
		}
		// Topping price must match exactly, no tolerance.
		if dbTopping.Price != topping.Price {
			return 0, fmt.Sprintf("Topping price mismatch for %s: expected %v, got %v", topping.ID, dbTopping.Price, topping.Price), nil
		}
		itemPrice += dbTopping.Price
	}

	qty := item.Qty
	if qty < 1 {
		qty = 1
	}
	return itemPrice * float64(qty), "", nil
}

// ValidateOrderPricing recomputes every price component and compares it to
// the submitted figures. All mismatches are accumulated, not just the first.
// Submitted discount/tax/delivery are optional; the total is mandatory.
func (c *Calculator) ValidateOrderPricing(
	ctx context.Context,
	items []OrderItem,
	tenantID string,
	submittedTotal float64,
	cpn *coupon.Coupon,
	submittedDiscount *float64,
	submittedTaxTotal *float64,
	submittedDeliveryCharge *float64,
) (*ValidationResult, error) {
	result := &ValidationResult{
		Errors:      []string{},
		ItemDetails: []ItemDetail{},
		Taxes:       []TaxBreakdownItem{},
	}

	var subTotal float64
	for _, item := range items {
		price, problem, err := c.calculateItemPrice(ctx, item, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to price item %s: %w", item.ID, err)
		}

		if problem != "" {
			result.Errors = append(result.Errors, problem)
			result.ItemDetails = append(result.ItemDetails, ItemDetail{
				ProductID:      item.ID,
				SubmittedPrice: item.TotalPrice,
			})
			continue
		}

		isItemValid := math.Abs(price-item.TotalPrice) <= Tolerance
		if !isItemValid {
			result.Errors = append(result.Errors,
				fmt.Sprintf("Price mismatch for item %s: calculated %v, submitted %v", item.ID, price, item.TotalPrice))
		}
		result.ItemDetails = append(result.ItemDetails, ItemDetail{
			ProductID:       item.ID,
			CalculatedPrice: price,
			SubmittedPrice:  item.TotalPrice,
			IsValid:         isItemValid,
		})
		subTotal += price
	}
	result.SubTotal = subTotal

	// Discount.
	var discountAmount float64
	if cpn != nil {
		if cpn.Expired(c.clock()) {
			result.Errors = append(result.Errors, "Coupon has expired")
		} else {
			discountAmount = round2(subTotal * cpn.Discount / 100)
		}
	}
	result.DiscountAmount = discountAmount

	if submittedDiscount != nil && math.Abs(discountAmount-*submittedDiscount) > Tolerance {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Discount mismatch: calculated %v, submitted %v", discountAmount, *submittedDiscount))
	}

	// Delivery charge on the post-discount base.
	afterDiscount := subTotal - discountAmount
	deliveryCfg, err := c.delivery.ForTenant(ctx, tenantID)
	if err != nil && !errors.Is(err, delivery.ErrNotConfigured) {
		return nil, fmt.Errorf("failed to fetch delivery configuration: %w", err)
	}
	if deliveryCfg != nil {
		info := delivery.CalculateCharge(deliveryCfg, afterDiscount)
		result.DeliveryInfo = &info
		result.DeliveryCharge = info.DeliveryCharge
	}

	if submittedDeliveryCharge != nil && math.Abs(result.DeliveryCharge-*submittedDeliveryCharge) > Tolerance {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Delivery charge mismatch: calculated %v, submitted %v", result.DeliveryCharge, *submittedDeliveryCharge))
	}

	// Taxable amount excludes delivery.
	taxableAmount := subTotal - discountAmount
	result.TaxableAmount = taxableAmount

	taxCfg, err := c.taxes.ForTenant(ctx, tenantID)
	if err != nil && !errors.Is(err, tax.ErrNotConfigured) {
		return nil, fmt.Errorf("failed to fetch tax configuration: %w", err)
	}
	var taxTotal float64
	if taxCfg != nil {
		for _, component := range taxCfg.Taxes {
			if !component.IsActive {
				continue
			}
			amount := round2(taxableAmount * component.Rate / 100)
			result.Taxes = append(result.Taxes, TaxBreakdownItem{
				Name:   component.Name,
				Rate:   component.Rate,
				Amount: amount,
			})
			taxTotal += amount
		}
	}
	taxTotal = round2(taxTotal)
	result.TaxTotal = taxTotal

	if submittedTaxTotal != nil && math.Abs(taxTotal-*submittedTaxTotal) > Tolerance {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Tax mismatch: calculated %v, submitted %v", taxTotal, *submittedTaxTotal))
	}

	finalTotal := round2(taxableAmount + taxTotal + result.DeliveryCharge)
	result.FinalTotal = finalTotal

	if math.Abs(finalTotal-submittedTotal) > Tolerance {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Total mismatch: calculated %v, submitted %v", finalTotal, submittedTotal))
	}

	result.IsValid = len(result.Errors) == 0
	return result, nil
}
