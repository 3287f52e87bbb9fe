package pricing

import "github.com/KoushikPanda1729/billing-service/internal/delivery"

// OrderTopping is a client-submitted topping selection with its price
// snapshot. Topping prices must match the catalog exactly.
type OrderTopping struct {
	ID    string  `json:"_id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// OrderItem is one client-submitted order line. PriceConfiguration maps a
// configuration key to the selected option name.
type OrderItem struct {
	ID                 string            `json:"_id"`
	Name               string            `json:"name"`
	Qty                int               `json:"qty"`
	PriceConfiguration map[string]string `json:"priceConfiguration"`
	Toppings           []OrderTopping    `json:"toppings"`
	TotalPrice         float64           `json:"totalPrice"`
}

// TaxBreakdownItem is one applied tax line on an order.
type TaxBreakdownItem struct {
	Name   string  `json:"name"`
	Rate   float64 `json:"rate"`
	Amount float64 `json:"amount"`
}

// ItemDetail is the per-item diagnostic attached to a validation result.
type ItemDetail struct {
	ProductID       string  `json:"productId"`
	CalculatedPrice float64 `json:"calculatedPrice"`
	SubmittedPrice  float64 `json:"submittedPrice"`
	IsValid         bool    `json:"isValid"`
}

// ValidationResult carries every recomputed component plus the full list of
// mismatches. The financial fields are always populated, valid or not, so a
// failed validation can still be diagnosed in one round trip.
type ValidationResult struct {
	IsValid        bool                   `json:"isValid"`
	SubTotal       float64                `json:"subTotal"`
	DiscountAmount float64                `json:"discountAmount"`
	DeliveryCharge float64                `json:"deliveryCharge"`
	DeliveryInfo   *delivery.ChargeResult `json:"deliveryInfo,omitempty"`
	TaxableAmount  float64                `json:"taxableAmount"`
	Taxes          []TaxBreakdownItem     `json:"taxes"`
	TaxTotal       float64                `json:"taxTotal"`
	FinalTotal     float64                `json:"finalTotal"`
	Errors         []string               `json:"errors"`
	ItemDetails    []ItemDetail           `json:"itemDetails"`
}
