package catalog

import "time"

// PriceConfiguration maps a configuration key (e.g. "size", "crust") to the
// price table for its options. Options are a plain name -> price mapping
// regardless of how the upstream catalog service stored them.
type PriceConfiguration map[string]PriceConfig

// PriceConfig is the price table for one configuration key.
type PriceConfig struct {
	PriceType        string             `json:"priceType"`
	AvailableOptions map[string]float64 `json:"availableOptions"`
}

// Product is the local read-only snapshot of a catalog product, replicated
// from the catalog service via Kafka.
type Product struct {
	ID                 string             `json:"_id"`
	Name               string             `json:"name"`
	TenantID           string             `json:"tenantId"`
	IsPublished        bool               `json:"isPublished"`
	PriceConfiguration PriceConfiguration `json:"priceConfiguration"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// Topping is the local read-only snapshot of a catalog topping.
type Topping struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	TenantID    string    `json:"tenantId"`
	Price       float64   `json:"price"`
	IsPublished bool      `json:"isPublished"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
