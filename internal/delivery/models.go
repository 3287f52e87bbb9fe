package delivery

import (
	"context"
	"errors"
	"time"
)

var ErrNotConfigured = errors.New("delivery configuration not found for tenant")

// OrderValueTier maps an order-value floor to a fixed delivery charge.
// Higher order value, lower charge.
type OrderValueTier struct {
	MinOrderValue  float64 `json:"minOrderValue"`
	DeliveryCharge float64 `json:"deliveryCharge"`
}

// Configuration is the per-tenant delivery charge policy.
type Configuration struct {
	TenantID              string           `json:"tenantId"`
	IsActive              bool             `json:"isActive"`
	OrderValueTiers       []OrderValueTier `json:"orderValueTiers"`
	FreeDeliveryThreshold float64          `json:"freeDeliveryThreshold,omitempty"`
	UpdatedAt             time.Time        `json:"updatedAt"`
}

// ChargeResult explains how a delivery charge was resolved.
type ChargeResult struct {
	DeliveryCharge     float64         `json:"deliveryCharge"`
	IsFreeDelivery     bool            `json:"isFreeDelivery"`
	FreeDeliveryReason string          `json:"freeDeliveryReason,omitempty"`
	AppliedTier        *OrderValueTier `json:"appliedTier,omitempty"`
}

// Store reads tenant delivery configuration.
type Store interface {
	ForTenant(ctx context.Context, tenantID string) (*Configuration, error)
	Upsert(ctx context.Context, cfg *Configuration) error
}
