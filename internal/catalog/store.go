package catalog

import (
	"context"
	"errors"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrToppingNotFound = errors.New("topping not found")
)

// Store is the snapshot storage for replicated catalog records. The billing
// service only ever reads; writes come from the sync consumer.
type Store interface {
	ProductByID(ctx context.Context, id string) (*Product, error)
	ToppingByID(ctx context.Context, id string) (*Topping, error)

	// UpsertProduct and UpsertTopping are idempotent: replaying the same
	// catalog event is safe.
	UpsertProduct(ctx context.Context, p *Product) error
	UpsertTopping(ctx context.Context, t *Topping) error
	DeleteProduct(ctx context.Context, id string) error
	DeleteTopping(ctx context.Context, id string) error
}
