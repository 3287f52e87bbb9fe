package catalog

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheTTL = 10 * time.Minute

// CachedStore wraps a Store with a redis read-through cache for the pricing
// hot path. Cache misses and redis failures fall back to the inner store;
// upserts and deletes invalidate.
type CachedStore struct {
	inner Store
	rdb   *redis.Client
}

func NewCachedStore(inner Store, rdb *redis.Client) *CachedStore {
	return &CachedStore{inner: inner, rdb: rdb}
}

func productKey(id string) string { return "catalog:product:" + id }
func toppingKey(id string) string { return "catalog:topping:" + id }

func (c *CachedStore) ProductByID(ctx context.Context, id string) (*Product, error) {
	if data, err := c.rdb.Get(ctx, productKey(id)).Bytes(); err == nil {
		var p Product
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
	}

	p, err := c.inner.ProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.setCache(ctx, productKey(id), p)
	return p, nil
}

func (c *CachedStore) ToppingByID(ctx context.Context, id string) (*Topping, error) {
	if data, err := c.rdb.Get(ctx, toppingKey(id)).Bytes(); err == nil {
		var t Topping
		if err := json.Unmarshal(data, &t); err == nil {
			return &t, nil
		}
	}

	t, err := c.inner.ToppingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.setCache(ctx, toppingKey(id), t)
	return t, nil
}

func (c *CachedStore) UpsertProduct(ctx context.Context, p *Product) error {
	if err := c.inner.UpsertProduct(ctx, p); err != nil {
		return err
	}
	c.invalidate(ctx, productKey(p.ID))
	return nil
}

func (c *CachedStore) UpsertTopping(ctx context.Context, t *Topping) error {
	if err := c.inner.UpsertTopping(ctx, t); err != nil {
		return err
	}
	c.invalidate(ctx, toppingKey(t.ID))
	return nil
}

func (c *CachedStore) DeleteProduct(ctx context.Context, id string) error {
	if err := c.inner.DeleteProduct(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, productKey(id))
	return nil
}

func (c *CachedStore) DeleteTopping(ctx context.Context, id string) error {
	if err := c.inner.DeleteTopping(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, toppingKey(id))
	return nil
}

func (c *CachedStore) setCache(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, cacheTTL).Err(); err != nil {
		log.Printf("[WARN] catalog cache set failed for %s: %v", key, err)
	}
}

func (c *CachedStore) invalidate(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		log.Printf("[WARN] catalog cache invalidation failed for %s: %v", key, err)
	}
}
