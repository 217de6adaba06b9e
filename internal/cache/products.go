package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/storefront/internal/domain/product"
)

var _ product.Repository = (*Products)(nil)

// Products is a read-through cache in front of a product.Repository. Single
// products are cached; filtered listings always hit the repository. Redis
// faults are logged and fall back to the repository.
type Products struct {
	next   product.Repository
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	group  singleflight.Group
}

// NewProducts wraps next with a cache whose entries expire after ttl.
func NewProducts(next product.Repository, client redis.UniversalClient, prefix string, ttl time.Duration) *Products {
	return &Products{next: next, client: client, prefix: prefix, ttl: ttl}
}

func (c *Products) key(id string) string {
	return fmt.Sprintf("%s:product:%s", c.prefix, id)
}

// List delegates to the repository.
func (c *Products) List(ctx context.Context, f product.Filter) ([]product.Product, error) {
	return c.next.List(ctx, f)
}

// GetByID returns the cached product or loads it once for all concurrent
// callers.
func (c *Products) GetByID(ctx context.Context, id string) (*product.Product, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err == nil {
		var p product.Product
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		zctx.From(ctx).Warn("Product cache read failed", zap.String("product_id", id), zap.Error(err))
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		p, err := c.next.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		c.store(ctx, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p := *v.(*product.Product)
	return &p, nil
}

// GetByIDs serves what it can from the cache and loads the rest in one call.
// The result follows the order of ids, like the repository's.
func (c *Products) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return []product.Product{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}

	found := make(map[string]product.Product, len(ids))
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		zctx.From(ctx).Warn("Product cache read failed", zap.Error(err))
		vals = nil
	}
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var p product.Product
		if err := json.Unmarshal([]byte(s), &p); err == nil {
			found[p.ID] = p
		}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		loaded, err := c.next.GetByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for i := range loaded {
			found[loaded[i].ID] = loaded[i]
			c.store(ctx, &loaded[i])
		}
	}

	out := make([]product.Product, 0, len(found))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			out = append(out, p)
			delete(found, id)
		}
	}
	return out, nil
}

// Invalidate drops cached entries for ids.
func (c *Products) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "invalidate products")
	}
	return nil
}

func (c *Products) store(ctx context.Context, p *product.Product) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(p.ID), data, c.ttl).Err(); err != nil {
		zctx.From(ctx).Warn("Product cache write failed", zap.String("product_id", p.ID), zap.Error(err))
	}
}
