// Package cache holds the Redis-backed helpers of the storefront: checkout
// idempotency keys and a read-through product cache.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/internal/domain/order"
)

// pendingMarker is stored under a key whose first request is still running.
const pendingMarker = "-"

var _ order.Idempotency = (*Idempotency)(nil)

// Idempotency stores checkout idempotency keys in Redis, so retries are
// recognized across API replicas.
type Idempotency struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	claim  time.Duration
}

// NewIdempotency creates a key store that keeps completed keys for ttl and
// releases unfinished claims after at most claim (see order.ClaimTTL).
func NewIdempotency(client redis.UniversalClient, prefix string, ttl, claim time.Duration) *Idempotency {
	return &Idempotency{client: client, prefix: prefix, ttl: ttl, claim: claim}
}

func (s *Idempotency) key(k string) string {
	return fmt.Sprintf("%s:idem:%s", s.prefix, k)
}

// Begin claims key with SET NX for a short lease. When the claim fails it
// returns the order id recorded for the key, or "" while the first request is
// still running.
func (s *Idempotency) Begin(ctx context.Context, key string) (string, bool, error) {
	claimed, err := s.client.SetNX(ctx, s.key(key), pendingMarker, order.ClaimTTL(ctx, s.claim)).Result()
	if err != nil {
		return "", false, errors.Wrap(err, "claim idempotency key")
	}
	if claimed {
		return "", true, nil
	}

	v, err := s.client.Get(ctx, s.key(key)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Released between the two calls; the caller retries later.
		return "", false, nil
	case err != nil:
		return "", false, errors.Wrap(err, "read idempotency key")
	case v == pendingMarker:
		return "", false, nil
	default:
		return v, false, nil
	}
}

// Complete records the order placed under key.
func (s *Idempotency) Complete(ctx context.Context, key, orderID string) error {
	if err := s.client.Set(ctx, s.key(key), orderID, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "complete idempotency key")
	}
	return nil
}

// Abort releases key so the request can be retried.
func (s *Idempotency) Abort(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Wrap(err, "release idempotency key")
	}
	return nil
}
