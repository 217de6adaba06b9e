package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xenking/storefront/internal/domain/order"
)

var _ order.Idempotency = (*Idempotency)(nil)

// Idempotency keeps checkout idempotency keys in process memory.
type Idempotency struct {
	mu      sync.Mutex
	ttl     time.Duration
	claim   time.Duration
	now     func() time.Time
	swept   time.Time
	entries map[string]idempotencyEntry
}

type idempotencyEntry struct {
	orderID string
	expires time.Time
}

// NewIdempotency creates a key store that keeps completed keys for ttl and
// releases unfinished claims after at most claim (see order.ClaimTTL).
func NewIdempotency(ttl, claim time.Duration) *Idempotency {
	return &Idempotency{ttl: ttl, claim: claim, now: time.Now, entries: map[string]idempotencyEntry{}}
}

// Begin claims key unless an unexpired claim exists.
func (s *Idempotency) Begin(ctx context.Context, key string) (string, bool, error) {
	lease := order.ClaimTTL(ctx, s.claim)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweep(now, lease)
	if e, ok := s.entries[key]; ok && now.Before(e.expires) {
		return e.orderID, false, nil
	}
	s.entries[key] = idempotencyEntry{expires: now.Add(lease)}
	return "", true, nil
}

// sweep drops expired entries, at most once per every.
func (s *Idempotency) sweep(now time.Time, every time.Duration) {
	if now.Sub(s.swept) < every {
		return
	}
	s.swept = now
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}
}

// Complete records the order placed under key.
func (s *Idempotency) Complete(_ context.Context, key, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = idempotencyEntry{orderID: orderID, expires: s.now().Add(s.ttl)}
	return nil
}

// Abort forgets key.
func (s *Idempotency) Abort(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
