// Package memory implements every storefront repository in process memory.
//
// Records are guarded by one RWMutex held only for the duration of a map
// access. Checkout transactions additionally take per-cart and per-coupon
// locks, so checkouts of unrelated carts and coupons never wait for each other.
package memory

import (
	"context"
	"sync"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/returns"
	"github.com/xenking/storefront/internal/domain/user"
)

// DB is an in-memory storefront database.
type DB struct {
	mu sync.RWMutex

	products      map[string]product.Product
	users         map[string]user.User
	carts         map[string]cart.Cart
	coupons       map[string]coupon.Coupon // by code
	redemptions   []coupon.Redemption
	orders        map[string]order.Order
	returns       map[string]returns.Request
	returnByOrder map[string]string
	wishlists     map[string][]string
	apiKeys       map[string]auth.APIKeyInfo // by hash

	cartLocks   keyedLock
	couponLocks keyedLock
}

// New creates an empty DB.
func New() *DB {
	return &DB{
		products:      map[string]product.Product{},
		users:         map[string]user.User{},
		carts:         map[string]cart.Cart{},
		coupons:       map[string]coupon.Coupon{},
		orders:        map[string]order.Order{},
		returns:       map[string]returns.Request{},
		returnByOrder: map[string]string{},
		wishlists:     map[string][]string{},
		apiKeys:       map[string]auth.APIKeyInfo{},
	}
}

// PutProduct inserts or replaces a catalog product.
func (db *DB) PutProduct(p product.Product) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.products[p.ID] = p
}

// PutUser inserts or replaces a user.
func (db *DB) PutUser(u user.User) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[u.ID] = u
}

// PutCoupon inserts or replaces a coupon, including its usage counter.
func (db *DB) PutCoupon(c coupon.Coupon) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c.Code = coupon.NormalizeCode(c.Code)
	db.coupons[c.Code] = c
}

// PutAPIKey stores an API key record keyed by its hash.
func (db *DB) PutAPIKey(k auth.APIKeyInfo) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.apiKeys[k.KeyHash] = k
}

// Ping always succeeds.
func (db *DB) Ping(context.Context) error { return nil }

// keyedLock is a set of mutexes addressed by key. Entries exist only while
// someone holds or waits for them.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
}

type keyEntry struct {
	ch   chan struct{}
	refs int
}

// lock acquires the mutex for key, giving up when ctx is done.
func (k *keyedLock) lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*keyEntry{}
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			k.release(key, e)
		}, nil
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}
}

func (k *keyedLock) release(key string, e *keyEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}
