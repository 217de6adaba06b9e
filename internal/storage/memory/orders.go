package memory

import (
	"context"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

var (
	_ order.Store = (*Orders)(nil)
	_ order.Tx    = (*checkoutTx)(nil)
)

// Orders is the order store view of a DB.
type Orders struct{ db *DB }

// Orders returns the order store.
func (db *DB) Orders() *Orders { return &Orders{db: db} }

// Checkout runs fn with a transaction whose writes are staged and applied
// together when fn succeeds. Locks taken through the transaction are held
// until it ends.
func (s *Orders) Checkout(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	tx := &checkoutTx{
		db:      s.db,
		carts:   map[string]bool{},
		coupons: map[string]bool{},
		used:    map[string]int{},
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// Get returns one order.
func (s *Orders) Get(_ context.Context, id string) (*order.Order, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	o, ok := s.db.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

// ListByUser returns the user's orders, newest first.
func (s *Orders) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	return s.list(order.Filter{UserID: userID}), nil
}

// List returns orders matching f, newest first.
func (s *Orders) List(_ context.Context, f order.Filter) ([]order.Order, error) {
	return s.list(f), nil
}

func (s *Orders) list(f order.Filter) []order.Order {
	s.db.mu.RLock()
	out := make([]order.Order, 0)
	for _, o := range s.db.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
	}
	s.db.mu.RUnlock()

	slices.SortFunc(out, func(a, b order.Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if f.Offset > 0 {
		out = out[min(f.Offset, len(out)):]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// UpdateStatus stores the mutable fields of o if its stored status is from.
func (s *Orders) UpdateStatus(_ context.Context, o *order.Order, from order.Status) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	stored, ok := s.db.orders[o.ID]
	if !ok {
		return order.ErrNotFound
	}
	if stored.Status != from {
		return order.ErrStatusChanged
	}
	stored.Status = o.Status
	stored.PaymentStatus = o.PaymentStatus
	stored.DeliveredAt = o.DeliveredAt
	stored.UpdatedAt = o.UpdatedAt
	s.db.orders[o.ID] = stored
	return nil
}

type checkoutTx struct {
	db      *DB
	unlocks []func()

	carts   map[string]bool // locked by this tx
	coupons map[string]bool // locked by this tx

	used        map[string]int // staged usage increments by code
	redemptions []coupon.Redemption
	orders      []order.Order
	cleared     []string
}

func (t *checkoutTx) LockCart(ctx context.Context, userID string) (*cart.Cart, error) {
	if !t.carts[userID] {
		unlock, err := t.db.cartLocks.lock(ctx, userID)
		if err != nil {
			return nil, errors.Wrap(err, "lock cart")
		}
		t.unlocks = append(t.unlocks, unlock)
		t.carts[userID] = true
	}
	if slices.Contains(t.cleared, userID) {
		return &cart.Cart{UserID: userID}, nil
	}
	return t.db.loadCart(userID), nil
}

func (t *checkoutTx) Products(ctx context.Context, ids []string) ([]product.Product, error) {
	return t.db.productsByIDs(ctx, ids)
}

func (t *checkoutTx) FindCoupon(_ context.Context, code string) (*coupon.Coupon, error) {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	c, ok := t.db.coupons[coupon.NormalizeCode(code)]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	c.UsedCount += t.used[c.Code]
	return &c, nil
}

func (t *checkoutTx) LockCoupon(ctx context.Context, code string) (*coupon.Coupon, error) {
	code = coupon.NormalizeCode(code)
	if err := t.lockCoupon(ctx, code); err != nil {
		return nil, err
	}
	return t.FindCoupon(ctx, code)
}

func (t *checkoutTx) lockCoupon(ctx context.Context, code string) error {
	if t.coupons[code] {
		return nil
	}
	unlock, err := t.db.couponLocks.lock(ctx, code)
	if err != nil {
		return errors.Wrap(err, "lock coupon")
	}
	t.unlocks = append(t.unlocks, unlock)
	t.coupons[code] = true
	return nil
}

func (t *checkoutTx) CountRedemptions(_ context.Context, couponID, userID string) (int, error) {
	t.db.mu.RLock()
	n := t.db.countRedemptions(couponID, userID)
	t.db.mu.RUnlock()
	for _, r := range t.redemptions {
		if r.CouponID == couponID && r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (t *checkoutTx) Redeem(ctx context.Context, expected int, r coupon.Redemption) (bool, error) {
	if err := t.lockCoupon(ctx, r.Code); err != nil {
		return false, err
	}
	t.db.mu.RLock()
	c, ok := t.db.coupons[r.Code]
	t.db.mu.RUnlock()
	if !ok {
		return false, coupon.ErrNotFound
	}
	if c.UsedCount+t.used[r.Code] != expected {
		return false, nil
	}
	t.used[r.Code]++
	t.redemptions = append(t.redemptions, r)
	return true, nil
}

func (t *checkoutTx) CreateOrder(_ context.Context, o *order.Order) error {
	t.db.mu.RLock()
	_, exists := t.db.orders[o.ID]
	t.db.mu.RUnlock()
	if exists {
		return errors.Errorf("order %s already exists", o.ID)
	}
	t.orders = append(t.orders, *o)
	return nil
}

func (t *checkoutTx) ClearCart(_ context.Context, userID string) error {
	if !t.carts[userID] {
		return errors.Errorf("cart %s not locked", userID)
	}
	t.cleared = append(t.cleared, userID)
	return nil
}

func (t *checkoutTx) commit() {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	for code, n := range t.used {
		c := t.db.coupons[code]
		c.UsedCount += n
		t.db.coupons[code] = c
	}
	t.db.redemptions = append(t.db.redemptions, t.redemptions...)
	for _, o := range t.orders {
		t.db.orders[o.ID] = o
	}
	for _, userID := range t.cleared {
		delete(t.db.carts, userID)
	}
}

func (t *checkoutTx) release() {
	for i := len(t.unlocks) - 1; i >= 0; i-- {
		t.unlocks[i]()
	}
	t.unlocks = nil
}
