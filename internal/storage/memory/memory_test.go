package memory

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

func TestKeyedLock(t *testing.T) {
	var k keyedLock
	ctx := context.Background()

	unlockA, err := k.lock(ctx, "a")
	require.NoError(t, err)

	// A different key is independent.
	unlockB, err := k.lock(ctx, "b")
	require.NoError(t, err)
	unlockB()

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = k.lock(short, "a")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlockA()
	unlockA2, err := k.lock(ctx, "a")
	require.NoError(t, err)
	unlockA2()

	assert.Empty(t, k.locks)
}

func TestCarts_UpdateIsAtomic(t *testing.T) {
	db := New()
	carts := db.Carts()
	ctx := context.Background()

	_, err := carts.Update(ctx, "u1", func(c *cart.Cart) error {
		c.Add(cart.Item{ProductID: "p", Quantity: 1})
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = carts.Update(ctx, "u1", func(c *cart.Cart) error {
		c.Items = nil
		return boom
	})
	require.ErrorIs(t, err, boom)

	c, err := carts.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, c.Items, 1)
}

func TestCheckoutTx_StagedUntilCommit(t *testing.T) {
	db := New()
	db.PutProduct(product.Product{ID: "p", Price: decimal.NewFromInt(10)})
	db.PutCoupon(coupon.Coupon{ID: "c1", Code: "X", DiscountType: coupon.DiscountFixed, Value: decimal.NewFromInt(1), Active: true})
	db.PutCart(cart.Cart{UserID: "u1", Items: []cart.Item{{ProductID: "p", Quantity: 1}}})
	ctx := context.Background()

	err := db.Orders().Checkout(ctx, func(ctx context.Context, tx order.Tx) error {
		_, err := tx.LockCart(ctx, "u1")
		require.NoError(t, err)
		c, err := tx.LockCoupon(ctx, "x")
		require.NoError(t, err)

		ok, err := tx.Redeem(ctx, c.UsedCount, coupon.Redemption{ID: "r1", CouponID: "c1", Code: "X", UserID: "u1"})
		require.NoError(t, err)
		require.True(t, ok)

		// Stale expectation loses.
		ok, err = tx.Redeem(ctx, c.UsedCount, coupon.Redemption{ID: "r2", CouponID: "c1", Code: "X", UserID: "u1"})
		require.NoError(t, err)
		require.False(t, ok)

		n, err := tx.CountRedemptions(ctx, "c1", "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		require.NoError(t, tx.CreateOrder(ctx, &order.Order{ID: "o1", UserID: "u1"}))
		require.NoError(t, tx.ClearCart(ctx, "u1"))

		committed, err := db.Coupons().FindByCode(ctx, "X")
		require.NoError(t, err)
		assert.Equal(t, 0, committed.UsedCount)
		return nil
	})
	require.NoError(t, err)

	c, err := db.Coupons().FindByCode(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsedCount)
	_, err = db.Orders().Get(ctx, "o1")
	require.NoError(t, err)
	crt, err := db.Carts().Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, crt.IsEmpty())
	assert.Empty(t, db.couponLocks.locks)
	assert.Empty(t, db.cartLocks.locks)
}

func TestCheckoutTx_ClearRequiresLock(t *testing.T) {
	db := New()
	err := db.Orders().Checkout(context.Background(), func(ctx context.Context, tx order.Tx) error {
		return tx.ClearCart(ctx, "u1")
	})
	require.Error(t, err)
}

func TestOrders_UpdateStatusIsConditional(t *testing.T) {
	db := New()
	ctx := context.Background()
	require.NoError(t, db.Orders().Checkout(ctx, func(ctx context.Context, tx order.Tx) error {
		return tx.CreateOrder(ctx, &order.Order{ID: "o1", Status: order.StatusPending})
	}))

	o, err := db.Orders().Get(ctx, "o1")
	require.NoError(t, err)
	o.Status = order.StatusProcessing
	require.NoError(t, db.Orders().UpdateStatus(ctx, o, order.StatusPending))

	o.Status = order.StatusCancelled
	require.ErrorIs(t, db.Orders().UpdateStatus(ctx, o, order.StatusPending), order.ErrStatusChanged)
}

func TestIdempotency(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewIdempotency(time.Minute, 10*time.Second)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_, started, err := s.Begin(ctx, "k")
	require.NoError(t, err)
	require.True(t, started)

	id, started, err := s.Begin(ctx, "k")
	require.NoError(t, err)
	assert.False(t, started)
	assert.Empty(t, id)

	require.NoError(t, s.Complete(ctx, "k", "o1"))
	id, started, err = s.Begin(ctx, "k")
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, "o1", id)

	now = now.Add(2 * time.Minute)
	_, started, err = s.Begin(ctx, "k")
	require.NoError(t, err)
	assert.True(t, started)
}

func TestIdempotency_ClaimsExpireAndAreSwept(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewIdempotency(time.Hour, 10*time.Second)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_, started, err := s.Begin(ctx, "stuck")
	require.NoError(t, err)
	require.True(t, started)
	for _, k := range []string{"a", "b", "c"} {
		_, _, err := s.Begin(ctx, k)
		require.NoError(t, err)
		require.NoError(t, s.Complete(ctx, k, "order-"+k))
	}

	now = now.Add(11 * time.Second)
	_, started, err = s.Begin(ctx, "stuck")
	require.NoError(t, err)
	assert.True(t, started, "unfinished claim expired before the retention period")

	now = now.Add(2 * time.Hour)
	_, _, err = s.Begin(ctx, "fresh")
	require.NoError(t, err)
	assert.Len(t, s.entries, 1, "expired keys are swept")
	assert.Contains(t, s.entries, "fresh")
}
