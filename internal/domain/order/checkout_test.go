package order_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/storage/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func intPtr(v int) *int { return &v }

var address = user.Address{FullName: "Grace", Line1: "7 Harbor Rd", City: "Portsmouth", PostalCode: "PO1", Country: "GB"}

type fixture struct {
	db  *memory.DB
	svc *order.Service
}

func newFixture(t *testing.T, policy coupon.Policy) *fixture {
	t.Helper()
	db := memory.New()
	db.PutProduct(product.Product{ID: "laptop", Name: "Laptop", Category: "tech", Price: dec("1200")})
	db.PutProduct(product.Product{ID: "desk", Name: "Desk", Category: "home", Price: dec("300")})
	db.PutProduct(product.Product{
		ID: "lamp", Name: "Lamp", Category: "home", Price: dec("400"),
		Boxes: []product.Box{{Type: "gift", Price: dec("50")}},
	})

	ledger, err := coupon.NewLedger(3, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.NoError(t, err)
	svc, err := order.NewService(db.Orders(), db.Users(), ledger, policy,
		tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.NoError(t, err)
	return &fixture{db: db, svc: svc}
}

func (f *fixture) fillCart(userID string, items ...cart.Item) {
	f.db.PutCart(cart.Cart{UserID: userID, Items: items})
	f.db.PutUser(user.User{ID: userID, Name: userID, DefaultAddress: address})
}

func (f *fixture) coupon(t *testing.T, code string) coupon.Coupon {
	t.Helper()
	c, err := f.db.Coupons().FindByCode(context.Background(), code)
	require.NoError(t, err)
	return *c
}

func (f *fixture) cart(t *testing.T, userID string) *cart.Cart {
	t.Helper()
	c, err := f.db.Carts().Get(context.Background(), userID)
	require.NoError(t, err)
	return c
}

func (f *fixture) orderCount(t *testing.T) int {
	t.Helper()
	all, err := f.db.Orders().List(context.Background(), order.Filter{})
	require.NoError(t, err)
	return len(all)
}

func TestPlaceOrder_PercentageCoupon(t *testing.T) {
	f := newFixture(t, coupon.PolicyLenient)
	f.db.PutCoupon(coupon.Coupon{ID: "c1", Code: "SAVE10", DiscountType: coupon.DiscountPercentage, Value: dec("10"), Active: true})
	f.fillCart("u1", cart.Item{ProductID: "laptop", Quantity: 1})

	res, err := f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{UserID: "u1", CouponCode: "save10"})
	require.NoError(t, err)

	o := res.Order
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, order.PaymentCOD, o.PaymentMethod)
	assert.Equal(t, "SAVE10", o.CouponCode)
	assert.True(t, dec("1200").Equal(o.Subtotal))
	assert.True(t, dec("120").Equal(o.Discount))
	assert.True(t, dec("1080").Equal(o.Total))
	assert.Equal(t, address, o.ShippingAddress)

	assert.Equal(t, 1, f.coupon(t, "SAVE10").UsedCount)
	assert.True(t, f.cart(t, "u1").IsEmpty())

	reds, err := f.db.Coupons().Redemptions(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, reds, 1)
	assert.Equal(t, o.ID, reds[0].OrderID)
}

func TestPlaceOrder_BelowMinimum(t *testing.T) {
	min500 := coupon.Coupon{ID: "c1", Code: "MIN500", DiscountType: coupon.DiscountFixed, Value: dec("50"), MinOrderAmount: dec("500"), Active: true}

	t.Run("lenient ignores the coupon", func(t *testing.T) {
		f := newFixture(t, coupon.PolicyLenient)
		f.db.PutCoupon(min500)
		f.fillCart("u1", cart.Item{ProductID: "desk", Quantity: 1})

		res, err := f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{UserID: "u1", CouponCode: "MIN500"})
		require.NoError(t, err)
		assert.Equal(t, "", res.Order.CouponCode)
		assert.True(t, res.Order.Discount.IsZero())
		assert.True(t, dec("300").Equal(res.Order.Total))
		require.ErrorIs(t, res.CouponIgnored, coupon.ErrNotApplicable)
		assert.Equal(t, 0, f.coupon(t, "MIN500").UsedCount)
	})

	t.Run("strict rejects the order", func(t *testing.T) {
		f := newFixture(t, coupon.PolicyStrict)
		f.db.PutCoupon(min500)
		f.fillCart("u1", cart.Item{ProductID: "desk", Quantity: 1})

		_, err := f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{UserID: "u1", CouponCode: "MIN500"})
		var rej *coupon.RejectedError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, coupon.ReasonBelowMinimum, rej.Reason)
		assert.False(t, f.cart(t, "u1").IsEmpty())
		assert.Equal(t, 0, f.orderCount(t))
	})
}

func TestPlaceOrder_PerUserLimit(t *testing.T) {
	for _, policy := range []coupon.Policy{coupon.PolicyLenient, coupon.PolicyStrict} {
		t.Run(string(policy), func(t *testing.T) {
			f := newFixture(t, policy)
			f.db.PutCoupon(coupon.Coupon{ID: "c1", Code: "FLAT100", DiscountType: coupon.DiscountFixed, Value: dec("100"), PerUserLimit: 1, Active: true})

			f.fillCart("u1", cart.Item{ProductID: "lamp", Quantity: 1})
			first, err := f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{UserID: "u1", CouponCode: "FLAT100"})
			require.NoError(t, err)
			assert.True(t, dec("100").Equal(first.Order.Discount))
			assert.True(t, dec("300").Equal(first.Order.Total))

			f.fillCart("u1", cart.Item{ProductID: "lamp", Quantity: 1})
			_, err = f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{UserID: "u1", CouponCode: "FLAT100"})
			require.ErrorIs(t, err, coupon.ErrExhausted)
			var rej *coupon.RejectedError
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, coupon.ReasonPerUserLimit, rej.Reason)

			assert.Equal(t, 1, f.coupon(t, "FLAT100").UsedCount)
			assert.False(t, f.cart(t, "u1").IsEmpty())
			assert.Equal(t, 1, f.orderCount(t))
		})
	}
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := newFixture(t, coupon.PolicyStrict)
	f.db.PutCoupon(coupon.Coupon{ID: "c1", Code: "SAVE10", DiscountType: coupon.DiscountPercentage, Value: dec("10"), Active: true})
	f.db.PutUser(user.User{ID: "u1", DefaultAddress: address})

	_, err := f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{UserID: "u1", CouponCode: "SAVE10"})
	require.ErrorIs(t, err, cart.ErrCartEmpty)
	assert.Equal(t, 0, f.coupon(t, "SAVE10").UsedCount)
	assert.Equal(t, 0, f.orderCount(t))
}

func TestPlaceOrder_BoxPriceIsFrozenIntoLine(t *testing.T) {
	f := newFixture(t, coupon.PolicyLenient)
	f.fillCart("u1", cart.Item{ProductID: "lamp", Quantity: 2, BoxType: "gift"})

	res, err := f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{UserID: "u1", PaymentMethod: order.PaymentCard})
	require.NoError(t, err)
	require.Len(t, res.Order.Lines, 1)
	assert.True(t, dec("450").Equal(res.Order.Lines[0].UnitPrice))
	assert.True(t, dec("900").Equal(res.Order.Total))
	assert.Equal(t, order.PaymentCard, res.Order.PaymentMethod)

	f.db.PutProduct(product.Product{ID: "lamp", Name: "Lamp v2", Price: dec("999")})
	stored, err := f.svc.Get(context.Background(), "u1", res.Order.ID)
	require.NoError(t, err)
	assert.True(t, dec("400").Equal(stored.Lines[0].Product.Price))
	assert.Equal(t, "Lamp", stored.Lines[0].Product.Name)
}

func TestPlaceOrder_ConcurrentRedemptionsRespectUsageLimit(t *testing.T) {
	const (
		n = 50
		k = 10
	)
	f := newFixture(t, coupon.PolicyLenient)
	f.db.PutCoupon(coupon.Coupon{ID: "c1", Code: "RUSH", DiscountType: coupon.DiscountFixed, Value: dec("5"), UsageLimit: intPtr(k), Active: true})
	for i := range n {
		f.fillCart(fmt.Sprintf("user-%d", i), cart.Item{ProductID: "desk", Quantity: 1})
	}

	var placed, exhausted atomic.Int64
	g, ctx := errgroup.WithContext(context.Background())
	start := make(chan struct{})
	for i := range n {
		g.Go(func() error {
			<-start
			_, err := f.svc.PlaceOrder(ctx, order.PlaceOrderRequest{UserID: fmt.Sprintf("user-%d", i), CouponCode: "RUSH"})
			switch {
			case err == nil:
				placed.Add(1)
			case errors.Is(err, coupon.ErrExhausted):
				exhausted.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	assert.EqualValues(t, k, placed.Load())
	assert.EqualValues(t, n-k, exhausted.Load())
	assert.Equal(t, k, f.coupon(t, "RUSH").UsedCount)

	reds, err := f.db.Coupons().Redemptions(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, reds, k)
	assert.Equal(t, k, f.orderCount(t))
}

// failingStore fails every order write after the coupon was reserved.
type failingStore struct {
	order.Store
}

type failingTx struct {
	order.Tx
}

func (failingTx) CreateOrder(context.Context, *order.Order) error {
	return errors.New("disk full")
}

func (s failingStore) Checkout(ctx context.Context, fn func(context.Context, order.Tx) error) error {
	return s.Store.Checkout(ctx, func(ctx context.Context, tx order.Tx) error {
		return fn(ctx, failingTx{tx})
	})
}

func TestPlaceOrder_OrderWriteFailureRollsBack(t *testing.T) {
	db := memory.New()
	db.PutProduct(product.Product{ID: "laptop", Name: "Laptop", Price: dec("1200")})
	db.PutCoupon(coupon.Coupon{ID: "c1", Code: "SAVE10", DiscountType: coupon.DiscountPercentage, Value: dec("10"), UsageLimit: intPtr(5), UsedCount: 2, Active: true})
	db.PutCart(cart.Cart{UserID: "u1", Items: []cart.Item{{ProductID: "laptop", Quantity: 1}}})
	db.PutUser(user.User{ID: "u1", DefaultAddress: address})

	ledger, err := coupon.NewLedger(0, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.NoError(t, err)
	svc, err := order.NewService(failingStore{db.Orders()}, db.Users(), ledger, coupon.PolicyLenient,
		tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.NoError(t, err)

	_, err = svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{UserID: "u1", CouponCode: "SAVE10"})
	require.ErrorIs(t, err, order.ErrPersistence)

	c, err := db.Coupons().FindByCode(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 2, c.UsedCount)
	reds, err := db.Coupons().Redemptions(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, reds)

	crt, err := db.Carts().Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, crt.Items, 1)
}

func TestPlaceOrder_MissingAddress(t *testing.T) {
	f := newFixture(t, coupon.PolicyLenient)
	f.db.PutCart(cart.Cart{UserID: "anon", Items: []cart.Item{{ProductID: "desk", Quantity: 1}}})

	_, err := f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{UserID: "anon"})
	require.ErrorIs(t, err, order.ErrMissingAddress)

	res, err := f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{UserID: "anon", ShippingAddress: address})
	require.NoError(t, err)
	assert.Equal(t, address, res.Order.ShippingAddress)
}

func TestPlaceOrder_IdempotencyKey(t *testing.T) {
	f := newFixture(t, coupon.PolicyLenient)
	f.svc.WithIdempotency(memory.NewIdempotency(time.Hour, time.Minute))
	f.fillCart("u1", cart.Item{ProductID: "desk", Quantity: 1})
	req := order.PlaceOrderRequest{UserID: "u1", IdempotencyKey: "k-1"}

	first, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 1, f.orderCount(t))

	// A failed attempt releases its key.
	_, err = f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{UserID: "u1", IdempotencyKey: "k-2"})
	require.ErrorIs(t, err, cart.ErrCartEmpty)
	f.fillCart("u1", cart.Item{ProductID: "desk", Quantity: 1})
	third, err := f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{UserID: "u1", IdempotencyKey: "k-2"})
	require.NoError(t, err)
	assert.False(t, third.Replayed)
}

func TestService_Lifecycle(t *testing.T) {
	f := newFixture(t, coupon.PolicyLenient)
	f.db.PutCoupon(coupon.Coupon{ID: "c1", Code: "SAVE10", DiscountType: coupon.DiscountPercentage, Value: dec("10"), Active: true})
	ctx := context.Background()

	f.fillCart("u1", cart.Item{ProductID: "desk", Quantity: 1})
	a, err := f.svc.PlaceOrder(ctx, order.PlaceOrderRequest{UserID: "u1", CouponCode: "SAVE10"})
	require.NoError(t, err)
	f.fillCart("u1", cart.Item{ProductID: "laptop", Quantity: 1})
	b, err := f.svc.PlaceOrder(ctx, order.PlaceOrderRequest{UserID: "u1"})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, "u2", a.Order.ID)
	require.ErrorIs(t, err, order.ErrNotFound)
	_, err = f.svc.Cancel(ctx, "u2", a.Order.ID)
	require.ErrorIs(t, err, order.ErrNotFound)

	cancelled, err := f.svc.Cancel(ctx, "u1", a.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.Equal(t, order.PaymentVoided, cancelled.PaymentStatus)
	assert.Equal(t, 1, f.coupon(t, "SAVE10").UsedCount, "redemptions are permanent")

	for _, to := range []order.Status{order.StatusProcessing, order.StatusShipped} {
		_, err = f.svc.AdminUpdateStatus(ctx, b.Order.ID, to)
		require.NoError(t, err)
	}
	_, err = f.svc.Cancel(ctx, "u1", b.Order.ID)
	require.ErrorIs(t, err, order.ErrNotCancellable)

	delivered, err := f.svc.AdminUpdateStatus(ctx, b.Order.ID, order.StatusDelivered)
	require.NoError(t, err)
	assert.NotNil(t, delivered.DeliveredAt)
	assert.Equal(t, order.PaymentPaid, delivered.PaymentStatus)

	var te *order.TransitionError
	_, err = f.svc.AdminUpdateStatus(ctx, b.Order.ID, order.StatusPending)
	require.ErrorAs(t, err, &te)

	mine, err := f.svc.ListForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	shipped, err := f.svc.AdminList(ctx, order.Filter{Status: order.StatusDelivered})
	require.NoError(t, err)
	require.Len(t, shipped, 1)
	assert.Equal(t, b.Order.ID, shipped[0].ID)
}
