package coupon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

// fakeTx is a LedgerTx over a single coupon. Callers that need the row lock
// semantics hold lock for the whole reservation.
type fakeTx struct {
	mu          sync.Mutex
	coupon      Coupon
	redemptions []Redemption

	lock sync.Mutex

	lockErr      error
	redeemErrs   []error
	staleRedeems int
}

func (f *fakeTx) LockCoupon(_ context.Context, code string) (*Coupon, error) {
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	if NormalizeCode(code) != f.coupon.Code {
		return nil, ErrNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.coupon
	return &c, nil
}

func (f *fakeTx) CountRedemptions(_ context.Context, couponID, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.redemptions {
		if r.CouponID == couponID && r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeTx) Redeem(_ context.Context, expected int, r Redemption) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.redeemErrs) > 0 {
		err := f.redeemErrs[0]
		f.redeemErrs = f.redeemErrs[1:]
		return false, err
	}
	if f.staleRedeems > 0 {
		f.staleRedeems--
		return false, nil
	}
	if f.coupon.UsedCount != expected {
		return false, nil
	}
	f.coupon.UsedCount++
	f.redemptions = append(f.redemptions, r)
	return true, nil
}

func newTestLedger(t *testing.T, attempts int) *Ledger {
	t.Helper()
	l, err := NewLedger(attempts, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.NoError(t, err)
	l.now = func() time.Time { return fixedNow }
	return l
}

func flat(code string, value string) Coupon {
	return Coupon{ID: "c-" + code, Code: code, DiscountType: DiscountFixed, Value: d(value), Active: true}
}

func TestLedger_Reserve(t *testing.T) {
	tx := &fakeTx{coupon: flat("FLAT100", "100")}
	l := newTestLedger(t, 3)

	r, err := l.Reserve(context.Background(), tx, ReserveRequest{
		Code:             "flat100",
		UserID:           "u1",
		OrderID:          "o1",
		Subtotal:         d("450"),
		ExpectedDiscount: d("100"),
	})
	require.NoError(t, err)
	assert.Equal(t, "FLAT100", r.Code)
	assert.Equal(t, "o1", r.OrderID)
	assert.Equal(t, fixedNow, r.RedeemedAt)
	assert.True(t, d("100").Equal(r.Discount))
	assert.Equal(t, 1, tx.coupon.UsedCount)
	assert.Len(t, tx.redemptions, 1)
}

func TestLedger_ReserveSameUserTwice(t *testing.T) {
	tx := &fakeTx{coupon: flat("FLAT100", "100")}
	l := newTestLedger(t, 3)
	req := ReserveRequest{Code: "FLAT100", UserID: "u1", Subtotal: d("450"), ExpectedDiscount: d("100")}

	_, err := l.Reserve(context.Background(), tx, req)
	require.NoError(t, err)

	_, err = l.Reserve(context.Background(), tx, req)
	require.ErrorIs(t, err, ErrExhausted)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, ReasonPerUserLimit, rejected.Reason)
	assert.Equal(t, 1, tx.coupon.UsedCount)
}

func TestLedger_ReserveNotApplicable(t *testing.T) {
	c := flat("MIN", "10")
	c.MinOrderAmount = d("500")
	tx := &fakeTx{coupon: c}
	l := newTestLedger(t, 3)

	_, err := l.Reserve(context.Background(), tx, ReserveRequest{Code: "MIN", UserID: "u1", Subtotal: d("300")})
	require.ErrorIs(t, err, ErrNotApplicable)
	assert.False(t, errors.Is(err, ErrExhausted))
	assert.Equal(t, 0, tx.coupon.UsedCount)
}

func TestLedger_ReserveUnknownCode(t *testing.T) {
	tx := &fakeTx{coupon: flat("KNOWN", "10")}
	l := newTestLedger(t, 3)

	_, err := l.Reserve(context.Background(), tx, ReserveRequest{Code: "OTHER", UserID: "u1", Subtotal: d("300")})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLedger_RetriesLostRaces(t *testing.T) {
	tx := &fakeTx{
		coupon:       flat("RACE", "10"),
		staleRedeems: 1,
		redeemErrs:   []error{ErrConflict},
	}
	l := newTestLedger(t, 3)

	r, err := l.Reserve(context.Background(), tx, ReserveRequest{Code: "RACE", UserID: "u1", Subtotal: d("100"), ExpectedDiscount: d("10")})
	require.NoError(t, err)
	assert.NotNil(t, r)
	assert.Equal(t, 1, tx.coupon.UsedCount)
}

func TestLedger_GivesUpAfterBoundedAttempts(t *testing.T) {
	tx := &fakeTx{coupon: flat("HOT", "10"), staleRedeems: 10}
	l := newTestLedger(t, 3)

	_, err := l.Reserve(context.Background(), tx, ReserveRequest{Code: "HOT", UserID: "u1", Subtotal: d("100")})
	require.ErrorIs(t, err, ErrExhausted)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, ReasonContention, rejected.Reason)
	assert.Equal(t, 7, tx.staleRedeems, "exactly three attempts expected")
	assert.Equal(t, 0, tx.coupon.UsedCount)
}

func TestLedger_StorageErrorIsNotRetried(t *testing.T) {
	boom := errors.New("connection reset")
	tx := &fakeTx{coupon: flat("ERR", "10"), redeemErrs: []error{boom}}
	l := newTestLedger(t, 3)

	_, err := l.Reserve(context.Background(), tx, ReserveRequest{Code: "ERR", UserID: "u1", Subtotal: d("100")})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, tx.coupon.UsedCount)
}

func TestLedger_ReturnsAuthoritativeDiscount(t *testing.T) {
	c := flat("CHANGED", "25")
	tx := &fakeTx{coupon: c}
	l := newTestLedger(t, 3)

	r, err := l.Reserve(context.Background(), tx, ReserveRequest{
		Code:             "CHANGED",
		UserID:           "u1",
		Subtotal:         d("100"),
		ExpectedDiscount: d("10"),
	})
	require.NoError(t, err)
	assert.True(t, d("25").Equal(r.Discount))
}

func TestLedger_ConcurrentReservationsRespectUsageLimit(t *testing.T) {
	const (
		attempts = 40
		limit    = 7
	)
	c := flat("LIMITED", "5")
	c.UsageLimit = intPtr(limit)
	tx := &fakeTx{coupon: c}
	l := newTestLedger(t, 3)

	var (
		mu        sync.Mutex
		reserved  int
		exhausted int
	)
	var g errgroup.Group
	for i := range attempts {
		g.Go(func() error {
			// Serialize whole reservations the way a coupon row lock would.
			tx.lock.Lock()
			defer tx.lock.Unlock()

			_, err := l.Reserve(context.Background(), tx, ReserveRequest{
				Code:     "LIMITED",
				UserID:   "user-" + decimal.NewFromInt(int64(i)).String(),
				Subtotal: d("100"),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				reserved++
			case errors.Is(err, ErrExhausted):
				exhausted++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, limit, reserved)
	assert.Equal(t, attempts-limit, exhausted)
	assert.Equal(t, limit, tx.coupon.UsedCount)
	assert.Len(t, tx.redemptions, limit)
}
