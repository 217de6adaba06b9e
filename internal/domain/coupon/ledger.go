package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultReserveAttempts bounds the read-evaluate-write cycle of Reserve.
const DefaultReserveAttempts = 5

// LedgerTx is the slice of a storage transaction the ledger needs. All calls
// for one reservation happen inside the same transaction.
type LedgerTx interface {
	// LockCoupon returns the current state of the coupon and excludes other
	// reservations of the same coupon until the transaction ends.
	LockCoupon(ctx context.Context, code string) (*Coupon, error)
	// CountRedemptions returns how many times userID redeemed the coupon.
	CountRedemptions(ctx context.Context, couponID, userID string) (int, error)
	// Redeem increments the coupon's usage count and appends r, but only if
	// the stored count still equals expectedUsedCount. It reports false when
	// the condition no longer holds.
	Redeem(ctx context.Context, expectedUsedCount int, r Redemption) (bool, error)
}

// ReserveRequest identifies the redemption to record.
type ReserveRequest struct {
	Code             string
	UserID           string
	OrderID          string
	Subtotal         decimal.Decimal
	ExpectedDiscount decimal.Decimal
}

// Ledger records coupon redemptions so that neither the global usage limit nor
// the per-user limit is ever exceeded, regardless of concurrent checkouts.
type Ledger struct {
	attempts int
	now      func() time.Time
	tracer   trace.Tracer
	outcomes metric.Int64Counter
}

// NewLedger creates a Ledger. attempts <= 0 selects DefaultReserveAttempts.
func NewLedger(attempts int, tp trace.TracerProvider, mp metric.MeterProvider) (*Ledger, error) {
	if attempts <= 0 {
		attempts = DefaultReserveAttempts
	}
	outcomes, err := mp.Meter("storefront/coupon").Int64Counter("coupon.reservations",
		metric.WithDescription("Coupon reservation attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create reservation counter")
	}
	return &Ledger{
		attempts: attempts,
		now:      time.Now,
		tracer:   tp.Tracer("storefront/coupon"),
		outcomes: outcomes,
	}, nil
}

// Reserve re-evaluates the coupon under the transaction's coupon lock and
// records one redemption for the user. The returned redemption carries the
// authoritative discount, which may differ from req.ExpectedDiscount when the
// coupon changed since the order was priced.
//
// A *RejectedError is returned when the coupon no longer applies; it matches
// ErrExhausted for usage limits and when every attempt lost to a concurrent
// writer.
func (l *Ledger) Reserve(ctx context.Context, tx LedgerTx, req ReserveRequest) (_ *Redemption, rerr error) {
	ctx, span := l.tracer.Start(ctx, "coupon.Reserve", trace.WithAttributes(
		attribute.String("coupon.code", req.Code),
		attribute.String("user.id", req.UserID),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	for attempt := 1; attempt <= l.attempts; attempt++ {
		r, err := l.tryReserve(ctx, tx, req)
		switch {
		case err == nil && r != nil:
			l.record(ctx, "reserved")
			if !r.Discount.Equal(req.ExpectedDiscount) {
				zctx.From(ctx).Warn("Coupon discount changed during checkout",
					zap.String("code", req.Code),
					zap.Stringer("expected", req.ExpectedDiscount),
					zap.Stringer("actual", r.Discount),
				)
			}
			return r, nil
		case err == nil, errors.Is(err, ErrConflict):
			span.AddEvent("conflict", trace.WithAttributes(attribute.Int("attempt", attempt)))
			continue
		default:
			var rejected *RejectedError
			if errors.As(err, &rejected) {
				l.record(ctx, string(rejected.Reason))
			}
			return nil, err
		}
	}

	l.record(ctx, string(ReasonContention))
	return nil, &RejectedError{Code: NormalizeCode(req.Code), Reason: ReasonContention}
}

// tryReserve runs one read-evaluate-write cycle. It returns (nil, nil) when the
// conditional write lost to a concurrent reservation.
func (l *Ledger) tryReserve(ctx context.Context, tx LedgerTx, req ReserveRequest) (*Redemption, error) {
	c, err := tx.LockCoupon(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	used, err := tx.CountRedemptions(ctx, c.ID, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "count redemptions")
	}

	now := l.now()
	d := Evaluate(c, used, req.Subtotal, now)
	if !d.Applicable {
		return nil, &RejectedError{Code: c.Code, Reason: d.Reason}
	}

	r := Redemption{
		ID:         uuid.New().String(),
		CouponID:   c.ID,
		Code:       c.Code,
		UserID:     req.UserID,
		OrderID:    req.OrderID,
		Discount:   d.Discount,
		RedeemedAt: now,
	}
	ok, err := tx.Redeem(ctx, c.UsedCount, r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (l *Ledger) record(ctx context.Context, outcome string) {
	l.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
