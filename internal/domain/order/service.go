package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/user"
)

var (
	// ErrNotCancellable is returned when a customer cancels an order that has
	// already shipped.
	ErrNotCancellable = errors.New("order can no longer be cancelled")
	// ErrRequestInProgress is returned when a checkout with the same
	// idempotency key is still running.
	ErrRequestInProgress = errors.New("checkout with this idempotency key in progress")
)

// Idempotency deduplicates checkout requests carrying the same key.
//
// A claim is a short lease (see ClaimTTL); only Complete keeps the key for
// the full retention period. A claim orphaned by a crash, or by a failed
// Complete, therefore expires soon and a retry is served again.
type Idempotency interface {
	// Begin claims key. When the key was already claimed it reports
	// started=false together with the order id recorded by Complete, or ""
	// while the first request is still running.
	Begin(ctx context.Context, key string) (orderID string, started bool, err error)
	// Complete records the order placed under key for the full retention
	// period.
	Complete(ctx context.Context, key, orderID string) error
	// Abort releases a claimed key so the request can be retried.
	Abort(ctx context.Context, key string) error
}

// DefaultClaimTTL is the longest a running checkout holds its idempotency key.
const DefaultClaimTTL = 30 * time.Second

// ClaimTTL returns the lease for a key claimed by a request running under
// ctx: limit, or DefaultClaimTTL when limit is not positive, shortened to the
// request deadline plus a second for the commit.
func ClaimTTL(ctx context.Context, limit time.Duration) time.Duration {
	if limit <= 0 {
		limit = DefaultClaimTTL
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline) + time.Second; left < limit {
			return max(left, time.Second)
		}
	}
	return limit
}

// PlaceOrderRequest holds the input for placing an order from the user's cart.
type PlaceOrderRequest struct {
	UserID          string
	CouponCode      string
	ShippingAddress user.Address
	PaymentMethod   PaymentMethod
	// IdempotencyKey makes retries of the same checkout return the first
	// order instead of placing another one.
	IdempotencyKey string
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order *Order
	// CouponIgnored explains why a requested coupon was not applied.
	CouponIgnored error
	// Replayed is set when the order was placed by an earlier request with
	// the same idempotency key.
	Replayed bool
}

// Service encapsulates order placement and order lifecycle logic.
type Service struct {
	store     Store
	users     user.Repository
	assembler *Assembler
	ledger    *coupon.Ledger
	policy    coupon.Policy
	idem      Idempotency
	now       func() time.Time

	tracer trace.Tracer
	orders metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	store Store,
	users user.Repository,
	ledger *coupon.Ledger,
	policy coupon.Policy,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Service, error) {
	orders, err := mp.Meter("storefront/order").Int64Counter("checkout.orders",
		metric.WithDescription("Checkout attempts by result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}
	return &Service{
		store:     store,
		users:     users,
		assembler: NewAssembler(policy),
		ledger:    ledger,
		policy:    policy,
		now:       time.Now,
		tracer:    tp.Tracer("storefront/order"),
		orders:    orders,
	}, nil
}

// WithIdempotency enables idempotency keys on PlaceOrder.
func (s *Service) WithIdempotency(idem Idempotency) *Service {
	s.idem = idem
	return s
}

// PlaceOrder converts the user's cart into an order. Snapshotting the cart,
// pricing, reserving the coupon, writing the order and clearing the cart run
// in one storage transaction: either all of it happens or none of it does.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (res *PlaceOrderResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder", trace.WithAttributes(
		attribute.String("user.id", req.UserID),
		attribute.Bool("coupon.requested", req.CouponCode != ""),
	))
	defer func() {
		result := "placed"
		if rerr != nil {
			result = errorKind(rerr)
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		s.orders.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
		span.End()
	}()

	if req.IdempotencyKey != "" && s.idem != nil {
		key := req.UserID + ":" + req.IdempotencyKey
		orderID, started, err := s.idem.Begin(ctx, key)
		if err != nil {
			return nil, persistence(errors.Wrap(err, "claim idempotency key"))
		}
		if !started {
			return s.replay(ctx, orderID)
		}
		defer func() {
			ctx := context.WithoutCancel(ctx)
			var err error
			if rerr != nil {
				err = s.idem.Abort(ctx, key)
			} else {
				err = s.idem.Complete(ctx, key, res.Order.ID)
			}
			if err != nil {
				zctx.From(ctx).Warn("Release idempotency key", zap.String("key", key), zap.Error(err))
			}
		}()
	}

	var defaultAddr user.Address
	u, err := s.users.Get(ctx, req.UserID)
	switch {
	case err == nil:
		defaultAddr = u.DefaultAddress
	case errors.Is(err, user.ErrNotFound):
	default:
		return nil, persistence(errors.Wrap(err, "get user"))
	}

	in := AssembleInput{
		CouponCode:      req.CouponCode,
		ShippingAddress: req.ShippingAddress,
		DefaultAddress:  defaultAddr,
		PaymentMethod:   req.PaymentMethod,
	}

	var result *PlaceOrderResult
	err = s.store.Checkout(ctx, func(ctx context.Context, tx Tx) error {
		now := s.now()
		snap, err := cart.TakeSnapshot(ctx, tx, req.UserID, now)
		if err != nil {
			return err
		}
		draft, err := s.assembler.Assemble(ctx, snap, tx, in, now)
		if err != nil {
			return err
		}

		id := uuid.New().String()
		if draft.Coupon != nil {
			if err := s.reserve(ctx, tx, draft, id); err != nil {
				return err
			}
		}

		o := draft.Order(id, now)
		if err := tx.CreateOrder(ctx, o); err != nil {
			return persistence(errors.Wrap(err, "create order"))
		}
		if err := tx.ClearCart(ctx, req.UserID); err != nil {
			return persistence(errors.Wrap(err, "clear cart"))
		}
		result = &PlaceOrderResult{Order: o, CouponIgnored: draft.Ignored}
		return nil
	})
	if err != nil {
		if !isDomainError(err) {
			err = persistence(err)
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("order.id", result.Order.ID),
		attribute.String("order.total", result.Order.Total.String()),
	)
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", result.Order.ID),
		zap.String("user_id", req.UserID),
		zap.String("coupon", result.Order.CouponCode),
		zap.Stringer("total", result.Order.Total),
	)
	return result, nil
}

func (s *Service) replay(ctx context.Context, orderID string) (*PlaceOrderResult, error) {
	if orderID == "" {
		return nil, ErrRequestInProgress
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, persistence(errors.Wrap(err, "get replayed order"))
	}
	return &PlaceOrderResult{Order: o, Replayed: true}, nil
}

// reserve records the coupon redemption for the draft inside tx. The ledger's
// discount is authoritative and reprices the draft when it differs.
func (s *Service) reserve(ctx context.Context, tx Tx, d *Draft, orderID string) error {
	r, err := s.ledger.Reserve(ctx, tx, coupon.ReserveRequest{
		Code:             d.Coupon.Code,
		UserID:           d.UserID,
		OrderID:          orderID,
		Subtotal:         d.Subtotal,
		ExpectedDiscount: d.Discount,
	})
	if err != nil {
		if s.policy.Tolerates(err) {
			d.DropCoupon(err)
			return nil
		}
		return err
	}
	if !r.Discount.Equal(d.Discount) {
		d.ApplyDiscount(r.Discount)
	}
	return nil
}

// Get returns an order owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (*Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListForUser returns the user's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	return s.store.ListByUser(ctx, userID)
}

// Cancel cancels a pending or processing order on behalf of its owner.
// Coupon redemptions are permanent and are not released.
func (s *Service) Cancel(ctx context.Context, userID, id string) (*Order, error) {
	o, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPending && o.Status != StatusProcessing {
		return nil, errors.Wrapf(ErrNotCancellable, "order is %s", o.Status)
	}
	return s.transition(ctx, o, StatusCancelled)
}

// AdminList returns orders matching f.
func (s *Service) AdminList(ctx context.Context, f Filter) ([]Order, error) {
	return s.store.List(ctx, f)
}

// AdminUpdateStatus moves any order along the status machine.
func (s *Service) AdminUpdateStatus(ctx context.Context, id string, to Status) (*Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, o, to)
}

func (s *Service) transition(ctx context.Context, o *Order, to Status) (*Order, error) {
	from := o.Status
	if err := o.Transition(to, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateStatus(ctx, o, from); err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return o, nil
}

func persistence(err error) error {
	if errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

// isDomainError reports whether err is a business outcome rather than a
// storage fault.
func isDomainError(err error) bool {
	var (
		pnf *cart.ProductNotFoundError
		rej *coupon.RejectedError
	)
	switch {
	case errors.Is(err, ErrPersistence),
		errors.Is(err, cart.ErrCartEmpty),
		errors.Is(err, cart.ErrUnknownBox),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, ErrMissingAddress),
		errors.Is(err, ErrRequestInProgress),
		errors.As(err, &pnf),
		errors.As(err, &rej):
		return true
	default:
		return false
	}
}

func errorKind(err error) string {
	var rej *coupon.RejectedError
	switch {
	case errors.Is(err, cart.ErrCartEmpty):
		return "cart_empty"
	case errors.Is(err, coupon.ErrExhausted):
		return "coupon_exhausted"
	case errors.As(err, &rej):
		return "coupon_not_applicable"
	case errors.Is(err, coupon.ErrNotFound):
		return "coupon_not_found"
	case errors.Is(err, ErrPersistence):
		return "persistence_failure"
	default:
		return "rejected"
	}
}
