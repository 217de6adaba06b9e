package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/user"
)

// CouponLookup is the read access the assembler needs to price a coupon.
type CouponLookup interface {
	FindCoupon(ctx context.Context, code string) (*coupon.Coupon, error)
	CountRedemptions(ctx context.Context, couponID, userID string) (int, error)
}

// AssembleInput carries the checkout choices made by the customer.
type AssembleInput struct {
	CouponCode      string
	ShippingAddress user.Address
	DefaultAddress  user.Address
	PaymentMethod   PaymentMethod
}

// Draft is a priced order that has not been persisted.
type Draft struct {
	UserID          string
	Lines           []cart.Line
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	Total           decimal.Decimal
	Coupon          *coupon.Coupon
	ShippingAddress user.Address
	PaymentMethod   PaymentMethod
	// Ignored holds the reason a requested coupon was dropped by the policy.
	Ignored error
}

// CouponCode returns the code applied to the draft, or "".
func (d *Draft) CouponCode() string {
	if d.Coupon == nil {
		return ""
	}
	return d.Coupon.Code
}

// ApplyDiscount sets the discount and recomputes the total.
func (d *Draft) ApplyDiscount(discount decimal.Decimal) {
	d.Discount = discount.Round(2)
	d.Total = d.Subtotal.Sub(d.Discount)
	if d.Total.IsNegative() {
		d.Total = decimal.Zero
	}
}

// DropCoupon removes the coupon and records why.
func (d *Draft) DropCoupon(reason error) {
	d.Coupon = nil
	d.Ignored = reason
	d.ApplyDiscount(decimal.Zero)
}

// Order materializes the draft as a pending order.
func (d *Draft) Order(id string, now time.Time) *Order {
	return &Order{
		ID:              id,
		UserID:          d.UserID,
		Lines:           d.Lines,
		Subtotal:        d.Subtotal,
		Discount:        d.Discount,
		Total:           d.Total,
		CouponCode:      d.CouponCode(),
		Status:          StatusPending,
		PaymentMethod:   d.PaymentMethod,
		PaymentStatus:   PaymentPending,
		ShippingAddress: d.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Assembler prices cart snapshots into order drafts.
type Assembler struct {
	policy coupon.Policy
}

// NewAssembler creates an Assembler that resolves unusable coupons with policy.
func NewAssembler(policy coupon.Policy) *Assembler {
	return &Assembler{policy: policy}
}

// Assemble prices snap. A requested coupon is evaluated at now; when it
// cannot be used the policy either drops it or fails the assembly.
func (a *Assembler) Assemble(ctx context.Context, snap *cart.Snapshot, coupons CouponLookup, in AssembleInput, now time.Time) (*Draft, error) {
	if snap == nil || len(snap.Lines) == 0 {
		return nil, cart.ErrCartEmpty
	}

	addr := in.ShippingAddress
	if addr.IsZero() {
		addr = in.DefaultAddress
	}
	if addr.IsZero() {
		return nil, ErrMissingAddress
	}
	method := in.PaymentMethod
	if method == "" {
		method = PaymentCOD
	}

	d := &Draft{
		UserID:          snap.UserID,
		Lines:           snap.Lines,
		Subtotal:        snap.Subtotal().Round(2),
		ShippingAddress: addr,
		PaymentMethod:   method,
	}
	d.ApplyDiscount(decimal.Zero)

	code := coupon.NormalizeCode(in.CouponCode)
	if code == "" {
		return d, nil
	}

	c, discount, err := a.price(ctx, coupons, code, snap.UserID, d.Subtotal, now)
	if err != nil {
		if !a.policy.Tolerates(err) {
			return nil, err
		}
		d.DropCoupon(err)
		return d, nil
	}
	d.Coupon = c
	d.ApplyDiscount(discount)
	return d, nil
}

func (a *Assembler) price(ctx context.Context, coupons CouponLookup, code, userID string, subtotal decimal.Decimal, now time.Time) (*coupon.Coupon, decimal.Decimal, error) {
	c, err := coupons.FindCoupon(ctx, code)
	if err != nil {
		return nil, decimal.Zero, err
	}
	used, err := coupons.CountRedemptions(ctx, c.ID, userID)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "count redemptions")
	}
	dec := coupon.Evaluate(c, used, subtotal, now)
	if !dec.Applicable {
		return nil, decimal.Zero, &coupon.RejectedError{Code: c.Code, Reason: dec.Reason}
	}
	return c, dec.Discount, nil
}
