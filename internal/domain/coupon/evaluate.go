package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reason names the predicate a coupon failed.
type Reason string

const (
	ReasonInactive          Reason = "inactive"
	ReasonExpired           Reason = "expired"
	ReasonUsageLimitReached Reason = "usage_limit_reached"
	ReasonPerUserLimit      Reason = "per_user_limit_reached"
	ReasonBelowMinimum      Reason = "below_minimum"
	// ReasonContention is reported when reservation retries run out.
	ReasonContention Reason = "reservation_contention"
)

// Exhausted reports whether the reason is a usage limit rather than a
// property of the order or the coupon's lifecycle.
func (r Reason) Exhausted() bool {
	switch r {
	case ReasonUsageLimitReached, ReasonPerUserLimit, ReasonContention:
		return true
	default:
		return false
	}
}

// Decision is the outcome of evaluating a coupon against an order.
type Decision struct {
	Applicable bool
	Discount   decimal.Decimal
	Reason     Reason
}

var hundred = decimal.NewFromInt(100)

// Evaluate decides whether c applies to an order of the given subtotal placed
// by a user who already redeemed it userRedemptions times. It has no side
// effects; the same inputs always give the same decision.
func Evaluate(c *Coupon, userRedemptions int, subtotal decimal.Decimal, now time.Time) Decision {
	switch {
	case !c.Active:
		return reject(ReasonInactive)
	case c.ExpiresAt != nil && now.After(*c.ExpiresAt):
		return reject(ReasonExpired)
	case c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit:
		return reject(ReasonUsageLimitReached)
	case userRedemptions >= c.UserLimit():
		return reject(ReasonPerUserLimit)
	case subtotal.LessThan(c.MinOrderAmount):
		return reject(ReasonBelowMinimum)
	}

	return Decision{Applicable: true, Discount: Discount(c, subtotal)}
}

// Discount computes the amount c takes off subtotal, ignoring applicability.
// The result is in [0, subtotal] and rounded to cents.
func Discount(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}

	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(c.Value).Div(hundred)
		if c.MaxDiscount.Valid {
			amount = decimal.Min(amount, c.MaxDiscount.Decimal)
		}
	case DiscountFixed:
		amount = c.Value
	default:
		return decimal.Zero
	}

	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Round(2)
}

func reject(r Reason) Decision {
	return Decision{Discount: decimal.Zero, Reason: r}
}
