package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the subtotal, optionally capped.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount, never more than the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// DefaultPerUserLimit applies when a coupon does not set its own per-user limit.
const DefaultPerUserLimit = 1

var (
	// ErrNotFound is returned when no coupon matches the requested code.
	ErrNotFound = errors.New("coupon not found")
	// ErrNotApplicable is matched by rejections caused by expiry, inactivity
	// or the minimum order amount.
	ErrNotApplicable = errors.New("coupon not applicable")
	// ErrExhausted is matched by rejections caused by the global or per-user
	// usage limit, including losing a reservation race.
	ErrExhausted = errors.New("coupon exhausted")
	// ErrDuplicateCode is returned when creating a coupon whose code exists.
	ErrDuplicateCode = errors.New("coupon code already exists")
	// ErrConflict is returned by storage when a concurrent writer changed the
	// coupon between read and write. The ledger retries on it.
	ErrConflict = errors.New("coupon update conflict")
	// ErrLimitBelowUsage is returned by Upsert when the new usage limit is
	// lower than the redemptions already recorded for the code.
	ErrLimitBelowUsage = errors.New("usage limit below recorded redemptions")
)

// Coupon is a redeemable discount code.
//
// UsedCount always equals the number of stored redemptions; both change only
// through Ledger.Reserve.
type Coupon struct {
	ID             string
	Code           string
	Description    string
	DiscountType   DiscountType
	Value          decimal.Decimal
	MinOrderAmount decimal.Decimal
	MaxDiscount    decimal.NullDecimal
	UsageLimit     *int
	PerUserLimit   int
	ExpiresAt      *time.Time
	Active         bool
	UsedCount      int
	CreatedAt      time.Time
}

// UserLimit returns the effective per-user redemption limit.
func (c *Coupon) UserLimit() int {
	if c.PerUserLimit <= 0 {
		return DefaultPerUserLimit
	}
	return c.PerUserLimit
}

// Redemption records one successful use of a coupon by one user.
type Redemption struct {
	ID         string
	CouponID   string
	Code       string
	UserID     string
	OrderID    string
	Discount   decimal.Decimal
	RedeemedAt time.Time
}

// RejectedError explains why a coupon could not be used.
type RejectedError struct {
	Code   string
	Reason Reason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("coupon %s: %s", e.Code, e.Reason)
}

// Unwrap classifies the rejection as ErrExhausted or ErrNotApplicable.
func (e *RejectedError) Unwrap() error {
	if e.Reason.Exhausted() {
		return ErrExhausted
	}
	return ErrNotApplicable
}

// NormalizeCode canonicalizes a coupon code. Codes are unique regardless of case.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides coupon lookups and administrative mutations. Usage
// counters are not writable through it.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	CountRedemptions(ctx context.Context, couponID, userID string) (int, error)
	Create(ctx context.Context, c *Coupon) error
	List(ctx context.Context) ([]Coupon, error)
	SetActive(ctx context.Context, code string, active bool) error
}
