package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalid is wrapped by validation failures of coupon definitions.
var ErrInvalid = errors.New("invalid coupon")

// Service manages coupon definitions and answers price previews. It never
// records redemptions; that is the Ledger's job.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a coupon Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create validates and stores a new coupon. The code is normalized and the
// usage counter starts at zero.
func (s *Service) Create(ctx context.Context, c Coupon) (*Coupon, error) {
	c.Code = NormalizeCode(c.Code)
	if err := Validate(&c); err != nil {
		return nil, err
	}
	if c.PerUserLimit <= 0 {
		c.PerUserLimit = DefaultPerUserLimit
	}
	c.ID = uuid.New().String()
	c.UsedCount = 0
	c.CreatedAt = s.now()

	if err := s.repo.Create(ctx, &c); err != nil {
		return nil, errors.Wrap(err, "create coupon")
	}
	return &c, nil
}

// List returns every coupon.
func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	return s.repo.List(ctx)
}

// SetActive enables or disables a coupon by code.
func (s *Service) SetActive(ctx context.Context, code string, active bool) error {
	return s.repo.SetActive(ctx, NormalizeCode(code), active)
}

// Preview evaluates a code for a user and subtotal without reserving it.
// Unknown codes return ErrNotFound; inapplicable ones a *RejectedError.
func (s *Service) Preview(ctx context.Context, code, userID string, subtotal decimal.Decimal) (*Coupon, Decision, error) {
	c, err := s.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		return nil, Decision{}, err
	}
	used, err := s.repo.CountRedemptions(ctx, c.ID, userID)
	if err != nil {
		return nil, Decision{}, errors.Wrap(err, "count redemptions")
	}

	d := Evaluate(c, used, subtotal, s.now())
	if !d.Applicable {
		return c, d, &RejectedError{Code: c.Code, Reason: d.Reason}
	}
	return c, d, nil
}

// Validate checks a coupon definition for internal consistency.
func Validate(c *Coupon) error {
	switch {
	case c.Code == "":
		return errors.Wrap(ErrInvalid, "code is required")
	case c.DiscountType != DiscountPercentage && c.DiscountType != DiscountFixed:
		return errors.Wrapf(ErrInvalid, "unknown discount type %q", c.DiscountType)
	case !c.Value.IsPositive():
		return errors.Wrap(ErrInvalid, "discount value must be positive")
	case c.DiscountType == DiscountPercentage && c.Value.GreaterThan(hundred):
		return errors.Wrap(ErrInvalid, "percentage cannot exceed 100")
	case c.DiscountType == DiscountFixed && c.MaxDiscount.Valid:
		return errors.Wrap(ErrInvalid, "max discount applies to percentage coupons only")
	case c.MaxDiscount.Valid && !c.MaxDiscount.Decimal.IsPositive():
		return errors.Wrap(ErrInvalid, "max discount must be positive")
	case c.MinOrderAmount.IsNegative():
		return errors.Wrap(ErrInvalid, "minimum order amount cannot be negative")
	case c.UsageLimit != nil && *c.UsageLimit < 1:
		return errors.Wrap(ErrInvalid, "usage limit must be at least 1")
	case c.PerUserLimit < 0:
		return errors.Wrap(ErrInvalid, "per-user limit cannot be negative")
	}
	return nil
}
