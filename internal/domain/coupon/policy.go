package coupon

import (
	"github.com/go-faster/errors"
)

// Policy decides what happens to an order whose coupon code cannot be used.
type Policy string

const (
	// PolicyLenient drops unknown or inapplicable codes and lets the order
	// proceed at full price, so a bad promo code never blocks checkout.
	PolicyLenient Policy = "lenient"
	// PolicyStrict rejects the order with the coupon error.
	PolicyStrict Policy = "strict"
)

// ParsePolicy validates a policy name. An empty name selects PolicyLenient.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyLenient:
		return PolicyLenient, nil
	case PolicyStrict:
		return PolicyStrict, nil
	default:
		return "", errors.Errorf("unknown coupon policy %q", s)
	}
}

// Tolerates reports whether err may be swallowed so the order continues
// without a discount. Exhaustion is never tolerated: the customer asked to
// redeem something that is used up and is told so under either policy.
func (p Policy) Tolerates(err error) bool {
	if err == nil {
		return true
	}
	if p == PolicyStrict || errors.Is(err, ErrExhausted) {
		return false
	}
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotApplicable)
}
