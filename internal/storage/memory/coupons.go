package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/xenking/storefront/internal/domain/coupon"
)

var _ coupon.Repository = (*Coupons)(nil)

// Coupons is the coupon view of a DB.
type Coupons struct{ db *DB }

// Coupons returns the coupon repository.
func (db *DB) Coupons() *Coupons { return &Coupons{db: db} }

// FindByCode returns the coupon with the normalized code.
func (r *Coupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	c, ok := r.db.coupons[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return &c, nil
}

// CountRedemptions counts userID's committed redemptions of the coupon.
func (r *Coupons) CountRedemptions(_ context.Context, couponID, userID string) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return r.db.countRedemptions(couponID, userID), nil
}

func (db *DB) countRedemptions(couponID, userID string) int {
	n := 0
	for _, red := range db.redemptions {
		if red.CouponID == couponID && red.UserID == userID {
			n++
		}
	}
	return n
}

// Create stores a new coupon.
func (r *Coupons) Create(_ context.Context, c *coupon.Coupon) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.coupons[c.Code]; ok {
		return coupon.ErrDuplicateCode
	}
	r.db.coupons[c.Code] = *c
	return nil
}

// List returns all coupons ordered by code.
func (r *Coupons) List(_ context.Context) ([]coupon.Coupon, error) {
	r.db.mu.RLock()
	out := make([]coupon.Coupon, 0, len(r.db.coupons))
	for _, c := range r.db.coupons {
		out = append(out, c)
	}
	r.db.mu.RUnlock()
	slices.SortFunc(out, func(a, b coupon.Coupon) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

// SetActive toggles the coupon's active flag.
func (r *Coupons) SetActive(_ context.Context, code string, active bool) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.coupons[code]
	if !ok {
		return coupon.ErrNotFound
	}
	c.Active = active
	r.db.coupons[code] = c
	return nil
}

// Redemptions returns the committed redemptions of a coupon.
func (r *Coupons) Redemptions(_ context.Context, couponID string) ([]coupon.Redemption, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []coupon.Redemption
	for _, red := range r.db.redemptions {
		if red.CouponID == couponID {
			out = append(out, red)
		}
	}
	return out, nil
}
