package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const (
	couponColumns = `id, code, description, discount_type, value, min_order_amount, max_discount,
		usage_limit, per_user_limit, expires_at, active, used_count, created_at`

	findCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	lockCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1 FOR UPDATE`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons ORDER BY code`

	countRedemptionsSQL = `SELECT count(*) FROM coupon_redemptions WHERE coupon_id = $1 AND user_id = $2`

	createCouponSQL = `INSERT INTO coupons (id, code, description, discount_type, value, min_order_amount,
		max_discount, usage_limit, per_user_limit, expires_at, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	upsertCouponSQL = `INSERT INTO coupons (id, code, description, discount_type, value, min_order_amount,
		max_discount, usage_limit, per_user_limit, expires_at, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (code) DO UPDATE SET
			description = EXCLUDED.description, discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value, min_order_amount = EXCLUDED.min_order_amount,
			max_discount = EXCLUDED.max_discount, usage_limit = EXCLUDED.usage_limit,
			per_user_limit = EXCLUDED.per_user_limit, expires_at = EXCLUDED.expires_at,
			active = EXCLUDED.active
		WHERE EXCLUDED.usage_limit IS NULL OR coupons.used_count <= EXCLUDED.usage_limit`

	setCouponActiveSQL = `UPDATE coupons SET active = $2 WHERE code = $1`

	listRedemptionsSQL = `SELECT r.id, r.coupon_id, c.code, r.user_id, r.order_id, r.discount, r.redeemed_at
		FROM coupon_redemptions r JOIN coupons c ON c.id = r.coupon_id
		WHERE r.coupon_id = $1 ORDER BY r.redeemed_at`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository provides coupon lookups and administrative writes backed
// by PostgreSQL. Usage counters only change inside checkout transactions.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode returns the coupon with the given code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return findCoupon(ctx, r.pool, findCouponSQL, code)
}

// CountRedemptions counts userID's redemptions of the coupon.
func (r *CouponRepository) CountRedemptions(ctx context.Context, couponID, userID string) (int, error) {
	return countRedemptions(ctx, r.pool, couponID, userID)
}

// Create stores a new coupon with a zero usage count.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	if _, err := r.pool.Exec(ctx, createCouponSQL, couponArgs(c)...); err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Upsert creates c or replaces the rules of the stored coupon with the same
// code. The usage count and redemptions of an existing coupon are kept, so a
// usage limit below the current count is rejected with
// coupon.ErrLimitBelowUsage and the stored coupon is left unchanged.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.pool.Exec(ctx, upsertCouponSQL, couponArgs(c)...)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, coupon.ErrLimitBelowUsage)
	}
	return nil
}

// List returns all coupons ordered by code.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// SetActive toggles the coupon's active flag.
func (r *CouponRepository) SetActive(ctx context.Context, code string, active bool) error {
	tag, err := r.pool.Exec(ctx, setCouponActiveSQL, code, active)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Redemptions returns the redemptions of a coupon, oldest first.
func (r *CouponRepository) Redemptions(ctx context.Context, couponID string) ([]coupon.Redemption, error) {
	rows, err := r.pool.Query(ctx, listRedemptionsSQL, couponID)
	if err != nil {
		return nil, fmt.Errorf("listing redemptions: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (coupon.Redemption, error) {
		var red coupon.Redemption
		err := row.Scan(&red.ID, &red.CouponID, &red.Code, &red.UserID, &red.OrderID, &red.Discount, &red.RedeemedAt)
		return red, err
	})
}

func findCoupon(ctx context.Context, q querier, query, code string) (*coupon.Coupon, error) {
	rows, err := q.Query(ctx, query, coupon.NormalizeCode(code))
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	return &c, nil
}

func countRedemptions(ctx context.Context, q querier, couponID, userID string) (int, error) {
	var n int
	if err := q.QueryRow(ctx, countRedemptionsSQL, couponID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting redemptions: %w", err)
	}
	return n, nil
}

func couponArgs(c *coupon.Coupon) []any {
	return []any{
		c.ID, coupon.NormalizeCode(c.Code), c.Description, string(c.DiscountType), c.Value, c.MinOrderAmount,
		c.MaxDiscount, c.UsageLimit, c.UserLimit(), c.ExpiresAt, c.Active, c.CreatedAt,
	}
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &discountType, &c.Value, &c.MinOrderAmount, &c.MaxDiscount,
		&c.UsageLimit, &c.PerUserLimit, &c.ExpiresAt, &c.Active, &c.UsedCount, &c.CreatedAt,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	return c, err
}
