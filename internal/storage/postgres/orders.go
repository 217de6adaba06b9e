package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

const (
	orderColumns = `id, user_id, lines, subtotal, discount, total, coupon_code, status, payment_method,
		payment_status, shipping_address, created_at, updated_at, delivered_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, payment_status = $3, delivered_at = $4, updated_at = $5
		WHERE id = $1 AND status = $6`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	redeemCouponSQL = `UPDATE coupons SET used_count = used_count + 1 WHERE id = $1 AND used_count = $2`

	insertRedemptionSQL = `INSERT INTO coupon_redemptions (id, coupon_id, user_id, order_id, discount, redeemed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

var (
	_ order.Store = (*OrderStore)(nil)
	_ order.Tx    = (*checkoutTx)(nil)
)

// OrderStore persists orders and runs checkout transactions.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Checkout runs fn in one read-committed transaction. Row locks taken through
// the transaction (cart first, then coupon) are held until it ends.
func (s *OrderStore) Checkout(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &checkoutTx{tx: tx, locked: map[string]bool{}})
	})
}

// Get returns one order.
func (s *OrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := s.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// ListByUser returns the user's orders, newest first.
func (s *OrderStore) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	return s.List(ctx, order.Filter{UserID: userID})
}

// List returns orders matching f, newest first.
func (s *OrderStore) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	var limit *int
	if f.Limit > 0 {
		limit = &f.Limit
	}
	rows, err := s.pool.Query(ctx, listOrdersSQL, f.UserID, string(f.Status), limit, max(f.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus stores the mutable fields of o if its stored status is from.
func (s *OrderStore) UpdateStatus(ctx context.Context, o *order.Order, from order.Status) error {
	tag, err := s.pool.Exec(ctx, updateOrderStatusSQL,
		o.ID, string(o.Status), string(o.PaymentStatus), o.DeliveredAt, o.UpdatedAt, string(from),
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, orderExistsSQL, o.ID).Scan(&exists); err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStatusChanged
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                                   order.Order
		lines, address                      []byte
		status, paymentMethod, paymentState string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &lines, &o.Subtotal, &o.Discount, &o.Total, &o.CouponCode, &status, &paymentMethod,
		&paymentState, &address, &o.CreatedAt, &o.UpdatedAt, &o.DeliveredAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(paymentMethod)
	o.PaymentStatus = order.PaymentStatus(paymentState)
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return o, fmt.Errorf("decoding lines of order %q: %w", o.ID, err)
	}
	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("decoding address of order %q: %w", o.ID, err)
	}
	return o, nil
}

// checkoutTx adapts a pgx.Tx to order.Tx.
type checkoutTx struct {
	tx     pgx.Tx
	locked map[string]bool // carts locked by this transaction
}

func (t *checkoutTx) LockCart(ctx context.Context, userID string) (*cart.Cart, error) {
	c, err := loadCart(ctx, t.tx, lockCartSQL, userID)
	if err != nil {
		return nil, err
	}
	t.locked[userID] = true
	return c, nil
}

func (t *checkoutTx) Products(ctx context.Context, ids []string) ([]product.Product, error) {
	return productsByIDs(ctx, t.tx, ids)
}

func (t *checkoutTx) FindCoupon(ctx context.Context, code string) (*coupon.Coupon, error) {
	return findCoupon(ctx, t.tx, findCouponSQL, code)
}

func (t *checkoutTx) LockCoupon(ctx context.Context, code string) (*coupon.Coupon, error) {
	return findCoupon(ctx, t.tx, lockCouponSQL, code)
}

func (t *checkoutTx) CountRedemptions(ctx context.Context, couponID, userID string) (int, error) {
	return countRedemptions(ctx, t.tx, couponID, userID)
}

// Redeem is a compare-and-set on used_count. Any SQL error aborts the
// transaction, so only a zero-row update is reported as a lost race.
func (t *checkoutTx) Redeem(ctx context.Context, expected int, r coupon.Redemption) (bool, error) {
	tag, err := t.tx.Exec(ctx, redeemCouponSQL, r.CouponID, expected)
	if err != nil {
		return false, fmt.Errorf("redeeming coupon %q: %w", r.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	_, err = t.tx.Exec(ctx, insertRedemptionSQL, r.ID, r.CouponID, r.UserID, r.OrderID, r.Discount, r.RedeemedAt)
	if err != nil {
		return false, fmt.Errorf("recording redemption of %q: %w", r.Code, err)
	}
	return true, nil
}

func (t *checkoutTx) CreateOrder(ctx context.Context, o *order.Order) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("marshaling order lines: %w", err)
	}
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}

	_, err = t.tx.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, lines, o.Subtotal, o.Discount, o.Total, o.CouponCode, string(o.Status),
		string(o.PaymentMethod), string(o.PaymentStatus), address, o.CreatedAt, o.UpdatedAt, o.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

func (t *checkoutTx) ClearCart(ctx context.Context, userID string) error {
	if !t.locked[userID] {
		return errors.Errorf("cart %s not locked", userID)
	}
	if _, err := t.tx.Exec(ctx, deleteCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", userID, err)
	}
	return nil
}
