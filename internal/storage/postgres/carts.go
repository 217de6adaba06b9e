package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	getCartSQL = `SELECT items, updated_at FROM carts WHERE user_id = $1`

	lockCartSQL = `SELECT items, updated_at FROM carts WHERE user_id = $1 FOR UPDATE`

	ensureCartSQL = `INSERT INTO carts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`

	saveCartSQL = `UPDATE carts SET items = $2, updated_at = $3 WHERE user_id = $1`

	deleteCartSQL = `DELETE FROM carts WHERE user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository stores carts as one JSONB row per user.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the user's cart, or an empty cart when none is stored.
func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	return loadCart(ctx, r.pool, getCartSQL, userID)
}

// Update applies fn to the row-locked cart and stores the result. Checkouts
// lock the same row, so an update never interleaves with a checkout of the
// same cart.
func (r *CartRepository) Update(ctx context.Context, userID string, fn func(*cart.Cart) error) (*cart.Cart, error) {
	var c *cart.Cart
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ensureCartSQL, userID); err != nil {
			return fmt.Errorf("creating cart of %q: %w", userID, err)
		}
		var err error
		if c, err = loadCart(ctx, tx, lockCartSQL, userID); err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		items, err := json.Marshal(nonNilItems(c.Items))
		if err != nil {
			return fmt.Errorf("marshaling cart of %q: %w", userID, err)
		}
		if _, err := tx.Exec(ctx, saveCartSQL, userID, items, c.UpdatedAt); err != nil {
			return fmt.Errorf("saving cart of %q: %w", userID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func loadCart(ctx context.Context, q querier, query, userID string) (*cart.Cart, error) {
	var (
		c     = cart.Cart{UserID: userID}
		items []byte
	)
	err := q.QueryRow(ctx, query, userID).Scan(&items, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &c, nil
		}
		return nil, fmt.Errorf("loading cart of %q: %w", userID, err)
	}
	if err := json.Unmarshal(items, &c.Items); err != nil {
		return nil, fmt.Errorf("decoding cart of %q: %w", userID, err)
	}
	return &c, nil
}

func nonNilItems(items []cart.Item) []cart.Item {
	if items == nil {
		return []cart.Item{}
	}
	return items
}
