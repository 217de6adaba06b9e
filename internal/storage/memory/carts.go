package memory

import (
	"context"
	"slices"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/wishlist"
)

var (
	_ cart.Repository     = (*Carts)(nil)
	_ wishlist.Repository = (*Wishlists)(nil)
)

// Carts is the cart view of a DB.
type Carts struct{ db *DB }

// Carts returns the cart repository.
func (db *DB) Carts() *Carts { return &Carts{db: db} }

// Get returns a copy of the user's cart, or an empty cart.
func (r *Carts) Get(_ context.Context, userID string) (*cart.Cart, error) {
	return r.db.loadCart(userID), nil
}

// Update applies fn under the cart's lock, which checkouts of the same cart
// also take.
func (r *Carts) Update(ctx context.Context, userID string, fn func(*cart.Cart) error) (*cart.Cart, error) {
	unlock, err := r.db.cartLocks.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c := r.db.loadCart(userID)
	if err := fn(c); err != nil {
		return nil, err
	}

	r.db.mu.Lock()
	r.db.carts[userID] = *cloneCart(c)
	r.db.mu.Unlock()
	return c, nil
}

func (db *DB) loadCart(userID string) *cart.Cart {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.carts[userID]
	if !ok {
		return &cart.Cart{UserID: userID}
	}
	return cloneCart(&c)
}

func cloneCart(c *cart.Cart) *cart.Cart {
	cp := *c
	cp.Items = slices.Clone(c.Items)
	return &cp
}

// PutCart replaces a user's cart.
func (db *DB) PutCart(c cart.Cart) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.carts[c.UserID] = *cloneCart(&c)
}

// Wishlists is the wishlist view of a DB.
type Wishlists struct{ db *DB }

// Wishlists returns the wishlist repository.
func (db *DB) Wishlists() *Wishlists { return &Wishlists{db: db} }

// Add appends productID unless it is already saved.
func (r *Wishlists) Add(_ context.Context, userID, productID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if !slices.Contains(r.db.wishlists[userID], productID) {
		r.db.wishlists[userID] = append(r.db.wishlists[userID], productID)
	}
	return nil
}

// Remove deletes productID.
func (r *Wishlists) Remove(_ context.Context, userID, productID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.wishlists[userID] = slices.DeleteFunc(r.db.wishlists[userID], func(id string) bool {
		return id == productID
	})
	return nil
}

// List returns saved product ids in insertion order.
func (r *Wishlists) List(_ context.Context, userID string) ([]string, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return slices.Clone(r.db.wishlists[userID]), nil
}

func (db *DB) productsByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	return db.Products().GetByIDs(ctx, ids)
}
