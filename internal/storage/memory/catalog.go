package memory

import (
	"context"
	"slices"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

var (
	_ product.Repository = (*Products)(nil)
	_ user.Repository    = (*Users)(nil)
	_ auth.Repository    = (*APIKeys)(nil)
)

// Products is the catalog view of a DB.
type Products struct{ db *DB }

// Products returns the catalog repository.
func (db *DB) Products() *Products { return &Products{db: db} }

// List returns products matching f.
func (r *Products) List(_ context.Context, f product.Filter) ([]product.Product, error) {
	r.db.mu.RLock()
	all := make([]product.Product, 0, len(r.db.products))
	for _, p := range r.db.products {
		all = append(all, p)
	}
	r.db.mu.RUnlock()
	return f.Apply(all), nil
}

// GetByID returns one product.
func (r *Products) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	p, ok := r.db.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// GetByIDs returns the products that exist among ids, in the order of ids.
func (r *Products) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]product.Product, 0, len(ids))
	for i, id := range ids {
		if slices.Contains(ids[:i], id) {
			continue
		}
		if p, ok := r.db.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Users is the user view of a DB.
type Users struct{ db *DB }

// Users returns the user repository.
func (db *DB) Users() *Users { return &Users{db: db} }

// Get returns one user.
func (r *Users) Get(_ context.Context, id string) (*user.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

// APIKeys is the API key view of a DB.
type APIKeys struct{ db *DB }

// APIKeys returns the API key repository.
func (db *DB) APIKeys() *APIKeys { return &APIKeys{db: db} }

// FindByHash looks up an API key by its HMAC hash.
func (r *APIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	k, ok := r.db.apiKeys[hash]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return &k, nil
}
