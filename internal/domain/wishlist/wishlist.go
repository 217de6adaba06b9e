package wishlist

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/product"
)

// Repository stores the product ids each user saved. Add of an existing id
// and Remove of a missing one are no-ops.
type Repository interface {
	Add(ctx context.Context, userID, productID string) error
	Remove(ctx context.Context, userID, productID string) error
	List(ctx context.Context, userID string) ([]string, error)
}

// Service manages wishlists.
type Service struct {
	repo     Repository
	products product.Reader
}

// NewService creates a wishlist Service.
func NewService(repo Repository, products product.Reader) *Service {
	return &Service{repo: repo, products: products}
}

// Add saves an existing product to the user's wishlist.
func (s *Service) Add(ctx context.Context, userID, productID string) error {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return err
	}
	return s.repo.Add(ctx, userID, productID)
}

// Remove drops a product from the user's wishlist.
func (s *Service) Remove(ctx context.Context, userID, productID string) error {
	return s.repo.Remove(ctx, userID, productID)
}

// List returns the saved products in the order they were added. Products
// removed from the catalog are skipped.
func (s *Service) List(ctx context.Context, userID string) ([]product.Product, error) {
	ids, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list wishlist")
	}
	if len(ids) == 0 {
		return []product.Product{}, nil
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
