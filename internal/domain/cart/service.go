package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/product"
)

// MaxQuantity caps a single line.
const MaxQuantity = 99

// Service implements cart mutations for the storefront.
type Service struct {
	carts    Repository
	products product.Reader
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Reader) *Service {
	return &Service{carts: carts, products: products, now: time.Now}
}

// Get returns the user's cart.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	return s.carts.Get(ctx, userID)
}

// Price snapshots the user's cart against the current catalog without locking
// it. The result is informational; checkout takes its own locked snapshot.
func (s *Service) Price(ctx context.Context, userID string) (*Snapshot, error) {
	return TakeSnapshot(ctx, readSource{s}, userID, s.now())
}

type readSource struct{ s *Service }

func (r readSource) LockCart(ctx context.Context, userID string) (*Cart, error) {
	return r.s.carts.Get(ctx, userID)
}

func (r readSource) Products(ctx context.Context, ids []string) ([]product.Product, error) {
	return r.s.products.GetByIDs(ctx, ids)
}

// AddItem validates the selection against the catalog and merges it into the cart.
func (s *Service) AddItem(ctx context.Context, userID string, item Item) (*Cart, error) {
	if item.Quantity < 1 {
		return nil, errors.Wrap(ErrInvalidItem, "quantity must be at least 1")
	}
	p, err := s.products.GetByID(ctx, item.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		return nil, errors.Wrap(err, "get product")
	}
	if err := validateSelection(p, item); err != nil {
		return nil, err
	}

	return s.carts.Update(ctx, userID, func(c *Cart) error {
		c.Add(item)
		if q := c.Items[c.index(item.Key())].Quantity; q > MaxQuantity {
			return errors.Wrapf(ErrInvalidItem, "quantity %d exceeds %d", q, MaxQuantity)
		}
		c.UpdatedAt = s.now()
		return nil
	})
}

// UpdateItem sets the quantity of an existing line. Zero removes the line.
func (s *Service) UpdateItem(ctx context.Context, userID string, k Key, qty int) (*Cart, error) {
	if qty < 0 || qty > MaxQuantity {
		return nil, errors.Wrapf(ErrInvalidItem, "quantity must be between 0 and %d", MaxQuantity)
	}
	return s.carts.Update(ctx, userID, func(c *Cart) error {
		if err := c.SetQuantity(k, qty); err != nil {
			return err
		}
		c.UpdatedAt = s.now()
		return nil
	})
}

// RemoveItem deletes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID string, k Key) (*Cart, error) {
	return s.carts.Update(ctx, userID, func(c *Cart) error {
		if err := c.Remove(k); err != nil {
			return err
		}
		c.UpdatedAt = s.now()
		return nil
	})
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID string) (*Cart, error) {
	return s.carts.Update(ctx, userID, func(c *Cart) error {
		c.Items = nil
		c.UpdatedAt = s.now()
		return nil
	})
}

func validateSelection(p *product.Product, item Item) error {
	if !p.OffersSize(item.Size) {
		return errors.Wrapf(ErrInvalidItem, "size %q not offered", item.Size)
	}
	if !p.OffersColor(item.Color) {
		return errors.Wrapf(ErrInvalidItem, "color %q not offered", item.Color)
	}
	if _, ok := p.BoxPrice(item.BoxType); !ok {
		return errors.Wrapf(ErrUnknownBox, "box %q", item.BoxType)
	}
	return nil
}
