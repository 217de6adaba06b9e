package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

// ProductNotFoundError indicates a cart line references a product that no
// longer exists.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// ProductCopy is the part of a product frozen into an order line. Later
// catalog edits never reach it.
type ProductCopy struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Image    product.Image   `json:"image"`
}

// Line is an immutable cart line with its price fixed.
type Line struct {
	Product   ProductCopy     `json:"product"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
	BoxType   string          `json:"box_type,omitempty"`
	BoxPrice  decimal.Decimal `json:"box_price"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Total returns UnitPrice * Quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Snapshot is the frozen content of a cart at checkout.
type Snapshot struct {
	UserID  string
	Lines   []Line
	TakenAt time.Time
}

// Subtotal sums every line total.
func (s *Snapshot) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range s.Lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

// Source provides the cart and catalog state a snapshot is taken from.
type Source interface {
	LockCart(ctx context.Context, userID string) (*Cart, error)
	Products(ctx context.Context, ids []string) ([]product.Product, error)
}

// TakeSnapshot loads the user's cart and prices every line against the
// current catalog. It modifies nothing.
func TakeSnapshot(ctx context.Context, src Source, userID string, now time.Time) (*Snapshot, error) {
	c, err := src.LockCart(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if c.IsEmpty() {
		return nil, ErrCartEmpty
	}

	ids := make([]string, 0, len(c.Items))
	seen := make(map[string]struct{}, len(c.Items))
	for _, it := range c.Items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}

	fetched, err := src.Products(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]*product.Product, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	lines := make([]Line, 0, len(c.Items))
	for _, it := range c.Items {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: it.ProductID}
		}
		box, ok := p.BoxPrice(it.BoxType)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownBox, "product %s box %q", p.ID, it.BoxType)
		}
		lines = append(lines, Line{
			Product: ProductCopy{
				ID:       p.ID,
				Name:     p.Name,
				Category: p.Category,
				Price:    p.Price,
				Image:    p.Image,
			},
			Quantity:  it.Quantity,
			Size:      it.Size,
			Color:     it.Color,
			BoxType:   it.BoxType,
			BoxPrice:  box,
			UnitPrice: p.Price.Add(box),
		})
	}

	return &Snapshot{UserID: userID, Lines: lines, TakenAt: now}, nil
}
