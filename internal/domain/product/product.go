package product

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Sizes       []string        `json:"sizes,omitempty"`
	Colors      []string        `json:"colors,omitempty"`
	Boxes       []Box           `json:"boxes,omitempty"`
	Image       Image           `json:"image"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Box is an optional packaging upgrade sold together with a product.
type Box struct {
	Type  string          `json:"type"`
	Price decimal.Decimal `json:"price"`
}

// Image holds responsive image URLs for a product.
type Image struct {
	Thumbnail string `json:"thumbnail"`
	Mobile    string `json:"mobile"`
	Tablet    string `json:"tablet"`
	Desktop   string `json:"desktop"`
}

// BoxPrice returns the price of the named box type. An empty type means no
// box and costs nothing.
func (p *Product) BoxPrice(boxType string) (decimal.Decimal, bool) {
	if boxType == "" {
		return decimal.Zero, true
	}
	for _, b := range p.Boxes {
		if b.Type == boxType {
			return b.Price, true
		}
	}
	return decimal.Zero, false
}

// OffersSize reports whether size is empty or one of the product's sizes.
func (p *Product) OffersSize(size string) bool {
	return size == "" || slices.Contains(p.Sizes, size)
}

// OffersColor reports whether color is empty or one of the product's colors.
func (p *Product) OffersColor(color string) bool {
	return color == "" || slices.Contains(p.Colors, color)
}

// Reader looks products up by identifier.
type Reader interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// Repository defines read operations for the product catalog.
type Repository interface {
	Reader
	List(ctx context.Context, filter Filter) ([]Product, error)
}
