package product

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// Sort orders accepted by Filter.
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortName      = "name"
)

// Filter narrows and orders a product listing. Zero values disable the
// corresponding criterion.
type Filter struct {
	Category string
	Query    string
	MinPrice decimal.NullDecimal
	MaxPrice decimal.NullDecimal
	InStock  bool
	Sort     string
}

// ValidSort reports whether s is empty or a known sort order.
func ValidSort(s string) bool {
	switch s {
	case "", SortNewest, SortPriceAsc, SortPriceDesc, SortName:
		return true
	default:
		return false
	}
}

// Match reports whether p satisfies every criterion of the filter.
func (f Filter) Match(p *Product) bool {
	if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(p.Name), q) &&
			!strings.Contains(strings.ToLower(p.Description), q) {
			return false
		}
	}
	if f.MinPrice.Valid && p.Price.LessThan(f.MinPrice.Decimal) {
		return false
	}
	if f.MaxPrice.Valid && p.Price.GreaterThan(f.MaxPrice.Decimal) {
		return false
	}
	if f.InStock && p.Stock <= 0 {
		return false
	}
	return true
}

// Apply returns the products matching the filter in the requested order.
// The input slice is not modified.
func (f Filter) Apply(products []Product) []Product {
	out := make([]Product, 0, len(products))
	for i := range products {
		if f.Match(&products[i]) {
			out = append(out, products[i])
		}
	}

	slices.SortStableFunc(out, f.compare)
	return out
}

func (f Filter) compare(a, b Product) int {
	switch f.Sort {
	case SortPriceAsc:
		return a.Price.Cmp(b.Price)
	case SortPriceDesc:
		return b.Price.Cmp(a.Price)
	case SortName:
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	case SortNewest:
		return b.CreatedAt.Compare(a.CreatedAt)
	default:
		return strings.Compare(a.ID, b.ID)
	}
}
