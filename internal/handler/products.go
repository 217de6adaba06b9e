package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
)

// listProducts serves GET /api/products. Query parameters: category, q,
// min_price, max_price, in_stock and sort.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	f, err := parseProductFilter(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	products, err := h.products.List(r.Context(), f)
	if err != nil {
		fail(w, r, errors.Wrap(err, "list products"))
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range products {
				h.encodeProduct(e, &products[i])
			}
		})
	})
}

// getProduct serves GET /api/products/{productID}.
func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}

func parseProductFilter(r *http.Request) (product.Filter, error) {
	q := r.URL.Query()
	f := product.Filter{
		Category: q.Get("category"),
		Query:    q.Get("q"),
		Sort:     q.Get("sort"),
	}
	if !product.ValidSort(f.Sort) {
		return f, badRequest("unknown sort %q", f.Sort)
	}

	var err error
	if f.MinPrice, err = queryDecimal(q.Get("min_price")); err != nil {
		return f, err
	}
	if f.MaxPrice, err = queryDecimal(q.Get("max_price")); err != nil {
		return f, err
	}
	if f.MinPrice.Valid && f.MaxPrice.Valid && f.MinPrice.Decimal.GreaterThan(f.MaxPrice.Decimal) {
		return f, badRequest("min_price exceeds max_price")
	}
	if v := q.Get("in_stock"); v != "" {
		if f.InStock, err = strconv.ParseBool(v); err != nil {
			return f, badRequest("in_stock must be a boolean")
		}
	}
	return f, nil
}

func queryDecimal(v string) (decimal.NullDecimal, error) {
	if v == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return decimal.NullDecimal{}, badRequest("invalid price %q", v)
	}
	return decimal.NewNullDecimal(d), nil
}

// encodeProduct writes a catalog product. Image paths are prefixed with the
// configured image base URL.
func (h *Handler) encodeProduct(e *jx.Encoder, p *product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		e.Field("price", func(e *jx.Encoder) { money(e, p.Price) })
		e.Field("stock", func(e *jx.Encoder) { e.Int(p.Stock) })
		e.Field("in_stock", func(e *jx.Encoder) { e.Bool(p.Stock > 0) })
		e.Field("sizes", func(e *jx.Encoder) { stringArray(e, p.Sizes) })
		e.Field("colors", func(e *jx.Encoder) { stringArray(e, p.Colors) })
		e.Field("boxes", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, b := range p.Boxes {
					e.Obj(func(e *jx.Encoder) {
						e.Field("type", func(e *jx.Encoder) { e.Str(b.Type) })
						e.Field("price", func(e *jx.Encoder) { money(e, b.Price) })
					})
				}
			})
		})
		e.Field("image", func(e *jx.Encoder) { h.encodeImage(e, p.Image) })
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, p.CreatedAt) })
	})
}

func (h *Handler) encodeImage(e *jx.Encoder, img product.Image) {
	base := h.imageBaseURL
	e.Obj(func(e *jx.Encoder) {
		e.Field("thumbnail", func(e *jx.Encoder) { e.Str(base + img.Thumbnail) })
		e.Field("mobile", func(e *jx.Encoder) { e.Str(base + img.Mobile) })
		e.Field("tablet", func(e *jx.Encoder) { e.Str(base + img.Tablet) })
		e.Field("desktop", func(e *jx.Encoder) { e.Str(base + img.Desktop) })
	})
}

// encodeLine writes a priced line with the product copy frozen into it.
func (h *Handler) encodeLine(e *jx.Encoder, l *cart.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("product", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Str(l.Product.ID) })
				e.Field("name", func(e *jx.Encoder) { e.Str(l.Product.Name) })
				e.Field("category", func(e *jx.Encoder) { e.Str(l.Product.Category) })
				e.Field("price", func(e *jx.Encoder) { money(e, l.Product.Price) })
				e.Field("image", func(e *jx.Encoder) { h.encodeImage(e, l.Product.Image) })
			})
		})
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("size", func(e *jx.Encoder) { e.Str(l.Size) })
		e.Field("color", func(e *jx.Encoder) { e.Str(l.Color) })
		e.Field("box_type", func(e *jx.Encoder) { e.Str(l.BoxType) })
		e.Field("box_price", func(e *jx.Encoder) { money(e, l.BoxPrice) })
		e.Field("unit_price", func(e *jx.Encoder) { money(e, l.UnitPrice) })
		e.Field("line_total", func(e *jx.Encoder) { money(e, l.Total()) })
	})
}
