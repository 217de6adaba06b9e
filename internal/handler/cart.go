package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
)

// getCart serves GET /api/cart.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), userID(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	h.renderCart(w, r, c)
}

// clearCart serves DELETE /api/cart.
func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Clear(r.Context(), userID(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	h.renderCart(w, r, c)
}

// addCartItem serves POST /api/cart/items.
func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var item cart.Item
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		return decodeItemField(d, key, &item)
	}); err != nil {
		fail(w, r, err)
		return
	}
	if item.ProductID == "" {
		fail(w, r, badRequest("product_id is required"))
		return
	}
	c, err := h.carts.AddItem(r.Context(), userID(r.Context()), item)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.renderCart(w, r, c)
}

// updateCartItem serves PATCH /api/cart/items. The body identifies the line
// and carries its new quantity; zero removes it.
func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var (
		item   cart.Item
		hasQty bool
	)
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key == "quantity" {
			hasQty = true
		}
		return decodeItemField(d, key, &item)
	}); err != nil {
		fail(w, r, err)
		return
	}
	if item.ProductID == "" || !hasQty {
		fail(w, r, badRequest("product_id and quantity are required"))
		return
	}
	c, err := h.carts.UpdateItem(r.Context(), userID(r.Context()), item.Key(), item.Quantity)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.renderCart(w, r, c)
}

// removeCartItem serves DELETE /api/cart/items?product_id=&size=&color=&box_type=.
func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	k := cart.Key{
		ProductID: q.Get("product_id"),
		Size:      q.Get("size"),
		Color:     q.Get("color"),
		BoxType:   q.Get("box_type"),
	}
	if k.ProductID == "" {
		fail(w, r, badRequest("product_id is required"))
		return
	}
	c, err := h.carts.RemoveItem(r.Context(), userID(r.Context()), k)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.renderCart(w, r, c)
}

func decodeItemField(d *jx.Decoder, key string, item *cart.Item) error {
	var err error
	switch key {
	case "product_id":
		item.ProductID, err = d.Str()
	case "quantity":
		item.Quantity, err = d.Int()
	case "size":
		item.Size, err = d.Str()
	case "color":
		item.Color, err = d.Str()
	case "box_type":
		item.BoxType, err = d.Str()
	default:
		err = d.Skip()
	}
	return err
}

// renderCart writes the cart items together with their current prices. A
// cart that can no longer be priced, because a product was withdrawn, is
// still returned with pricing set to null and the reason in pricing_error.
func (h *Handler) renderCart(w http.ResponseWriter, r *http.Request, c *cart.Cart) {
	snap, err := h.carts.Price(r.Context(), userID(r.Context()))
	var pnf *cart.ProductNotFoundError
	if err != nil && !errors.Is(err, cart.ErrCartEmpty) &&
		!errors.As(err, &pnf) && !errors.Is(err, cart.ErrUnknownBox) {
		fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("items", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, it := range c.Items {
						encodeItem(e, it)
					}
				})
			})
			e.Field("item_count", func(e *jx.Encoder) { e.Int(itemCount(c)) })
			switch {
			case snap != nil:
				h.encodePricing(e, snap)
			case errors.Is(err, cart.ErrCartEmpty):
				e.Field("lines", func(e *jx.Encoder) { e.ArrEmpty() })
				e.Field("subtotal", func(e *jx.Encoder) { money(e, decimal.Zero) })
			default:
				e.Field("lines", func(e *jx.Encoder) { e.Null() })
				e.Field("subtotal", func(e *jx.Encoder) { e.Null() })
				e.Field("pricing_error", func(e *jx.Encoder) { e.Str(err.Error()) })
			}
		})
	})
}

func (h *Handler) encodePricing(e *jx.Encoder, snap *cart.Snapshot) {
	e.Field("lines", func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range snap.Lines {
				h.encodeLine(e, &snap.Lines[i])
			}
		})
	})
	e.Field("subtotal", func(e *jx.Encoder) { money(e, snap.Subtotal()) })
}

func encodeItem(e *jx.Encoder, it cart.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		e.Field("size", func(e *jx.Encoder) { e.Str(it.Size) })
		e.Field("color", func(e *jx.Encoder) { e.Str(it.Color) })
		e.Field("box_type", func(e *jx.Encoder) { e.Str(it.BoxType) })
	})
}

func itemCount(c *cart.Cart) int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}
