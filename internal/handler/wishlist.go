package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
)

// listWishlist serves GET /api/wishlist.
func (h *Handler) listWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	products, err := h.wishlist.List(ctx, userID(ctx))
	if err != nil {
		fail(w, r, err)
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

// addWishlist serves POST /api/wishlist with body {"product_id": "..."}.
func (h *Handler) addWishlist(w http.ResponseWriter, r *http.Request) {
	var productID string
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "product_id" {
			return d.Skip()
		}
		var err error
		productID, err = d.Str()
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}
	if productID == "" {
		fail(w, r, badRequest("product_id is required"))
		return
	}

	ctx := r.Context()
	if err := h.wishlist.Add(ctx, userID(ctx), productID); err != nil {
		fail(w, r, err)
		return
	}
	h.listWishlist(w, r)
}

// removeWishlist serves DELETE /api/wishlist/{productID}.
func (h *Handler) removeWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.wishlist.Remove(ctx, userID(ctx), chi.URLParam(r, "productID")); err != nil {
		fail(w, r, err)
		return
	}
	h.listWishlist(w, r)
}
