// Package handler implements the storefront HTTP API on top of the domain
// services. Responses use the envelope {"success":true,"data":...} or
// {"success":false,"kind":...,"message":...}.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/returns"
	"github.com/xenking/storefront/internal/domain/wishlist"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
}

// Services are the domain dependencies of the Handler.
type Services struct {
	Products product.Repository
	Carts    *cart.Service
	Coupons  *coupon.Service
	Orders   *order.Service
	Returns  *returns.Service
	Wishlist *wishlist.Service
	Tokens   *auth.TokenVerifier
	Keys     *auth.KeyAuthenticator
}

// Handler serves the storefront API.
type Handler struct {
	products product.Repository
	carts    *cart.Service
	coupons  *coupon.Service
	orders   *order.Service
	returns  *returns.Service
	wishlist *wishlist.Service
	tokens   *auth.TokenVerifier
	keys     *auth.KeyAuthenticator

	imageBaseURL string
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config, s Services) *Handler {
	return &Handler{
		products:     s.Products,
		carts:        s.Carts,
		coupons:      s.Coupons,
		orders:       s.Orders,
		returns:      s.Returns,
		wishlist:     s.Wishlist,
		tokens:       s.Tokens,
		keys:         s.Keys,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes returns the API router. Every route lives under /api; callers may
// mount further routes on the returned router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, KindNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, KindBadRequest, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Get("/products/{productID}", h.getProduct)

		r.Group(func(r chi.Router) {
			r.Use(h.requireCustomer)

			r.Get("/cart", h.getCart)
			r.Delete("/cart", h.clearCart)
			r.Post("/cart/items", h.addCartItem)
			r.Patch("/cart/items", h.updateCartItem)
			r.Delete("/cart/items", h.removeCartItem)

			r.Post("/coupons/preview", h.previewCoupon)

			r.Post("/orders", h.placeOrder)
			r.Get("/orders", h.listOrders)
			r.Get("/orders/{orderID}", h.getOrder)
			r.Post("/orders/{orderID}/cancel", h.cancelOrder)

			r.Post("/returns", h.createReturn)
			r.Get("/returns", h.listReturns)

			r.Get("/wishlist", h.listWishlist)
			r.Post("/wishlist", h.addWishlist)
			r.Delete("/wishlist/{productID}", h.removeWishlist)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireAdmin)

			r.Get("/coupons", h.adminListCoupons)
			r.Post("/coupons", h.adminCreateCoupon)
			r.Patch("/coupons/{code}", h.adminSetCouponActive)

			r.Get("/orders", h.adminListOrders)
			r.Patch("/orders/{orderID}/status", h.adminUpdateOrderStatus)

			r.Get("/returns", h.adminListReturns)
			r.Post("/returns/{returnID}/decision", h.adminDecideReturn)
			r.Post("/returns/{returnID}/complete", h.adminCompleteReturn)
		})
	})
	return r
}
