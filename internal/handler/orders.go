package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/order"
)

// IdempotencyKeyHeader makes checkout retries safe.
const IdempotencyKeyHeader = "Idempotency-Key"

// placeOrder serves POST /api/orders. The order is built from the caller's
// cart; the body optionally carries coupon_code, shipping_address and
// payment_method.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req := order.PlaceOrderRequest{
		UserID:         userID(ctx),
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	}
	var method string
	if err := decodeOptionalObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "coupon_code":
			req.CouponCode, err = d.Str()
		case "payment_method":
			method, err = d.Str()
		case "shipping_address":
			req.ShippingAddress, err = decodeAddress(d)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}
	pm, err := order.ParsePaymentMethod(method)
	if err != nil {
		fail(w, r, err)
		return
	}
	req.PaymentMethod = pm

	res, err := h.orders.PlaceOrder(ctx, req)
	if err != nil {
		fail(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeData(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("order", func(e *jx.Encoder) { h.encodeOrder(e, res.Order) })
			e.Field("coupon_ignored", func(e *jx.Encoder) {
				if res.CouponIgnored == nil {
					e.Null()
					return
				}
				e.Str(res.CouponIgnored.Error())
			})
			e.Field("replayed", func(e *jx.Encoder) { e.Bool(res.Replayed) })
		})
	})
}

// listOrders serves GET /api/orders.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.orders.ListForUser(ctx, userID(ctx))
	if err != nil {
		fail(w, r, err)
		return
	}
	h.writeOrders(w, list)
}

// getOrder serves GET /api/orders/{orderID}.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.orders.Get(ctx, userID(ctx), chi.URLParam(r, "orderID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrder(e, o) })
}

// cancelOrder serves POST /api/orders/{orderID}/cancel.
func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.orders.Cancel(ctx, userID(ctx), chi.URLParam(r, "orderID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrder(e, o) })
}

// adminListOrders serves GET /api/admin/orders?status=&user_id=&limit=&offset=.
func (h *Handler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := order.Filter{
		Status: order.Status(q.Get("status")),
		UserID: q.Get("user_id"),
	}
	if f.Status != "" && !f.Status.Valid() {
		fail(w, r, badRequest("unknown status %q", f.Status))
		return
	}
	var err error
	if f.Limit, err = queryInt(q.Get("limit"), 50); err != nil {
		fail(w, r, err)
		return
	}
	if f.Offset, err = queryInt(q.Get("offset"), 0); err != nil {
		fail(w, r, err)
		return
	}

	list, err := h.orders.AdminList(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.writeOrders(w, list)
}

// adminUpdateOrderStatus serves PATCH /api/admin/orders/{orderID}/status with
// body {"status": "..."}.
func (h *Handler) adminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var to order.Status
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		s, err := d.Str()
		to = order.Status(s)
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}
	if !to.Valid() {
		fail(w, r, badRequest("unknown status %q", to))
		return
	}

	o, err := h.orders.AdminUpdateStatus(r.Context(), chi.URLParam(r, "orderID"), to)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrder(e, o) })
}

func (h *Handler) writeOrders(w http.ResponseWriter, list []order.Order) {
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range list {
				h.encodeOrder(e, &list[i])
			}
		})
	})
}

func (h *Handler) encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("user_id", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range o.Lines {
					h.encodeLine(e, &o.Lines[i])
				}
			})
		})
		e.Field("subtotal", func(e *jx.Encoder) { money(e, o.Subtotal) })
		e.Field("discount", func(e *jx.Encoder) { money(e, o.Discount) })
		e.Field("total", func(e *jx.Encoder) { money(e, o.Total) })
		e.Field("coupon_code", func(e *jx.Encoder) {
			if o.CouponCode == "" {
				e.Null()
				return
			}
			e.Str(o.CouponCode)
		})
		e.Field("payment_method", func(e *jx.Encoder) { e.Str(string(o.PaymentMethod)) })
		e.Field("payment_status", func(e *jx.Encoder) { e.Str(string(o.PaymentStatus)) })
		e.Field("shipping_address", func(e *jx.Encoder) { encodeAddress(e, o.ShippingAddress) })
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, o.CreatedAt) })
		e.Field("updated_at", func(e *jx.Encoder) { timestamp(e, o.UpdatedAt) })
		e.Field("delivered_at", func(e *jx.Encoder) { optionalTime(e, o.DeliveredAt) })
	})
}
