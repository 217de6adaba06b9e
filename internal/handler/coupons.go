package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// previewCoupon serves POST /api/coupons/preview. It evaluates a code against
// the caller's current cart without reserving anything. A known code that does
// not apply is reported with applicable=false and the reason.
func (h *Handler) previewCoupon(w http.ResponseWriter, r *http.Request) {
	var code string
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		var err error
		code, err = d.Str()
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}
	if coupon.NormalizeCode(code) == "" {
		fail(w, r, badRequest("code is required"))
		return
	}

	ctx := r.Context()
	snap, err := h.carts.Price(ctx, userID(ctx))
	if err != nil {
		fail(w, r, err)
		return
	}
	subtotal := snap.Subtotal()
	c, d, err := h.coupons.Preview(ctx, code, userID(ctx), subtotal)
	var rejected *coupon.RejectedError
	if err != nil && (c == nil || !errors.As(err, &rejected)) {
		fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Str(c.Code) })
			e.Field("description", func(e *jx.Encoder) { e.Str(c.Description) })
			e.Field("applicable", func(e *jx.Encoder) { e.Bool(d.Applicable) })
			if !d.Applicable {
				e.Field("reason", func(e *jx.Encoder) { e.Str(string(d.Reason)) })
			}
			e.Field("subtotal", func(e *jx.Encoder) { money(e, subtotal) })
			e.Field("discount", func(e *jx.Encoder) { money(e, d.Discount) })
			e.Field("total", func(e *jx.Encoder) { money(e, subtotal.Sub(d.Discount)) })
		})
	})
}

// adminListCoupons serves GET /api/admin/coupons.
func (h *Handler) adminListCoupons(w http.ResponseWriter, r *http.Request) {
	list, err := h.coupons.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range list {
				encodeCoupon(e, &list[i])
			}
		})
	})
}

// adminCreateCoupon serves POST /api/admin/coupons.
func (h *Handler) adminCreateCoupon(w http.ResponseWriter, r *http.Request) {
	c := coupon.Coupon{Active: true}
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		return decodeCouponField(d, key, &c)
	}); err != nil {
		fail(w, r, err)
		return
	}
	created, err := h.coupons.Create(r.Context(), c)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, func(e *jx.Encoder) { encodeCoupon(e, created) })
}

// adminSetCouponActive serves PATCH /api/admin/coupons/{code} with body
// {"active": bool}.
func (h *Handler) adminSetCouponActive(w http.ResponseWriter, r *http.Request) {
	var active *bool
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "active" {
			return d.Skip()
		}
		v, err := d.Bool()
		active = &v
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}
	if active == nil {
		fail(w, r, badRequest("active is required"))
		return
	}

	code := chi.URLParam(r, "code")
	if err := h.coupons.SetActive(r.Context(), code, *active); err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeError(w, http.StatusNotFound, KindNotFound, "coupon not found")
			return
		}
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Str(coupon.NormalizeCode(code)) })
			e.Field("active", func(e *jx.Encoder) { e.Bool(*active) })
		})
	})
}

func decodeCouponField(d *jx.Decoder, key string, c *coupon.Coupon) error {
	var err error
	switch key {
	case "code":
		c.Code, err = d.Str()
	case "description":
		c.Description, err = d.Str()
	case "discount_type":
		var s string
		s, err = d.Str()
		c.DiscountType = coupon.DiscountType(s)
	case "value":
		c.Value, err = decodeDecimal(d)
	case "min_order_amount":
		c.MinOrderAmount, err = decodeDecimal(d)
	case "max_discount":
		c.MaxDiscount, err = decodeNullDecimal(d)
	case "usage_limit":
		c.UsageLimit, err = decodeOptionalInt(d)
	case "per_user_limit":
		c.PerUserLimit, err = d.Int()
	case "expires_at":
		c.ExpiresAt, err = decodeOptionalTime(d)
	case "active":
		c.Active, err = d.Bool()
	default:
		err = d.Skip()
	}
	return err
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(c.ID) })
		e.Field("code", func(e *jx.Encoder) { e.Str(c.Code) })
		e.Field("description", func(e *jx.Encoder) { e.Str(c.Description) })
		e.Field("discount_type", func(e *jx.Encoder) { e.Str(string(c.DiscountType)) })
		e.Field("value", func(e *jx.Encoder) { money(e, c.Value) })
		e.Field("min_order_amount", func(e *jx.Encoder) { money(e, c.MinOrderAmount) })
		e.Field("max_discount", func(e *jx.Encoder) {
			if !c.MaxDiscount.Valid {
				e.Null()
				return
			}
			money(e, c.MaxDiscount.Decimal)
		})
		e.Field("usage_limit", func(e *jx.Encoder) {
			if c.UsageLimit == nil {
				e.Null()
				return
			}
			e.Int(*c.UsageLimit)
		})
		e.Field("per_user_limit", func(e *jx.Encoder) { e.Int(c.UserLimit()) })
		e.Field("used_count", func(e *jx.Encoder) { e.Int(c.UsedCount) })
		e.Field("expires_at", func(e *jx.Encoder) { optionalTime(e, c.ExpiresAt) })
		e.Field("active", func(e *jx.Encoder) { e.Bool(c.Active) })
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, c.CreatedAt) })
	})
}
