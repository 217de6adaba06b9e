package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/returns"
)

// createReturn serves POST /api/returns with body {"order_id","reason"}.
func (h *Handler) createReturn(w http.ResponseWriter, r *http.Request) {
	var orderID, reason string
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "order_id":
			orderID, err = d.Str()
		case "reason":
			reason, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}
	if orderID == "" {
		fail(w, r, badRequest("order_id is required"))
		return
	}

	ctx := r.Context()
	req, err := h.returns.Create(ctx, userID(ctx), orderID, reason)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, func(e *jx.Encoder) { encodeReturn(e, req) })
}

// listReturns serves GET /api/returns.
func (h *Handler) listReturns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.returns.ListForUser(ctx, userID(ctx))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeReturns(w, list)
}

// adminListReturns serves GET /api/admin/returns?status=.
func (h *Handler) adminListReturns(w http.ResponseWriter, r *http.Request) {
	status := returns.Status(r.URL.Query().Get("status"))
	switch status {
	case "", returns.StatusPending, returns.StatusApproved, returns.StatusRejected, returns.StatusCompleted:
	default:
		fail(w, r, badRequest("unknown status %q", status))
		return
	}
	list, err := h.returns.ListAll(r.Context(), status)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeReturns(w, list)
}

// adminDecideReturn serves POST /api/admin/returns/{returnID}/decision with
// body {"approve": bool, "note": "..."}.
func (h *Handler) adminDecideReturn(w http.ResponseWriter, r *http.Request) {
	var (
		approve *bool
		note    string
	)
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "approve":
			v, err := d.Bool()
			approve = &v
			return err
		case "note":
			var err error
			note, err = d.Str()
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		fail(w, r, err)
		return
	}
	if approve == nil {
		fail(w, r, badRequest("approve is required"))
		return
	}

	req, err := h.returns.Decide(r.Context(), chi.URLParam(r, "returnID"), *approve, note)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { encodeReturn(e, req) })
}

// adminCompleteReturn serves POST /api/admin/returns/{returnID}/complete.
func (h *Handler) adminCompleteReturn(w http.ResponseWriter, r *http.Request) {
	req, err := h.returns.Complete(r.Context(), chi.URLParam(r, "returnID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { encodeReturn(e, req) })
}

func writeReturns(w http.ResponseWriter, list []returns.Request) {
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range list {
				encodeReturn(e, &list[i])
			}
		})
	})
}

func encodeReturn(e *jx.Encoder, r *returns.Request) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(r.ID) })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(r.OrderID) })
		e.Field("user_id", func(e *jx.Encoder) { e.Str(r.UserID) })
		e.Field("reason", func(e *jx.Encoder) { e.Str(r.Reason) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(r.Status)) })
		e.Field("note", func(e *jx.Encoder) { e.Str(r.Note) })
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, r.CreatedAt) })
		e.Field("decided_at", func(e *jx.Encoder) { optionalTime(e, r.DecidedAt) })
		e.Field("completed_at", func(e *jx.Encoder) { optionalTime(e, r.CompletedAt) })
	})
}
