package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/returns"
	"github.com/xenking/storefront/internal/domain/user"
)

// Kind is the machine-readable error category returned to clients.
type Kind string

const (
	KindBadRequest          Kind = "BAD_REQUEST"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindForbidden           Kind = "FORBIDDEN"
	KindNotFound            Kind = "NOT_FOUND"
	KindCartEmpty           Kind = "CART_EMPTY"
	KindProductUnavailable  Kind = "PRODUCT_UNAVAILABLE"
	KindCouponNotFound      Kind = "COUPON_NOT_FOUND"
	KindCouponNotApplicable Kind = "COUPON_NOT_APPLICABLE"
	KindCouponExhausted     Kind = "COUPON_EXHAUSTED"
	KindCouponExists        Kind = "COUPON_EXISTS"
	KindInvalidTransition   Kind = "INVALID_STATUS_TRANSITION"
	KindReturnNotEligible   Kind = "RETURN_NOT_ELIGIBLE"
	KindReturnExists        Kind = "RETURN_EXISTS"
	KindIdempotency         Kind = "IDEMPOTENCY_CONFLICT"
	KindPersistence         Kind = "PERSISTENCE_FAILURE"
	KindInternal            Kind = "INTERNAL"
)

// errBadRequest is wrapped by request decoding and validation failures.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return errors.Wrapf(errBadRequest, format, args...)
}

type apiError struct {
	status  int
	kind    Kind
	message string
}

// classify maps a domain error to its HTTP status and kind.
func classify(err error) apiError {
	var (
		pnf        *cart.ProductNotFoundError
		rejected   *coupon.RejectedError
		transition *order.TransitionError
		retStatus  *returns.StatusError
	)
	switch {
	case errors.Is(err, order.ErrPersistence):
		return apiError{http.StatusServiceUnavailable, KindPersistence, "order could not be stored, please retry"}

	case errors.Is(err, auth.ErrUnauthorized):
		return apiError{http.StatusUnauthorized, KindUnauthorized, "authentication required"}
	case errors.Is(err, auth.ErrForbidden):
		return apiError{http.StatusForbidden, KindForbidden, "insufficient permissions"}

	case errors.Is(err, errBadRequest),
		errors.Is(err, cart.ErrInvalidItem),
		errors.Is(err, coupon.ErrInvalid),
		errors.Is(err, order.ErrInvalidPaymentMethod),
		errors.Is(err, order.ErrMissingAddress),
		errors.Is(err, returns.ErrReasonRequired):
		return apiError{http.StatusBadRequest, KindBadRequest, err.Error()}

	case errors.Is(err, cart.ErrCartEmpty):
		return apiError{http.StatusUnprocessableEntity, KindCartEmpty, "cart is empty"}
	case errors.As(err, &pnf), errors.Is(err, cart.ErrUnknownBox):
		return apiError{http.StatusUnprocessableEntity, KindProductUnavailable, err.Error()}

	case errors.Is(err, coupon.ErrExhausted):
		return apiError{http.StatusConflict, KindCouponExhausted, err.Error()}
	case errors.As(err, &rejected), errors.Is(err, coupon.ErrNotApplicable):
		return apiError{http.StatusUnprocessableEntity, KindCouponNotApplicable, err.Error()}
	case errors.Is(err, coupon.ErrNotFound):
		return apiError{http.StatusUnprocessableEntity, KindCouponNotFound, "coupon not found"}
	case errors.Is(err, coupon.ErrDuplicateCode):
		return apiError{http.StatusConflict, KindCouponExists, "coupon code already exists"}

	case errors.Is(err, order.ErrRequestInProgress):
		return apiError{http.StatusConflict, KindIdempotency, err.Error()}
	case errors.As(err, &transition),
		errors.As(err, &retStatus),
		errors.Is(err, order.ErrNotCancellable),
		errors.Is(err, order.ErrStatusChanged),
		errors.Is(err, returns.ErrStatusChanged):
		return apiError{http.StatusConflict, KindInvalidTransition, err.Error()}

	case errors.Is(err, returns.ErrNotEligible):
		return apiError{http.StatusUnprocessableEntity, KindReturnNotEligible, err.Error()}
	case errors.Is(err, returns.ErrAlreadyRequested):
		return apiError{http.StatusConflict, KindReturnExists, "return already requested for this order"}

	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, returns.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, user.ErrNotFound):
		return apiError{http.StatusNotFound, KindNotFound, err.Error()}
	}
	return apiError{http.StatusInternalServerError, KindInternal, "internal server error"}
}

// fail writes the error envelope for err. Server faults are logged with the
// request logger; client errors are not.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	if e.status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("kind", string(e.kind)),
			zap.Error(err),
		)
	}
	writeError(w, e.status, e.kind, e.message)
}
