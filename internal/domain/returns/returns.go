package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/order"
)

// DefaultWindow is how long after delivery a return may be requested.
const DefaultWindow = 30 * 24 * time.Hour

var (
	// ErrNotFound is returned when a return request does not exist.
	ErrNotFound = errors.New("return request not found")
	// ErrAlreadyRequested is returned when the order already has a return request.
	ErrAlreadyRequested = errors.New("return already requested for order")
	// ErrNotEligible is wrapped when an order cannot be returned.
	ErrNotEligible = errors.New("order not eligible for return")
	// ErrReasonRequired is returned when the customer gives no reason.
	ErrReasonRequired = errors.New("return reason required")
	// ErrStatusChanged is returned by Repository.Update when the request left
	// the expected status concurrently.
	ErrStatusChanged = errors.New("return status changed concurrently")
)

// Status is the state of a return request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// StatusError reports an action attempted in the wrong state.
type StatusError struct {
	Status Status
	Action string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cannot %s a %s return request", e.Action, e.Status)
}

// Request is a customer's request to return an order.
type Request struct {
	ID          string
	OrderID     string
	UserID      string
	Reason      string
	Status      Status
	Note        string
	CreatedAt   time.Time
	DecidedAt   *time.Time
	CompletedAt *time.Time
}

// Repository persists return requests. Create must fail with
// ErrAlreadyRequested when the order already has a request.
type Repository interface {
	Create(ctx context.Context, r *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	ListByUser(ctx context.Context, userID string) ([]Request, error)
	List(ctx context.Context, status Status) ([]Request, error)
	// Update stores the status, note and timestamps of r if the stored status
	// still equals from.
	Update(ctx context.Context, r *Request, from Status) error
}

// Orders looks orders up.
type Orders interface {
	Get(ctx context.Context, id string) (*order.Order, error)
}

// Eligible reports whether o may be returned at now.
func Eligible(o *order.Order, window time.Duration, now time.Time) error {
	if o.Status != order.StatusShipped && o.Status != order.StatusDelivered {
		return errors.Wrapf(ErrNotEligible, "order is %s", o.Status)
	}
	from := o.CreatedAt
	if o.DeliveredAt != nil {
		from = *o.DeliveredAt
	}
	if now.After(from.Add(window)) {
		return errors.Wrap(ErrNotEligible, "return window closed")
	}
	return nil
}

// NormalizeReason trims the customer's free text.
func NormalizeReason(s string) string {
	return strings.TrimSpace(s)
}
