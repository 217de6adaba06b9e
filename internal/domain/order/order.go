package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/user"
)

var (
	// ErrNotFound is returned when an order does not exist or belongs to
	// another user.
	ErrNotFound = errors.New("order not found")
	// ErrPersistence is matched by every storage fault inside the checkout
	// unit. The unit was rolled back and the request can be retried.
	ErrPersistence = errors.New("order persistence failure")
	// ErrStatusChanged is returned by Store.UpdateStatus when the order left
	// the expected status concurrently.
	ErrStatusChanged = errors.New("order status changed concurrently")
	// ErrMissingAddress is returned when neither the request nor the user
	// profile carries a shipping address.
	ErrMissingAddress = errors.New("shipping address required")
	// ErrInvalidPaymentMethod is returned for unsupported payment methods.
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
)

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentCOD  PaymentMethod = "COD"
	PaymentCard PaymentMethod = "CARD"
)

// ParsePaymentMethod validates m. Empty selects PaymentCOD.
func ParsePaymentMethod(m string) (PaymentMethod, error) {
	switch PaymentMethod(m) {
	case "", PaymentCOD:
		return PaymentCOD, nil
	case PaymentCard:
		return PaymentCard, nil
	default:
		return "", errors.Wrapf(ErrInvalidPaymentMethod, "%q", m)
	}
}

// PaymentStatus tracks settlement of the order amount.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentVoided  PaymentStatus = "voided"
)

// Order is a placed order. Lines and amounts never change after creation;
// only the status and payment fields do.
type Order struct {
	ID              string
	UserID          string
	Lines           []cart.Line
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	Total           decimal.Decimal
	CouponCode      string
	Status          Status
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	ShippingAddress user.Address
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeliveredAt     *time.Time
}

// Filter narrows administrative order listings.
type Filter struct {
	Status Status
	UserID string
	Limit  int
	Offset int
}

// Tx is the checkout transaction. Everything done through it commits or rolls
// back together, including the coupon redemption recorded by the ledger.
type Tx interface {
	coupon.LedgerTx
	cart.Source

	// FindCoupon reads a coupon by normalized code without locking it.
	FindCoupon(ctx context.Context, code string) (*coupon.Coupon, error)
	CreateOrder(ctx context.Context, o *Order) error
	ClearCart(ctx context.Context, userID string) error
}

// Store persists orders.
type Store interface {
	// Checkout runs fn in a single transaction. The transaction commits when
	// fn returns nil and rolls back otherwise.
	Checkout(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Get(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
	// UpdateStatus stores the status, payment and timestamp fields of o if the
	// stored status still equals from.
	UpdateStatus(ctx context.Context, o *Order, from Status) error
}
