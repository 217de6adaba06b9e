package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrCartEmpty is returned when a checkout starts from a missing or empty cart.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrItemNotFound is returned when an update targets an item the cart does not hold.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrUnknownBox is returned when a line selects a box type the product does not offer.
	ErrUnknownBox = errors.New("unknown box type")
	// ErrInvalidItem wraps item validation failures.
	ErrInvalidItem = errors.New("invalid cart item")
)

// Key identifies a cart line. Two items with the same key are merged.
type Key struct {
	ProductID string
	Size      string
	Color     string
	BoxType   string
}

// Item is one line of a cart.
type Item struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
	BoxType   string `json:"box_type,omitempty"`
}

// Key returns the identity of the item.
func (i Item) Key() Key {
	return Key{ProductID: i.ProductID, Size: i.Size, Color: i.Color, BoxType: i.BoxType}
}

// Cart is the mutable basket owned by exactly one user.
type Cart struct {
	UserID    string    `json:"user_id"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsEmpty reports whether the cart has no items.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

func (c *Cart) index(k Key) int {
	for i, it := range c.Items {
		if it.Key() == k {
			return i
		}
	}
	return -1
}

// Add merges item into the cart, incrementing the quantity of an existing line
// with the same key.
func (c *Cart) Add(item Item) {
	if i := c.index(item.Key()); i >= 0 {
		c.Items[i].Quantity += item.Quantity
		return
	}
	c.Items = append(c.Items, item)
}

// SetQuantity changes the quantity of the line with key k. Zero removes it.
func (c *Cart) SetQuantity(k Key, qty int) error {
	i := c.index(k)
	if i < 0 {
		return ErrItemNotFound
	}
	if qty == 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return nil
	}
	c.Items[i].Quantity = qty
	return nil
}

// Remove deletes the line with key k.
func (c *Cart) Remove(k Key) error {
	return c.SetQuantity(k, 0)
}

// Repository persists carts.
type Repository interface {
	// Get returns the user's cart, or an empty cart if none was stored.
	Get(ctx context.Context, userID string) (*Cart, error)
	// Update loads the cart, applies fn and stores the result atomically with
	// respect to other updates and checkouts of the same cart. Nothing is
	// stored when fn fails.
	Update(ctx context.Context, userID string, fn func(c *Cart) error) (*Cart, error)
}
