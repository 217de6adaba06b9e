// Package seed provides the demo storefront data used by the in-memory dev
// mode and by the seed-db tool.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/storage/memory"
)

// DemoUserID is the customer created by Demo.
const DemoUserID = "demo-customer"

//go:embed products.json
var productsJSON []byte

// Data is a set of records to load into a store.
type Data struct {
	Products []product.Product
	Coupons  []coupon.Coupon
	Users    []user.User
}

// Demo returns the demo catalog, coupons and customer. Product creation times
// are spaced one minute apart in file order, the last product being newest.
func Demo(now time.Time) (*Data, error) {
	var products []product.Product
	if err := json.Unmarshal(productsJSON, &products); err != nil {
		return nil, errors.Wrap(err, "parse products")
	}
	base := now.Add(-time.Duration(len(products)) * time.Minute)
	for i := range products {
		products[i].CreatedAt = base.Add(time.Duration(i) * time.Minute)
	}

	flashLimit := 10
	coupons := []coupon.Coupon{
		{
			ID:           "coupon-save10",
			Code:         "SAVE10",
			Description:  "10% off the whole order",
			DiscountType: coupon.DiscountPercentage,
			Value:        decimal.NewFromInt(10),
			PerUserLimit: 3,
		},
		{
			ID:           "coupon-flat100",
			Code:         "FLAT100",
			Description:  "100 off, once per customer",
			DiscountType: coupon.DiscountFixed,
			Value:        decimal.NewFromInt(100),
			PerUserLimit: 1,
		},
		{
			ID:             "coupon-min500",
			Code:           "MIN500",
			Description:    "15% off orders of 500 or more, at most 150",
			DiscountType:   coupon.DiscountPercentage,
			Value:          decimal.NewFromInt(15),
			MinOrderAmount: decimal.NewFromInt(500),
			MaxDiscount:    decimal.NewNullDecimal(decimal.NewFromInt(150)),
			PerUserLimit:   1,
		},
		{
			ID:           "coupon-flash",
			Code:         "FLASH",
			Description:  "Flash sale: 20% off for the first ten orders",
			DiscountType: coupon.DiscountPercentage,
			Value:        decimal.NewFromInt(20),
			UsageLimit:   &flashLimit,
			PerUserLimit: 1,
		},
	}
	for i := range coupons {
		coupons[i].Active = true
		coupons[i].CreatedAt = now
		if err := coupon.Validate(&coupons[i]); err != nil {
			return nil, errors.Wrapf(err, "coupon %s", coupons[i].Code)
		}
	}

	users := []user.User{{
		ID:    DemoUserID,
		Name:  "Demo Customer",
		Email: "demo@example.com",
		DefaultAddress: user.Address{
			FullName:   "Demo Customer",
			Line1:      "1 Market Street",
			City:       "San Francisco",
			State:      "CA",
			PostalCode: "94105",
			Country:    "US",
		},
	}}

	return &Data{Products: products, Coupons: coupons, Users: users}, nil
}

// Store receives seeded records. Upserts replace catalog fields but must keep
// a coupon's usage counter.
type Store interface {
	UpsertProduct(ctx context.Context, p *product.Product) error
	UpsertCoupon(ctx context.Context, c *coupon.Coupon) error
	UpsertUser(ctx context.Context, u *user.User) error
}

// Apply writes every record of d to s.
func Apply(ctx context.Context, s Store, d *Data) error {
	for i := range d.Products {
		if err := s.UpsertProduct(ctx, &d.Products[i]); err != nil {
			return errors.Wrapf(err, "upsert product %s", d.Products[i].ID)
		}
	}
	for i := range d.Coupons {
		if err := s.UpsertCoupon(ctx, &d.Coupons[i]); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", d.Coupons[i].Code)
		}
	}
	for i := range d.Users {
		if err := s.UpsertUser(ctx, &d.Users[i]); err != nil {
			return errors.Wrapf(err, "upsert user %s", d.Users[i].ID)
		}
	}
	return nil
}

// Repositories adapts per-entity repositories, such as the postgres ones, to
// Store.
type Repositories struct {
	Products interface {
		Upsert(ctx context.Context, p *product.Product) error
	}
	Coupons interface {
		Upsert(ctx context.Context, c *coupon.Coupon) error
	}
	Users interface {
		Upsert(ctx context.Context, u *user.User) error
	}
}

func (r Repositories) UpsertProduct(ctx context.Context, p *product.Product) error {
	return r.Products.Upsert(ctx, p)
}

func (r Repositories) UpsertCoupon(ctx context.Context, c *coupon.Coupon) error {
	return r.Coupons.Upsert(ctx, c)
}

func (r Repositories) UpsertUser(ctx context.Context, u *user.User) error {
	return r.Users.Upsert(ctx, u)
}

// Memory adapts an in-memory DB to Store.
func Memory(db *memory.DB) Store { return memoryStore{db} }

type memoryStore struct{ db *memory.DB }

func (m memoryStore) UpsertProduct(_ context.Context, p *product.Product) error {
	m.db.PutProduct(*p)
	return nil
}

func (m memoryStore) UpsertCoupon(ctx context.Context, c *coupon.Coupon) error {
	if existing, err := m.db.Coupons().FindByCode(ctx, c.Code); err == nil {
		if c.UsageLimit != nil && *c.UsageLimit < existing.UsedCount {
			return errors.Wrapf(coupon.ErrLimitBelowUsage, "upsert coupon %s", c.Code)
		}
		cp := *c
		cp.UsedCount = existing.UsedCount
		m.db.PutCoupon(cp)
		return nil
	}
	m.db.PutCoupon(*c)
	return nil
}

func (m memoryStore) UpsertUser(_ context.Context, u *user.User) error {
	m.db.PutUser(*u)
	return nil
}
