package seed

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/storage/memory"
)

func TestDemo(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d, err := Demo(now)
	require.NoError(t, err)

	require.NotEmpty(t, d.Products)
	ids := map[string]bool{}
	for i, p := range d.Products {
		assert.False(t, ids[p.ID], "duplicate product %s", p.ID)
		ids[p.ID] = true
		assert.True(t, p.Price.IsPositive(), p.ID)
		assert.True(t, p.CreatedAt.Before(now), p.ID)
		if i > 0 {
			assert.True(t, p.CreatedAt.After(d.Products[i-1].CreatedAt))
		}
	}

	codes := map[string]bool{}
	for _, c := range d.Coupons {
		codes[c.Code] = true
		assert.Equal(t, coupon.NormalizeCode(c.Code), c.Code)
		assert.True(t, c.Active)
	}
	for _, code := range []string{"SAVE10", "FLAT100", "MIN500", "FLASH"} {
		assert.True(t, codes[code], code)
	}
	require.Len(t, d.Users, 1)
	assert.False(t, d.Users[0].DefaultAddress.IsZero())
}

func TestApply_Memory(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	d, err := Demo(time.Now())
	require.NoError(t, err)
	require.NoError(t, Apply(ctx, Memory(db), d))

	list, err := db.Products().List(ctx, product.Filter{})
	require.NoError(t, err)
	assert.Len(t, list, len(d.Products))

	u, err := db.Users().Get(ctx, DemoUserID)
	require.NoError(t, err)
	assert.Equal(t, "demo@example.com", u.Email)

	// Reseeding keeps usage counters.
	c, err := db.Coupons().FindByCode(ctx, "FLASH")
	require.NoError(t, err)
	c.UsedCount = 4
	db.PutCoupon(*c)
	require.NoError(t, Apply(ctx, Memory(db), d))
	c, err = db.Coupons().FindByCode(ctx, "FLASH")
	require.NoError(t, err)
	assert.Equal(t, 4, c.UsedCount)

	two := 2
	c.UsageLimit = &two
	err = Memory(db).UpsertCoupon(ctx, c)
	require.ErrorIs(t, err, coupon.ErrLimitBelowUsage)
}

type failingRepo struct{ err error }

func (f failingRepo) Upsert(context.Context, *product.Product) error { return f.err }

type okCoupons struct{}

func (okCoupons) Upsert(context.Context, *coupon.Coupon) error { return nil }

type okUsers struct{}

func (okUsers) Upsert(context.Context, *user.User) error { return nil }

func TestApply_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	d := &Data{Products: []product.Product{{ID: "p1"}}}
	err := Apply(context.Background(), Repositories{
		Products: failingRepo{boom},
		Coupons:  okCoupons{},
		Users:    okUsers{},
	}, d)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "p1")
}
