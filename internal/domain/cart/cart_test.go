package cart

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/product"
)

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// --- Mock implementations ---

type mockCarts struct {
	mu    sync.Mutex
	carts map[string]*Cart
}

func newMockCarts() *mockCarts {
	return &mockCarts{carts: map[string]*Cart{}}
}

func (m *mockCarts) Get(_ context.Context, userID string) (*Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return &Cart{UserID: userID}, nil
	}
	cp := *c
	cp.Items = slices.Clone(c.Items)
	return &cp, nil
}

func (m *mockCarts) Update(_ context.Context, userID string, fn func(*Cart) error) (*Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &Cart{UserID: userID}
	if stored, ok := m.carts[userID]; ok {
		c.Items = slices.Clone(stored.Items)
		c.UpdatedAt = stored.UpdatedAt
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	m.carts[userID] = c
	return c, nil
}

func (m *mockCarts) LockCart(ctx context.Context, userID string) (*Cart, error) {
	return m.Get(ctx, userID)
}

type mockProducts struct {
	byID map[string]product.Product
	err  error
}

func newMockProducts(ps ...product.Product) *mockProducts {
	m := &mockProducts{byID: map[string]product.Product{}}
	for _, p := range ps {
		m.byID[p.ID] = p
	}
	return m
}

func (m *mockProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type source struct {
	*mockCarts
	*mockProducts
}

func (s source) Products(ctx context.Context, ids []string) ([]product.Product, error) {
	return s.GetByIDs(ctx, ids)
}

// --- Helpers ---

func shirt() product.Product {
	return product.Product{
		ID:       "shirt",
		Name:     "Linen Shirt",
		Category: "apparel",
		Price:    decimal.RequireFromString("45.00"),
		Sizes:    []string{"S", "M", "L"},
		Colors:   []string{"white", "navy"},
		Boxes:    []product.Box{{Type: "gift", Price: decimal.RequireFromString("5.50")}},
	}
}

func mug() product.Product {
	return product.Product{ID: "mug", Name: "Mug", Category: "home", Price: decimal.RequireFromString("12.00")}
}

func newTestService(carts *mockCarts, products *mockProducts) *Service {
	s := NewService(carts, products)
	s.now = func() time.Time { return testNow }
	return s
}

// --- Tests ---

func TestCart_AddMergesSameKey(t *testing.T) {
	var c Cart
	c.Add(Item{ProductID: "shirt", Quantity: 1, Size: "M"})
	c.Add(Item{ProductID: "shirt", Quantity: 2, Size: "M"})
	c.Add(Item{ProductID: "shirt", Quantity: 1, Size: "L"})

	require.Len(t, c.Items, 2)
	assert.Equal(t, 3, c.Items[0].Quantity)
	assert.Equal(t, "L", c.Items[1].Size)
}

func TestCart_SetQuantity(t *testing.T) {
	c := Cart{Items: []Item{{ProductID: "a", Quantity: 1}, {ProductID: "b", Quantity: 1}}}

	require.NoError(t, c.SetQuantity(Key{ProductID: "a"}, 4))
	assert.Equal(t, 4, c.Items[0].Quantity)

	require.NoError(t, c.SetQuantity(Key{ProductID: "a"}, 0))
	require.Len(t, c.Items, 1)
	assert.Equal(t, "b", c.Items[0].ProductID)

	require.ErrorIs(t, c.SetQuantity(Key{ProductID: "zzz"}, 1), ErrItemNotFound)
}

func TestService_AddItem(t *testing.T) {
	carts := newMockCarts()
	svc := newTestService(carts, newMockProducts(shirt()))

	c, err := svc.AddItem(context.Background(), "u1", Item{ProductID: "shirt", Quantity: 2, Size: "M", Color: "navy", BoxType: "gift"})
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, testNow, c.UpdatedAt)

	c, err = svc.AddItem(context.Background(), "u1", Item{ProductID: "shirt", Quantity: 1, Size: "M", Color: "navy", BoxType: "gift"})
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)
}

func TestService_AddItemValidation(t *testing.T) {
	tests := []struct {
		name    string
		item    Item
		wantErr error
	}{
		{"zero quantity", Item{ProductID: "shirt", Quantity: 0}, ErrInvalidItem},
		{"size not offered", Item{ProductID: "shirt", Quantity: 1, Size: "XXL"}, ErrInvalidItem},
		{"color not offered", Item{ProductID: "shirt", Quantity: 1, Color: "red"}, ErrInvalidItem},
		{"unknown box", Item{ProductID: "shirt", Quantity: 1, BoxType: "crate"}, ErrUnknownBox},
		{"over the line cap", Item{ProductID: "shirt", Quantity: MaxQuantity + 1}, ErrInvalidItem},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			carts := newMockCarts()
			svc := newTestService(carts, newMockProducts(shirt()))

			_, err := svc.AddItem(context.Background(), "u1", tt.item)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, carts.carts)
		})
	}
}

func TestService_AddItemUnknownProduct(t *testing.T) {
	svc := newTestService(newMockCarts(), newMockProducts())

	_, err := svc.AddItem(context.Background(), "u1", Item{ProductID: "ghost", Quantity: 1})
	var pnf *ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, "ghost", pnf.ProductID)
}

func TestService_UpdateRemoveClear(t *testing.T) {
	carts := newMockCarts()
	svc := newTestService(carts, newMockProducts(shirt(), mug()))
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", Item{ProductID: "shirt", Quantity: 1, Size: "S"})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "u1", Item{ProductID: "mug", Quantity: 1})
	require.NoError(t, err)

	c, err := svc.UpdateItem(ctx, "u1", Key{ProductID: "mug"}, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Items[1].Quantity)

	_, err = svc.UpdateItem(ctx, "u1", Key{ProductID: "mug"}, -1)
	require.ErrorIs(t, err, ErrInvalidItem)

	c, err = svc.RemoveItem(ctx, "u1", Key{ProductID: "shirt", Size: "S"})
	require.NoError(t, err)
	require.Len(t, c.Items, 1)

	_, err = svc.RemoveItem(ctx, "u1", Key{ProductID: "shirt", Size: "S"})
	require.ErrorIs(t, err, ErrItemNotFound)

	c, err = svc.Clear(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestTakeSnapshot(t *testing.T) {
	carts := newMockCarts()
	carts.carts["u1"] = &Cart{UserID: "u1", Items: []Item{
		{ProductID: "shirt", Quantity: 2, Size: "M", BoxType: "gift"},
		{ProductID: "mug", Quantity: 3},
		{ProductID: "shirt", Quantity: 1, Size: "L"},
	}}
	products := newMockProducts(shirt(), mug())

	snap, err := TakeSnapshot(context.Background(), source{carts, products}, "u1", testNow)
	require.NoError(t, err)
	require.Len(t, snap.Lines, 3)
	assert.Equal(t, testNow, snap.TakenAt)

	assert.True(t, decimal.RequireFromString("50.50").Equal(snap.Lines[0].UnitPrice))
	assert.True(t, decimal.RequireFromString("5.50").Equal(snap.Lines[0].BoxPrice))
	assert.True(t, decimal.RequireFromString("12").Equal(snap.Lines[1].UnitPrice))
	assert.True(t, decimal.RequireFromString("45").Equal(snap.Lines[2].UnitPrice))
	// 2*50.50 + 3*12 + 45
	assert.True(t, decimal.RequireFromString("182").Equal(snap.Subtotal()))
}

func TestTakeSnapshot_FrozenAgainstCatalogChanges(t *testing.T) {
	carts := newMockCarts()
	carts.carts["u1"] = &Cart{UserID: "u1", Items: []Item{{ProductID: "mug", Quantity: 1}}}
	products := newMockProducts(mug())

	snap, err := TakeSnapshot(context.Background(), source{carts, products}, "u1", testNow)
	require.NoError(t, err)

	changed := mug()
	changed.Price = decimal.RequireFromString("99")
	changed.Name = "Renamed"
	products.byID["mug"] = changed

	assert.Equal(t, "Mug", snap.Lines[0].Product.Name)
	assert.True(t, decimal.RequireFromString("12").Equal(snap.Lines[0].Product.Price))
}

func TestTakeSnapshot_Errors(t *testing.T) {
	t.Run("missing cart", func(t *testing.T) {
		_, err := TakeSnapshot(context.Background(), source{newMockCarts(), newMockProducts()}, "u1", testNow)
		require.ErrorIs(t, err, ErrCartEmpty)
	})

	t.Run("product removed from catalog", func(t *testing.T) {
		carts := newMockCarts()
		carts.carts["u1"] = &Cart{UserID: "u1", Items: []Item{{ProductID: "gone", Quantity: 1}}}

		_, err := TakeSnapshot(context.Background(), source{carts, newMockProducts()}, "u1", testNow)
		var pnf *ProductNotFoundError
		require.ErrorAs(t, err, &pnf)
	})

	t.Run("box withdrawn", func(t *testing.T) {
		carts := newMockCarts()
		carts.carts["u1"] = &Cart{UserID: "u1", Items: []Item{{ProductID: "mug", Quantity: 1, BoxType: "gift"}}}

		_, err := TakeSnapshot(context.Background(), source{carts, newMockProducts(mug())}, "u1", testNow)
		require.ErrorIs(t, err, ErrUnknownBox)
	})

	t.Run("catalog failure", func(t *testing.T) {
		carts := newMockCarts()
		carts.carts["u1"] = &Cart{UserID: "u1", Items: []Item{{ProductID: "mug", Quantity: 1}}}
		products := newMockProducts()
		products.err = errors.New("timeout")

		_, err := TakeSnapshot(context.Background(), source{carts, products}, "u1", testNow)
		require.ErrorIs(t, err, products.err)
	})
}

func TestService_Price(t *testing.T) {
	carts := newMockCarts()
	svc := newTestService(carts, newMockProducts(shirt(), mug()))
	ctx := context.Background()

	_, err := svc.Price(ctx, "u1")
	require.ErrorIs(t, err, ErrCartEmpty)

	_, err = svc.AddItem(ctx, "u1", Item{ProductID: "mug", Quantity: 2})
	require.NoError(t, err)

	snap, err := svc.Price(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("24").Equal(snap.Subtotal()))
	assert.Equal(t, testNow, snap.TakenAt)
}
