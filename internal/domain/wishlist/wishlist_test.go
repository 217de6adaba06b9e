package wishlist

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/product"
)

type mockRepo map[string][]string

func (m mockRepo) Add(_ context.Context, userID, productID string) error {
	if !slices.Contains(m[userID], productID) {
		m[userID] = append(m[userID], productID)
	}
	return nil
}

func (m mockRepo) Remove(_ context.Context, userID, productID string) error {
	m[userID] = slices.DeleteFunc(m[userID], func(id string) bool { return id == productID })
	return nil
}

func (m mockRepo) List(_ context.Context, userID string) ([]string, error) {
	return m[userID], nil
}

type mockProducts map[string]product.Product

func (m mockProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m mockProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestService(t *testing.T) {
	products := mockProducts{
		"a": {ID: "a", Name: "Alpha"},
		"b": {ID: "b", Name: "Beta"},
	}
	repo := mockRepo{}
	svc := NewService(repo, products)
	ctx := context.Background()

	empty, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	require.NoError(t, svc.Add(ctx, "u1", "b"))
	require.NoError(t, svc.Add(ctx, "u1", "a"))
	require.NoError(t, svc.Add(ctx, "u1", "b"))
	require.ErrorIs(t, svc.Add(ctx, "u1", "zzz"), product.ErrNotFound)

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "a", list[1].ID)

	delete(products, "b")
	list, err = svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.Remove(ctx, "u1", "a"))
	list, err = svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}
