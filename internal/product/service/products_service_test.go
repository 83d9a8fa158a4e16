package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sup/internal/alert"
	"sup/internal/domain"
	apperrors "sup/internal/errors"
	"sup/internal/testutil"
)

func newTestService(store *testutil.MemStore) *ProductService {
	return NewService(store.Products(), store.Lines(), store, alert.NopFeed{}, zap.NewNop())
}

func TestGetProductsByIDsAndOwner(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store)
	a := store.AddProduct(domain.Product{OwnerID: 1, Name: "A"})
	b := store.AddProduct(domain.Product{OwnerID: 1, Name: "B"})
	foreign := store.AddProduct(domain.Product{OwnerID: 2, Name: "C"})

	found, notFound, err := svc.GetProductsByIDsAndOwner(context.Background(), []int{b.ID, a.ID, foreign.ID, 99}, 1)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, a.ID, found[0].ID)
	assert.Equal(t, []int{foreign.ID, 99}, notFound)
}

func TestLowStock(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store)
	store.AddProduct(domain.Product{OwnerID: 1, Name: "Zapallo", Stock: 2})
	store.AddProduct(domain.Product{OwnerID: 1, Name: "Arroz", Stock: 9})
	store.AddProduct(domain.Product{OwnerID: 1, Name: "Lentejas", Stock: 10})

	products, total, err := svc.LowStock(context.Background(), 1, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, products, 2)
	assert.Equal(t, "Arroz", products[0].Name)
	assert.Equal(t, "Zapallo", products[1].Name)
}

func TestDeleteProduct_DetachesLinesAndKeepsSnapshots(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store)
	p := store.AddProduct(domain.Product{OwnerID: 1, Name: "Cafe", Stock: 5, SalePrice: decimal.RequireFromString("4.00")})
	sale := store.AddSale(domain.Sale{OwnerID: 1, Total: decimal.RequireFromString("8.00")})
	line := store.AddLine(domain.NewSaleLine(sale.ID, p, 2))

	detached, err := svc.DeleteProduct(context.Background(), 1, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), detached)

	_, ok := store.Product(p.ID)
	assert.False(t, ok)

	l, ok := store.Line(line.ID)
	require.True(t, ok)
	assert.False(t, l.HasProduct())
	assert.Equal(t, "Cafe", l.ProductName)
	assert.Equal(t, "8.00", l.Subtotal.StringFixed(2))
}

func TestDeleteProduct_OtherOwnerRollsBack(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store)
	p := store.AddProduct(domain.Product{OwnerID: 2, Name: "Cafe", SalePrice: decimal.RequireFromString("4.00")})
	sale := store.AddSale(domain.Sale{OwnerID: 2})
	line := store.AddLine(domain.NewSaleLine(sale.ID, p, 1))

	_, err := svc.DeleteProduct(context.Background(), 1, p.ID)
	_, ok := apperrors.IsNotFoundError(err)
	assert.True(t, ok)

	l, _ := store.Line(line.ID)
	assert.True(t, l.HasProduct())
}
