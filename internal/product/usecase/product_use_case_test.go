package usecase

import (
	"context"
	"errors"
	"testing"

	drv "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sup/internal/domain"
	"sup/internal/dto"
	apperrors "sup/internal/errors"
)

type mockService struct {
	GetProductsByIDsAndOwnerFunc func(ctx context.Context, ids []int, ownerID int) ([]domain.Product, []int, error)
	LowStockFunc                 func(ctx context.Context, ownerID int, limit, offset int) ([]domain.Product, int, error)
	DeleteProductFunc            func(ctx context.Context, ownerID int, productID int) (int64, error)
	RecentAlertsFunc             func(ctx context.Context, ownerID int, limit int) ([]domain.StockAlert, error)
}

func (m *mockService) GetProductsByIDsAndOwner(ctx context.Context, ids []int, ownerID int) ([]domain.Product, []int, error) {
	return m.GetProductsByIDsAndOwnerFunc(ctx, ids, ownerID)
}

func (m *mockService) LowStock(ctx context.Context, ownerID int, limit, offset int) ([]domain.Product, int, error) {
	return m.LowStockFunc(ctx, ownerID, limit, offset)
}

func (m *mockService) DeleteProduct(ctx context.Context, ownerID int, productID int) (int64, error) {
	return m.DeleteProductFunc(ctx, ownerID, productID)
}

func (m *mockService) RecentAlerts(ctx context.Context, ownerID int, limit int) ([]domain.StockAlert, error) {
	return m.RecentAlertsFunc(ctx, ownerID, limit)
}

func TestSearchProducts_MapsProducts(t *testing.T) {
	svc := &mockService{
		GetProductsByIDsAndOwnerFunc: func(ctx context.Context, ids []int, ownerID int) ([]domain.Product, []int, error) {
			assert.Equal(t, 3, ownerID)
			return []domain.Product{{
				ID:                1,
				Name:              "Yerba",
				SalePrice:         decimal.RequireFromString("5"),
				AcquisitionPrice:  decimal.RequireFromString("3.5"),
				Stock:             4,
				LowStockThreshold: 10,
			}}, nil, nil
		},
	}

	uc := NewProductUseCase(svc, zap.NewNop(), 3)
	resp, err := uc.SearchProducts(context.Background(), 3, dto.SearchProductsRequest{ProductIDs: []int{1}})
	require.NoError(t, err)
	require.Len(t, resp.Products, 1)
	assert.Equal(t, "5.00", resp.Products[0].SalePrice)
	assert.Equal(t, "3.50", resp.Products[0].AcquisitionPrice)
	assert.True(t, resp.Products[0].LowStock)
	assert.NotNil(t, resp.NotFound)
	assert.Empty(t, resp.NotFound)
}

func TestListLowStock_DefaultsAndLimits(t *testing.T) {
	var gotLimit int
	svc := &mockService{
		LowStockFunc: func(ctx context.Context, ownerID int, limit, offset int) ([]domain.Product, int, error) {
			gotLimit = limit
			return nil, 0, nil
		},
	}
	uc := NewProductUseCase(svc, zap.NewNop(), 3)

	page, err := uc.ListLowStock(context.Background(), 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, gotLimit)
	assert.Equal(t, DefaultPageSize, page.Limit)
	assert.NotNil(t, page.Products)

	_, err = uc.ListLowStock(context.Background(), 1, 101, 0)
	_, ok := apperrors.IsValidationError(err)
	assert.True(t, ok)

	_, err = uc.ListLowStock(context.Background(), 1, 10, -1)
	_, ok = apperrors.IsValidationError(err)
	assert.True(t, ok)
}

func TestDeleteProduct_RetriesDeadlocks(t *testing.T) {
	calls := 0
	svc := &mockService{
		DeleteProductFunc: func(ctx context.Context, ownerID int, productID int) (int64, error) {
			calls++
			if calls == 1 {
				return 0, &drv.MySQLError{Number: 1213}
			}
			return 4, nil
		},
	}
	uc := NewProductUseCase(svc, zap.NewNop(), 3)

	resp, err := uc.DeleteProduct(context.Background(), 1, 9)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(4), resp.DetachedLines)
	assert.Equal(t, 9, resp.ProductID)
}

func TestDeleteProduct_ExhaustedAndPlainErrors(t *testing.T) {
	svc := &mockService{
		DeleteProductFunc: func(ctx context.Context, ownerID int, productID int) (int64, error) {
			return 0, &drv.MySQLError{Number: 1205}
		},
	}
	uc := NewProductUseCase(svc, zap.NewNop(), 2)

	_, err := uc.DeleteProduct(context.Background(), 1, 9)
	_, ok := apperrors.IsDeadlockError(err)
	assert.True(t, ok)

	boom := errors.New("boom")
	svc.DeleteProductFunc = func(ctx context.Context, ownerID int, productID int) (int64, error) {
		return 0, boom
	}
	_, err = uc.DeleteProduct(context.Background(), 1, 9)
	assert.ErrorIs(t, err, boom)
}

func TestRecentAlerts(t *testing.T) {
	svc := &mockService{
		RecentAlertsFunc: func(ctx context.Context, ownerID int, limit int) ([]domain.StockAlert, error) {
			assert.Equal(t, 5, limit)
			return []domain.StockAlert{{OwnerID: ownerID, ProductID: 2, Stock: 1, Threshold: 10}}, nil
		},
	}
	uc := NewProductUseCase(svc, zap.NewNop(), 3)

	resp, err := uc.RecentAlerts(context.Background(), 1, 5)
	require.NoError(t, err)
	require.Len(t, resp.Alerts, 1)
	assert.Equal(t, 2, resp.Alerts[0].ProductID)
}
