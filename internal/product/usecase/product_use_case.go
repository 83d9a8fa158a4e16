package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sup/internal/domain"
	"sup/internal/dto"
	apperrors "sup/internal/errors"
	"sup/internal/infrastructure/mysql"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Service interface {
	GetProductsByIDsAndOwner(ctx context.Context, ids []int, ownerID int) (found []domain.Product, notFoundIDs []int, err error)
	LowStock(ctx context.Context, ownerID int, limit, offset int) ([]domain.Product, int, error)
	DeleteProduct(ctx context.Context, ownerID int, productID int) (int64, error)
	RecentAlerts(ctx context.Context, ownerID int, limit int) ([]domain.StockAlert, error)
}

type ProductUseCase struct {
	service          Service
	logger           *zap.Logger
	maxRetryAttempts int
}

func NewProductUseCase(service Service, logger *zap.Logger, maxRetryAttempts int) *ProductUseCase {
	return &ProductUseCase{service: service, logger: logger, maxRetryAttempts: maxRetryAttempts}
}

func (uc *ProductUseCase) SearchProducts(ctx context.Context, ownerID int, req dto.SearchProductsRequest) (*dto.SearchProductsResponse, error) {
	found, notFoundIDs, err := uc.service.GetProductsByIDsAndOwner(ctx, req.ProductIDs, ownerID)
	if err != nil {
		return nil, err
	}

	products := make([]dto.ProductDTO, 0, len(found))
	for _, p := range found {
		products = append(products, dto.NewProductDTO(p))
	}

	if notFoundIDs == nil {
		notFoundIDs = []int{}
	}

	return &dto.SearchProductsResponse{
		Products: products,
		NotFound: notFoundIDs,
	}, nil
}

func (uc *ProductUseCase) ListLowStock(ctx context.Context, ownerID int, limit, offset int) (*dto.ProductPage, error) {
	limit, err := pageSize(limit)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, apperrors.NewValidationError("validation failed", apperrors.ValidationDetail{
			Field:   "offset",
			Message: "offset must not be negative",
		})
	}

	found, total, err := uc.service.LowStock(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}

	products := make([]dto.ProductDTO, 0, len(found))
	for _, p := range found {
		products = append(products, dto.NewProductDTO(p))
	}

	return &dto.ProductPage{Products: products, Total: total, Limit: limit, Offset: offset}, nil
}

// DeleteProduct retries lock conflicts with sale line edits running on the
// same rows.
func (uc *ProductUseCase) DeleteProduct(ctx context.Context, ownerID int, productID int) (*dto.DeleteProductResponse, error) {
	attempts := uc.maxRetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		detached, err := uc.service.DeleteProduct(ctx, ownerID, productID)
		if err == nil {
			return &dto.DeleteProductResponse{ProductID: productID, DetachedLines: detached}, nil
		}
		if !mysql.IsRetryable(err) {
			return nil, err
		}
		uc.logger.Warn("deadlock detected, retrying", zap.String("operation", "delete product"), zap.Int("attempt", attempt), zap.Int("productId", productID))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, apperrors.NewDeadlockError("max retries exceeded")
}

func (uc *ProductUseCase) RecentAlerts(ctx context.Context, ownerID int, limit int) (*dto.AlertsResponse, error) {
	limit, err := pageSize(limit)
	if err != nil {
		return nil, err
	}

	alerts, err := uc.service.RecentAlerts(ctx, ownerID, limit)
	if err != nil {
		return nil, err
	}
	return &dto.AlertsResponse{Alerts: alerts}, nil
}

func pageSize(limit int) (int, error) {
	if limit == 0 {
		return DefaultPageSize, nil
	}
	if limit < 0 || limit > MaxPageSize {
		return 0, apperrors.NewValidationError("validation failed", apperrors.ValidationDetail{
			Field:   "limit",
			Message: fmt.Sprintf("limit must be between 1 and %d", MaxPageSize),
		})
	}
	return limit, nil
}
