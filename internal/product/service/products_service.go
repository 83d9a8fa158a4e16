package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"sup/internal/domain"
)

type Repository interface {
	FindByIDsAndOwner(ctx context.Context, ids []int, ownerID int) ([]domain.Product, error)
	FindLowStock(ctx context.Context, ownerID int, limit, offset int) ([]domain.Product, int, error)
	Delete(ctx context.Context, tx *sql.Tx, productID int, ownerID int) error
}

type SaleLineRepository interface {
	ClearProduct(ctx context.Context, tx *sql.Tx, productID int) (int64, error)
}

type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error
}

type AlertFeed interface {
	Recent(ctx context.Context, ownerID int, limit int) ([]domain.StockAlert, error)
}

type ProductService struct {
	repo   Repository
	lines  SaleLineRepository
	tx     TxRunner
	alerts AlertFeed
	logger *zap.Logger
}

func NewService(repo Repository, lines SaleLineRepository, tx TxRunner, alerts AlertFeed, logger *zap.Logger) *ProductService {
	return &ProductService{repo: repo, lines: lines, tx: tx, alerts: alerts, logger: logger}
}

func (s *ProductService) GetProductsByIDsAndOwner(ctx context.Context, ids []int, ownerID int) ([]domain.Product, []int, error) {
	found, err := s.repo.FindByIDsAndOwner(ctx, ids, ownerID)
	if err != nil {
		return nil, nil, err
	}

	foundSet := make(map[int]struct{}, len(found))
	for _, p := range found {
		foundSet[p.ID] = struct{}{}
	}

	var notFoundIDs []int
	for _, id := range ids {
		if _, ok := foundSet[id]; !ok {
			notFoundIDs = append(notFoundIDs, id)
		}
	}

	return found, notFoundIDs, nil
}

func (s *ProductService) LowStock(ctx context.Context, ownerID int, limit, offset int) ([]domain.Product, int, error) {
	return s.repo.FindLowStock(ctx, ownerID, limit, offset)
}

// DeleteProduct detaches the product from every sale line, keeping the
// lines' name and price snapshots, and then deletes it. Both steps share one
// transaction. Lines are locked before the product, the same order the
// ledger uses.
func (s *ProductService) DeleteProduct(ctx context.Context, ownerID int, productID int) (int64, error) {
	var detached int64

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		n, err := s.lines.ClearProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, tx, productID, ownerID); err != nil {
			return err
		}
		detached = n
		return nil
	})
	if err != nil {
		s.logger.Warn("delete product rolled back", zap.Int("productId", productID), zap.Int("ownerId", ownerID), zap.Error(err))
		return 0, err
	}

	s.logger.Info("product deleted", zap.Int("productId", productID), zap.Int64("detachedLines", detached))
	return detached, nil
}

func (s *ProductService) RecentAlerts(ctx context.Context, ownerID int, limit int) ([]domain.StockAlert, error) {
	return s.alerts.Recent(ctx, ownerID, limit)
}
