package service

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sup/internal/domain"
	"sup/internal/dto"
	apperrors "sup/internal/errors"
)

type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error
}

type ProductRepository interface {
	FindByIDForUpdate(ctx context.Context, tx *sql.Tx, productID int, ownerID int) (*domain.Product, error)
	AdjustStock(ctx context.Context, tx *sql.Tx, productID int, delta int) error
}

type SaleRepository interface {
	Insert(ctx context.Context, tx *sql.Tx, sale domain.Sale) (uint, error)
	FindByIDForUpdate(ctx context.Context, tx *sql.Tx, id uint, ownerID int) (*domain.Sale, error)
	UpdateHeader(ctx context.Context, tx *sql.Tx, sale domain.Sale) error
	UpdateTotal(ctx context.Context, tx *sql.Tx, id uint, total decimal.Decimal) error
	Delete(ctx context.Context, tx *sql.Tx, id uint) error
}

type SaleLineRepository interface {
	Insert(ctx context.Context, tx *sql.Tx, line domain.SaleLine) (uint, error)
	FindByIDForUpdate(ctx context.Context, tx *sql.Tx, saleID uint, lineID uint) (*domain.SaleLine, error)
	FindBySaleIDForUpdate(ctx context.Context, tx *sql.Tx, saleID uint) ([]domain.SaleLine, error)
	UpdateQuantity(ctx context.Context, tx *sql.Tx, lineID uint, quantity int, subtotal decimal.Decimal) error
	Delete(ctx context.Context, tx *sql.Tx, lineID uint) error
	DeleteBySaleID(ctx context.Context, tx *sql.Tx, saleID uint) error
}

type AlertPublisher interface {
	Publish(ctx context.Context, alert domain.StockAlert) error
}

// LedgerService keeps sale totals, line subtotals and product stock in
// agreement. Every operation is one transaction. Rows are locked sale first,
// then line, then products by ascending id.
//
// Callers validate input. The only check repeated here is the stock check,
// done under the product lock when enforce is set.
type LedgerService struct {
	tx       TxRunner
	products ProductRepository
	sales    SaleRepository
	lines    SaleLineRepository
	alerts   AlertPublisher
	logger   *zap.Logger
	now      func() time.Time
}

func NewLedgerService(
	tx TxRunner,
	products ProductRepository,
	sales SaleRepository,
	lines SaleLineRepository,
	alerts AlertPublisher,
	logger *zap.Logger,
) *LedgerService {
	return &LedgerService{
		tx:       tx,
		products: products,
		sales:    sales,
		lines:    lines,
		alerts:   alerts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// OpenSale stores an empty sale with a zero total.
func (s *LedgerService) OpenSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	sale.Total = decimal.Zero
	sale.Lines = nil

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		id, err := s.sales.Insert(ctx, tx, sale)
		if err != nil {
			return err
		}
		sale.ID = id
		return nil
	})
	if err != nil {
		s.logger.Error("failed to open sale", zap.Int("ownerId", sale.OwnerID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("sale opened", zap.Uint("saleId", sale.ID), zap.Int("ownerId", sale.OwnerID))
	return &sale, nil
}

func (s *LedgerService) CreateLine(ctx context.Context, ownerID int, saleID uint, productID int, quantity int, enforce bool) (*dto.LedgerResult, error) {
	var result dto.LedgerResult

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		sale, err := s.sales.FindByIDForUpdate(ctx, tx, saleID, ownerID)
		if err != nil {
			return err
		}

		product, err := s.products.FindByIDForUpdate(ctx, tx, productID, ownerID)
		if err != nil {
			return err
		}

		if enforce && !product.CanSupply(quantity) {
			return apperrors.NewInsufficientStockError(product.ID, quantity, product.Stock)
		}

		if err := s.products.AdjustStock(ctx, tx, product.ID, -quantity); err != nil {
			return err
		}
		product.Stock -= quantity

		line := domain.NewSaleLine(sale.ID, *product, quantity)
		line.ID, err = s.lines.Insert(ctx, tx, line)
		if err != nil {
			return err
		}

		// the new line must be in place before the total is summed
		if err := s.recomputeTotal(ctx, tx, sale); err != nil {
			return err
		}

		result = dto.LedgerResult{Sale: *sale, Line: &line, Products: []domain.Product{*product}}
		return nil
	})
	if err != nil {
		s.logger.Warn("create line rolled back", zap.Uint("saleId", saleID), zap.Int("productId", productID), zap.Int("quantity", quantity), zap.Error(err))
		return nil, err
	}

	s.logger.Info("line created",
		zap.Uint("saleId", saleID),
		zap.Uint("lineId", result.Line.ID),
		zap.Int("productId", productID),
		zap.Int("quantity", quantity),
		zap.String("total", result.Sale.Total.String()),
	)
	s.publishLowStock(ctx, saleID, result.Products)
	return &result, nil
}

func (s *LedgerService) UpdateLine(ctx context.Context, ownerID int, saleID uint, lineID uint, quantity int, enforce bool) (*dto.LedgerResult, error) {
	var result dto.LedgerResult
	var decreased []domain.Product

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		sale, err := s.sales.FindByIDForUpdate(ctx, tx, saleID, ownerID)
		if err != nil {
			return err
		}

		line, err := s.lines.FindByIDForUpdate(ctx, tx, saleID, lineID)
		if err != nil {
			return err
		}

		delta := quantity - line.Quantity
		result.Products = []domain.Product{}

		if line.HasProduct() {
			product, err := s.products.FindByIDForUpdate(ctx, tx, *line.ProductID, ownerID)
			if err != nil {
				return err
			}

			if enforce && delta > 0 && !product.CanSupply(delta) {
				return apperrors.NewInsufficientStockError(product.ID, delta, product.Stock)
			}

			if delta != 0 {
				if err := s.products.AdjustStock(ctx, tx, product.ID, -delta); err != nil {
					return err
				}
				product.Stock -= delta
			}
			result.Products = append(result.Products, *product)
			if delta > 0 {
				decreased = append(decreased, *product)
			}
		}

		// priced from the snapshot, never from the product's current price
		line.SetQuantity(quantity)
		if err := s.lines.UpdateQuantity(ctx, tx, line.ID, line.Quantity, line.Subtotal); err != nil {
			return err
		}

		if err := s.recomputeTotal(ctx, tx, sale); err != nil {
			return err
		}

		result.Sale = *sale
		result.Line = line
		return nil
	})
	if err != nil {
		s.logger.Warn("update line rolled back", zap.Uint("saleId", saleID), zap.Uint("lineId", lineID), zap.Int("quantity", quantity), zap.Error(err))
		return nil, err
	}

	s.logger.Info("line updated",
		zap.Uint("saleId", saleID),
		zap.Uint("lineId", lineID),
		zap.Int("quantity", quantity),
		zap.String("total", result.Sale.Total.String()),
	)
	s.publishLowStock(ctx, saleID, decreased)
	return &result, nil
}

func (s *LedgerService) DeleteLine(ctx context.Context, ownerID int, saleID uint, lineID uint) (*dto.LedgerResult, error) {
	var result dto.LedgerResult

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		sale, err := s.sales.FindByIDForUpdate(ctx, tx, saleID, ownerID)
		if err != nil {
			return err
		}

		line, err := s.lines.FindByIDForUpdate(ctx, tx, saleID, lineID)
		if err != nil {
			return err
		}

		result.Products = []domain.Product{}
		if line.HasProduct() {
			product, err := s.restoreStock(ctx, tx, ownerID, *line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			result.Products = append(result.Products, *product)
		}

		if err := s.lines.Delete(ctx, tx, line.ID); err != nil {
			return err
		}

		if err := s.recomputeTotal(ctx, tx, sale); err != nil {
			return err
		}

		result.Sale = *sale
		return nil
	})
	if err != nil {
		s.logger.Warn("delete line rolled back", zap.Uint("saleId", saleID), zap.Uint("lineId", lineID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("line deleted", zap.Uint("saleId", saleID), zap.Uint("lineId", lineID), zap.String("total", result.Sale.Total.String()))
	return &result, nil
}

// DeleteSale gives back the stock of every line that still points at a
// product and then removes the sale with its lines. The total is not
// recomputed.
func (s *LedgerService) DeleteSale(ctx context.Context, ownerID int, saleID uint) ([]domain.Product, error) {
	var restored []domain.Product

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		sale, err := s.sales.FindByIDForUpdate(ctx, tx, saleID, ownerID)
		if err != nil {
			return err
		}

		lines, err := s.lines.FindBySaleIDForUpdate(ctx, tx, sale.ID)
		if err != nil {
			return err
		}

		quantities := map[int]int{}
		for _, l := range lines {
			if l.HasProduct() {
				quantities[*l.ProductID] += l.Quantity
			}
		}

		productIDs := make([]int, 0, len(quantities))
		for id := range quantities {
			productIDs = append(productIDs, id)
		}
		sort.Ints(productIDs)

		restored = make([]domain.Product, 0, len(productIDs))
		for _, id := range productIDs {
			product, err := s.restoreStock(ctx, tx, ownerID, id, quantities[id])
			if err != nil {
				return err
			}
			restored = append(restored, *product)
		}

		if err := s.lines.DeleteBySaleID(ctx, tx, sale.ID); err != nil {
			return err
		}
		return s.sales.Delete(ctx, tx, sale.ID)
	})
	if err != nil {
		s.logger.Warn("delete sale rolled back", zap.Uint("saleId", saleID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("sale deleted", zap.Uint("saleId", saleID), zap.Int("restoredProducts", len(restored)))
	return restored, nil
}

// UpdateSaleHeader edits the header fields and re-sums the total in the same
// transaction.
func (s *LedgerService) UpdateSaleHeader(ctx context.Context, ownerID int, saleID uint, in dto.UpdateSaleInput) (*domain.Sale, error) {
	var updated domain.Sale

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		sale, err := s.sales.FindByIDForUpdate(ctx, tx, saleID, ownerID)
		if err != nil {
			return err
		}

		switch {
		case in.WalkIn:
			sale.ClientID = nil
		case in.ClientID != nil:
			sale.ClientID = in.ClientID
		}
		if in.Code != nil {
			sale.Code = *in.Code
		}
		if in.SoldAt != nil {
			sale.SoldAt = in.SoldAt.UTC()
		}

		if err := s.sales.UpdateHeader(ctx, tx, *sale); err != nil {
			return err
		}
		if err := s.recomputeTotal(ctx, tx, sale); err != nil {
			return err
		}

		updated = *sale
		return nil
	})
	if err != nil {
		s.logger.Warn("update sale rolled back", zap.Uint("saleId", saleID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("sale updated", zap.Uint("saleId", saleID), zap.String("total", updated.Total.String()))
	return &updated, nil
}

// ReconcileTotal re-sums a sale and reports whether the stored total had
// drifted from its lines.
func (s *LedgerService) ReconcileTotal(ctx context.Context, ownerID int, saleID uint) (*dto.ReconcileResult, error) {
	var result dto.ReconcileResult

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		sale, err := s.sales.FindByIDForUpdate(ctx, tx, saleID, ownerID)
		if err != nil {
			return err
		}

		result.Previous = sale.Total
		if err := s.recomputeTotal(ctx, tx, sale); err != nil {
			return err
		}

		result.Sale = *sale
		result.Drifted = !result.Previous.Equal(sale.Total)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Drifted {
		s.logger.Warn("sale total drift corrected",
			zap.Uint("saleId", saleID),
			zap.String("previous", result.Previous.String()),
			zap.String("total", result.Sale.Total.String()),
		)
	}
	return &result, nil
}

func (s *LedgerService) restoreStock(ctx context.Context, tx *sql.Tx, ownerID int, productID int, quantity int) (*domain.Product, error) {
	product, err := s.products.FindByIDForUpdate(ctx, tx, productID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.products.AdjustStock(ctx, tx, product.ID, quantity); err != nil {
		return nil, err
	}
	product.Stock += quantity
	return product, nil
}

// recomputeTotal sets sale.Total to the sum of the sale's current lines and
// persists it. sale.Lines is refreshed with the same line set.
func (s *LedgerService) recomputeTotal(ctx context.Context, tx *sql.Tx, sale *domain.Sale) error {
	lines, err := s.lines.FindBySaleIDForUpdate(ctx, tx, sale.ID)
	if err != nil {
		return err
	}

	total := domain.SumSubtotals(lines)
	if err := s.sales.UpdateTotal(ctx, tx, sale.ID, total); err != nil {
		return err
	}

	sale.Total = total
	sale.Lines = lines
	return nil
}

// publishLowStock runs after commit. A failed publish is logged and the
// committed operation still succeeds.
func (s *LedgerService) publishLowStock(ctx context.Context, saleID uint, products []domain.Product) {
	for _, p := range products {
		if !p.IsLowStock() {
			continue
		}
		alert := domain.NewStockAlert(p, saleID, s.now())
		if err := s.alerts.Publish(ctx, alert); err != nil {
			s.logger.Warn("failed to publish stock alert", zap.Int("productId", p.ID), zap.Int("stock", p.Stock), zap.Error(err))
			continue
		}
		s.logger.Info("low stock alert published", zap.Int("productId", p.ID), zap.Int("stock", p.Stock), zap.Int("threshold", p.LowStockThreshold))
	}
}
