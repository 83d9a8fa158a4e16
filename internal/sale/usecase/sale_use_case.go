package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"sup/internal/domain"
	"sup/internal/dto"
	apperrors "sup/internal/errors"
	"sup/internal/infrastructure/mysql"
)

const (
	MinQuantity = 1
	MaxQuantity = 10000

	DefaultPageSize = 20
	MaxPageSize     = 100
)

type LedgerService interface {
	OpenSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	CreateLine(ctx context.Context, ownerID int, saleID uint, productID int, quantity int, enforce bool) (*dto.LedgerResult, error)
	UpdateLine(ctx context.Context, ownerID int, saleID uint, lineID uint, quantity int, enforce bool) (*dto.LedgerResult, error)
	DeleteLine(ctx context.Context, ownerID int, saleID uint, lineID uint) (*dto.LedgerResult, error)
	DeleteSale(ctx context.Context, ownerID int, saleID uint) ([]domain.Product, error)
	UpdateSaleHeader(ctx context.Context, ownerID int, saleID uint, in dto.UpdateSaleInput) (*domain.Sale, error)
	ReconcileTotal(ctx context.Context, ownerID int, saleID uint) (*dto.ReconcileResult, error)
}

type SaleRepository interface {
	FindByID(ctx context.Context, id uint, ownerID int) (*domain.Sale, error)
	List(ctx context.Context, ownerID int, filter dto.SaleFilter) ([]domain.Sale, int, error)
}

type SaleLineRepository interface {
	ListBySaleID(ctx context.Context, saleID uint) ([]domain.SaleLine, error)
}

type ProductRepository interface {
	FindByID(ctx context.Context, productID int, ownerID int) (*domain.Product, error)
}

type ClientRepository interface {
	FindOwnerID(ctx context.Context, clientID int) (int, error)
}

type OwnerSettingsRepository interface {
	FindByOwnerID(ctx context.Context, ownerID int) (*domain.OwnerSettings, error)
}

// SaleUseCase validates requests against the owner's data and drives the
// ledger, retrying deadlocked transactions.
type SaleUseCase struct {
	ledger           LedgerService
	sales            SaleRepository
	lines            SaleLineRepository
	products         ProductRepository
	clients          ClientRepository
	settings         OwnerSettingsRepository
	logger           *zap.Logger
	maxRetryAttempts int
	enforceStock     bool
	backoffs         []time.Duration
	now              func() time.Time
}

func NewSaleUseCase(
	ledger LedgerService,
	sales SaleRepository,
	lines SaleLineRepository,
	products ProductRepository,
	clients ClientRepository,
	settings OwnerSettingsRepository,
	logger *zap.Logger,
	maxRetryAttempts int,
	enforceStock bool,
) *SaleUseCase {
	return &SaleUseCase{
		ledger:           ledger,
		sales:            sales,
		lines:            lines,
		products:         products,
		clients:          clients,
		settings:         settings,
		logger:           logger,
		maxRetryAttempts: maxRetryAttempts,
		enforceStock:     enforceStock,
		backoffs:         []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond},
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (uc *SaleUseCase) CreateSale(ctx context.Context, ownerID int, in dto.CreateSaleInput) (*domain.Sale, error) {
	if in.ClientID != nil {
		if err := uc.checkClient(ctx, ownerID, *in.ClientID); err != nil {
			return nil, err
		}
	}

	soldAt := uc.now()
	if in.SoldAt != nil {
		soldAt = in.SoldAt.UTC()
	}

	return uc.ledger.OpenSale(ctx, domain.Sale{
		OwnerID:  ownerID,
		ClientID: in.ClientID,
		Code:     in.Code,
		SoldAt:   soldAt,
	})
}

func (uc *SaleUseCase) GetSale(ctx context.Context, ownerID int, saleID uint) (*domain.Sale, error) {
	sale, err := uc.sales.FindByID(ctx, saleID, ownerID)
	if err != nil {
		return nil, err
	}

	lines, err := uc.lines.ListBySaleID(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Lines = lines

	return sale, nil
}

func (uc *SaleUseCase) ListSales(ctx context.Context, ownerID int, filter dto.SaleFilter) (*dto.SalePage, error) {
	var details []apperrors.ValidationDetail
	if filter.Limit < 0 || filter.Limit > MaxPageSize {
		details = append(details, apperrors.ValidationDetail{
			Field:   "limit",
			Message: fmt.Sprintf("limit must be between 1 and %d", MaxPageSize),
		})
	}
	if filter.Offset < 0 {
		details = append(details, apperrors.ValidationDetail{Field: "offset", Message: "offset must not be negative"})
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		details = append(details, apperrors.ValidationDetail{Field: "from", Message: "from must be before to"})
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("validation failed", details...)
	}

	if filter.Limit == 0 {
		filter.Limit = DefaultPageSize
	}

	sales, total, err := uc.sales.List(ctx, ownerID, filter)
	if err != nil {
		return nil, err
	}

	return &dto.SalePage{Sales: sales, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (uc *SaleUseCase) UpdateSale(ctx context.Context, ownerID int, saleID uint, in dto.UpdateSaleInput) (*domain.Sale, error) {
	if in.WalkIn && in.ClientID != nil {
		return nil, apperrors.NewValidationError("validation failed", apperrors.ValidationDetail{
			Field:   "clientId",
			Message: "clientId must be empty for a walk-in sale",
		})
	}
	if in.ClientID != nil {
		if err := uc.checkClient(ctx, ownerID, *in.ClientID); err != nil {
			return nil, err
		}
	}

	var sale *domain.Sale
	err := uc.withRetry(ctx, "update sale", saleID, func() error {
		var err error
		sale, err = uc.ledger.UpdateSaleHeader(ctx, ownerID, saleID, in)
		return err
	})
	return sale, err
}

func (uc *SaleUseCase) ReconcileTotal(ctx context.Context, ownerID int, saleID uint) (*dto.ReconcileResult, error) {
	var result *dto.ReconcileResult
	err := uc.withRetry(ctx, "reconcile total", saleID, func() error {
		var err error
		result, err = uc.ledger.ReconcileTotal(ctx, ownerID, saleID)
		return err
	})
	return result, err
}

func (uc *SaleUseCase) AddLine(ctx context.Context, ownerID int, saleID uint, in dto.AddLineInput) (*dto.LedgerResult, error) {
	uc.logger.Info("add line started", zap.Uint("saleId", saleID), zap.Int("ownerId", ownerID), zap.Int("productId", in.ProductID), zap.Int("quantity", in.Quantity))

	var details []apperrors.ValidationDetail
	if in.ProductID <= 0 {
		details = append(details, apperrors.ValidationDetail{Field: "productId", Message: "productId must be a positive integer"})
	}
	if d := validateQuantity(in.Quantity); d != nil {
		details = append(details, *d)
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("validation failed", details...)
	}

	if _, err := uc.sales.FindByID(ctx, saleID, ownerID); err != nil {
		return nil, err
	}

	product, err := uc.products.FindByID(ctx, in.ProductID, ownerID)
	if err != nil {
		return nil, err
	}

	enforce, err := uc.stockEnforced(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if enforce && !product.CanSupply(in.Quantity) {
		return nil, insufficientStock(product.Stock)
	}

	var result *dto.LedgerResult
	err = uc.withRetry(ctx, "create line", saleID, func() error {
		var err error
		result, err = uc.ledger.CreateLine(ctx, ownerID, saleID, in.ProductID, in.Quantity, enforce)
		return err
	})
	return result, err
}

func (uc *SaleUseCase) EditLine(ctx context.Context, ownerID int, saleID uint, lineID uint, quantity int) (*dto.LedgerResult, error) {
	if d := validateQuantity(quantity); d != nil {
		return nil, apperrors.NewValidationError("validation failed", *d)
	}

	sale, err := uc.GetSale(ctx, ownerID, saleID)
	if err != nil {
		return nil, err
	}

	var line *domain.SaleLine
	for i := range sale.Lines {
		if sale.Lines[i].ID == lineID {
			line = &sale.Lines[i]
			break
		}
	}
	if line == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("sale line with id %d not found in sale %d", lineID, saleID))
	}

	enforce, err := uc.stockEnforced(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if delta := quantity - line.Quantity; enforce && delta > 0 && line.HasProduct() {
		product, err := uc.products.FindByID(ctx, *line.ProductID, ownerID)
		if err != nil {
			return nil, err
		}
		if !product.CanSupply(delta) {
			return nil, insufficientStock(product.Stock + line.Quantity)
		}
	}

	var result *dto.LedgerResult
	err = uc.withRetry(ctx, "update line", saleID, func() error {
		var err error
		result, err = uc.ledger.UpdateLine(ctx, ownerID, saleID, lineID, quantity, enforce)
		return err
	})
	return result, err
}

func (uc *SaleUseCase) RemoveLine(ctx context.Context, ownerID int, saleID uint, lineID uint) (*dto.LedgerResult, error) {
	var result *dto.LedgerResult
	err := uc.withRetry(ctx, "delete line", saleID, func() error {
		var err error
		result, err = uc.ledger.DeleteLine(ctx, ownerID, saleID, lineID)
		return err
	})
	return result, err
}

func (uc *SaleUseCase) DeleteSale(ctx context.Context, ownerID int, saleID uint) ([]domain.Product, error) {
	var restored []domain.Product
	err := uc.withRetry(ctx, "delete sale", saleID, func() error {
		var err error
		restored, err = uc.ledger.DeleteSale(ctx, ownerID, saleID)
		return err
	})
	return restored, err
}

func (uc *SaleUseCase) checkClient(ctx context.Context, ownerID int, clientID int) error {
	clientOwner, err := uc.clients.FindOwnerID(ctx, clientID)
	if err != nil {
		return err
	}
	if clientOwner != ownerID {
		return apperrors.NewForbiddenError("client belongs to another owner")
	}
	return nil
}

// stockEnforced reads the owner's setting and falls back to the configured
// default when the owner has none.
func (uc *SaleUseCase) stockEnforced(ctx context.Context, ownerID int) (bool, error) {
	settings, err := uc.settings.FindByOwnerID(ctx, ownerID)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			return uc.enforceStock, nil
		}
		return false, err
	}
	return settings.EnforceStock, nil
}

func (uc *SaleUseCase) withRetry(ctx context.Context, op string, saleID uint, fn func() error) error {
	maxAttempts := uc.maxRetryAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !mysql.IsRetryable(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		uc.logger.Warn("deadlock detected, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", maxAttempts),
			zap.Uint("saleId", saleID),
		)
		if err := sleepCtx(ctx, uc.backoff(attempt)); err != nil {
			return err
		}
	}

	uc.logger.Error("retries exhausted", zap.String("operation", op), zap.Uint("saleId", saleID))
	return apperrors.NewDeadlockError("max retries exceeded")
}

// backoff returns the wait before the next attempt, with ±20% jitter.
func (uc *SaleUseCase) backoff(attempt int) time.Duration {
	if len(uc.backoffs) == 0 {
		return 0
	}
	idx := attempt
	if idx >= len(uc.backoffs) {
		idx = len(uc.backoffs) - 1
	}
	base := uc.backoffs[idx]
	return time.Duration(float64(base) * (0.8 + rand.Float64()*0.4))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func validateQuantity(quantity int) *apperrors.ValidationDetail {
	if quantity < MinQuantity || quantity > MaxQuantity {
		return &apperrors.ValidationDetail{
			Field:   "quantity",
			Message: fmt.Sprintf("quantity must be between %d and %d", MinQuantity, MaxQuantity),
		}
	}
	return nil
}

func insufficientStock(available int) error {
	return apperrors.NewValidationError("validation failed", apperrors.ValidationDetail{
		Field:   "quantity",
		Message: fmt.Sprintf("quantity exceeds available stock (%d)", available),
	})
}
