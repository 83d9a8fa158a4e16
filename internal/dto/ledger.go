package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"sup/internal/domain"
)

// LedgerResult is the committed state after a line mutation: the sale with
// its recomputed total and live lines, the line that was touched (nil when it
// was removed) and the products whose stock moved.
type LedgerResult struct {
	Sale     domain.Sale
	Line     *domain.SaleLine
	Products []domain.Product
}

type ReconcileResult struct {
	Sale     domain.Sale
	Previous decimal.Decimal
	Drifted  bool
}

type CreateSaleInput struct {
	ClientID *int
	Code     int
	SoldAt   *time.Time
}

// UpdateSaleInput carries the header fields to change. Nil fields are left
// alone; WalkIn detaches the client.
type UpdateSaleInput struct {
	ClientID *int
	WalkIn   bool
	Code     *int
	SoldAt   *time.Time
}

type SaleFilter struct {
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

type SalePage struct {
	Sales  []domain.Sale
	Total  int
	Limit  int
	Offset int
}

type AddLineInput struct {
	ProductID int
	Quantity  int
}
