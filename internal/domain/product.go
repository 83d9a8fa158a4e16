package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const DefaultLowStockThreshold = 10

type Product struct {
	ID                int
	OwnerID           int
	SupplierID        *int
	Code              int
	Name              string
	Description       string
	Unit              string
	SalePrice         decimal.Decimal
	AcquisitionPrice  decimal.Decimal
	Stock             int
	LowStockThreshold int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsLowStock reports whether the on-hand quantity dropped under the alert
// threshold. A product sitting exactly at the threshold is not low.
func (p Product) IsLowStock() bool {
	return p.Stock < p.LowStockThreshold
}

func (p Product) CanSupply(quantity int) bool {
	return quantity <= p.Stock
}
