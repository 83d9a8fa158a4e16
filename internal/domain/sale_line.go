package domain

import "github.com/shopspring/decimal"

// SaleLine is one product/quantity entry of a sale. ProductName and
// UnitPrice are copied from the product when the line is created and are
// never re-derived, so the line keeps its history after the product changes
// price or is deleted from the catalog.
type SaleLine struct {
	ID          uint
	SaleID      uint
	ProductID   *int
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	Subtotal    decimal.Decimal
}

func NewSaleLine(saleID uint, product Product, quantity int) SaleLine {
	productID := product.ID
	return SaleLine{
		SaleID:      saleID,
		ProductID:   &productID,
		ProductName: product.Name,
		Quantity:    quantity,
		UnitPrice:   product.SalePrice,
		Subtotal:    LineSubtotal(quantity, product.SalePrice),
	}
}

func (l SaleLine) HasProduct() bool {
	return l.ProductID != nil
}

// SetQuantity changes the quantity and recomputes the subtotal from the
// price snapshot.
func (l *SaleLine) SetQuantity(quantity int) {
	l.Quantity = quantity
	l.Subtotal = LineSubtotal(quantity, l.UnitPrice)
}

func LineSubtotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// SumSubtotals is the only way a sale total is derived: a full re-summation
// over the live line set.
func SumSubtotals(lines []SaleLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal)
	}
	return total
}
