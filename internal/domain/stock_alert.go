package domain

import "time"

type StockAlert struct {
	OwnerID     int       `json:"ownerId"`
	ProductID   int       `json:"productId"`
	ProductName string    `json:"productName"`
	Stock       int       `json:"stock"`
	Threshold   int       `json:"threshold"`
	SaleID      uint      `json:"saleId"`
	RaisedAt    time.Time `json:"raisedAt"`
}

func NewStockAlert(p Product, saleID uint, at time.Time) StockAlert {
	return StockAlert{
		OwnerID:     p.OwnerID,
		ProductID:   p.ID,
		ProductName: p.Name,
		Stock:       p.Stock,
		Threshold:   p.LowStockThreshold,
		SaleID:      saleID,
		RaisedAt:    at,
	}
}
