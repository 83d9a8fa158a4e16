package dto

import (
	"sup/internal/domain"
)

type SearchProductsRequest struct {
	ProductIDs []int `json:"productIds"`
}

type SearchProductsResponse struct {
	Products []ProductDTO `json:"products"`
	NotFound []int        `json:"notFound"`
}

type ProductDTO struct {
	ID                int    `json:"id"`
	SupplierID        *int   `json:"supplierId"`
	Code              int    `json:"code"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	Unit              string `json:"unit"`
	SalePrice         string `json:"salePrice"`
	AcquisitionPrice  string `json:"acquisitionPrice"`
	Stock             int    `json:"stock"`
	LowStockThreshold int    `json:"lowStockThreshold"`
	LowStock          bool   `json:"lowStock"`
}

type ProductPage struct {
	Products []ProductDTO `json:"products"`
	Total    int          `json:"total"`
	Limit    int          `json:"limit"`
	Offset   int          `json:"offset"`
}

type DeleteProductResponse struct {
	ProductID     int   `json:"productId"`
	DetachedLines int64 `json:"detachedLines"`
}

type AlertsResponse struct {
	Alerts []domain.StockAlert `json:"alerts"`
}

func NewProductDTO(p domain.Product) ProductDTO {
	return ProductDTO{
		ID:                p.ID,
		SupplierID:        p.SupplierID,
		Code:              p.Code,
		Name:              p.Name,
		Description:       p.Description,
		Unit:              p.Unit,
		SalePrice:         p.SalePrice.StringFixed(2),
		AcquisitionPrice:  p.AcquisitionPrice.StringFixed(2),
		Stock:             p.Stock,
		LowStockThreshold: p.LowStockThreshold,
		LowStock:          p.IsLowStock(),
	}
}
