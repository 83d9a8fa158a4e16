package dto

import (
	"time"

	"sup/internal/domain"
)

type SaleResponse struct {
	ID       uint               `json:"id"`
	ClientID *int               `json:"clientId"`
	WalkIn   bool               `json:"walkIn"`
	Code     int                `json:"code"`
	SoldAt   time.Time          `json:"soldAt"`
	Total    string             `json:"total"`
	Lines    []SaleLineResponse `json:"lines,omitempty"`
}

type SaleLineResponse struct {
	ID          uint   `json:"id"`
	ProductID   *int   `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	Subtotal    string `json:"subtotal"`
}

type ProductStockDTO struct {
	ID       int  `json:"id"`
	Stock    int  `json:"stock"`
	LowStock bool `json:"lowStock"`
}

type LedgerResponse struct {
	TraceID   string            `json:"traceId"`
	Sale      SaleResponse      `json:"sale"`
	Line      *SaleLineResponse `json:"line,omitempty"`
	Products  []ProductStockDTO `json:"products"`
	Timestamp time.Time         `json:"timestamp"`
}

type SaleListResponse struct {
	Sales  []SaleResponse `json:"sales"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type ReconcileResponse struct {
	TraceID       string       `json:"traceId"`
	Sale          SaleResponse `json:"sale"`
	PreviousTotal string       `json:"previousTotal"`
	Drifted       bool         `json:"drifted"`
}

type ErrorResponse struct {
	TraceID   string    `json:"traceId"`
	Status    int       `json:"status"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// Amounts are rendered with two decimals, the precision they are stored with.
func NewSaleResponse(s domain.Sale) SaleResponse {
	resp := SaleResponse{
		ID:       s.ID,
		ClientID: s.ClientID,
		WalkIn:   s.IsWalkIn(),
		Code:     s.Code,
		SoldAt:   s.SoldAt,
		Total:    s.Total.StringFixed(2),
	}
	if len(s.Lines) > 0 {
		resp.Lines = make([]SaleLineResponse, len(s.Lines))
		for i, l := range s.Lines {
			resp.Lines[i] = NewSaleLineResponse(l)
		}
	}
	return resp
}

func NewSaleLineResponse(l domain.SaleLine) SaleLineResponse {
	return SaleLineResponse{
		ID:          l.ID,
		ProductID:   l.ProductID,
		ProductName: l.ProductName,
		Quantity:    l.Quantity,
		UnitPrice:   l.UnitPrice.StringFixed(2),
		Subtotal:    l.Subtotal.StringFixed(2),
	}
}

func NewLedgerResponse(traceID string, result *LedgerResult, now time.Time) LedgerResponse {
	resp := LedgerResponse{
		TraceID:   traceID,
		Sale:      NewSaleResponse(result.Sale),
		Products:  make([]ProductStockDTO, len(result.Products)),
		Timestamp: now,
	}
	if result.Line != nil {
		line := NewSaleLineResponse(*result.Line)
		resp.Line = &line
	}
	for i, p := range result.Products {
		resp.Products[i] = ProductStockDTO{ID: p.ID, Stock: p.Stock, LowStock: p.IsLowStock()}
	}
	return resp
}
