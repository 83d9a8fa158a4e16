package dto

import "time"

type CreateSaleRequest struct {
	ClientID *int       `json:"clientId"`
	Code     int        `json:"code"`
	SoldAt   *time.Time `json:"soldAt"`
}

type UpdateSaleRequest struct {
	ClientID *int       `json:"clientId"`
	WalkIn   bool       `json:"walkIn"`
	Code     *int       `json:"code"`
	SoldAt   *time.Time `json:"soldAt"`
}

type AddLineRequest struct {
	ProductID int `json:"productId"`
	Quantity  int `json:"quantity"`
}

type UpdateLineRequest struct {
	Quantity int `json:"quantity"`
}
