package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Sale struct {
	ID        uint
	OwnerID   int
	ClientID  *int
	Code      int
	SoldAt    time.Time
	Total     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
	Lines     []SaleLine
}

// IsWalkIn reports a sale made to an unregistered buyer.
func (s Sale) IsWalkIn() bool {
	return s.ClientID == nil
}
