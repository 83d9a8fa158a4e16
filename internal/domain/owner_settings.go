package domain

import "time"

type OwnerSettings struct {
	ID           int
	OwnerID      int
	EnforceStock bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
