package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog row the order core reads. Only Stock and
// SoldQuantity are ever written from here.
type Product struct {
	ID           string
	Name         string
	Price        decimal.Decimal
	Stock        int
	SoldQuantity int
	IsAvailable  bool
	Weight       int // grams
	Images       []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (p Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
