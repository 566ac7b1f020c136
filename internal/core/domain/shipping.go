package domain

import "github.com/shopspring/decimal"

const (
	DefaultItemWeight = 200   // grams, used when a product has no weight
	MaxParcelWeight   = 30000 // grams, carrier limit
)

// ParcelItem is one line of a shipping quote request.
type ParcelItem struct {
	Weight   int // grams, 0 means unknown
	Price    decimal.Decimal
	Quantity int
}

// Parcel is what gets sent to the rate provider. Origin and dimensions are
// filled in by the provider adapter from configuration.
type Parcel struct {
	ToDistrictID   int
	ToWardCode     string
	Weight         int
	InsuranceValue decimal.Decimal
}

type ShippingQuote struct {
	Fee            decimal.Decimal
	ServiceFee     decimal.Decimal
	InsuranceFee   decimal.Decimal
	Weight         int
	InsuranceValue decimal.Decimal
}
