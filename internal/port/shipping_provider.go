package port

import (
	"context"

	"github.com/rl1809/storefront-orders/internal/core/domain"
)

type ShippingRateProvider interface {
	// Quote asks the carrier for the fee of a parcel. Any transport or
	// carrier-side failure is returned as an error; no fee is guessed.
	Quote(ctx context.Context, parcel domain.Parcel) (*domain.ShippingQuote, error)
}
