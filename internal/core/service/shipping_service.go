package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-orders/internal/core/domain"
	"github.com/rl1809/storefront-orders/internal/metrics"
	"github.com/rl1809/storefront-orders/internal/port"
)

type ShippingService struct {
	provider port.ShippingRateProvider
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewShippingService(provider port.ShippingRateProvider, m *metrics.Metrics, logger zerolog.Logger) *ShippingService {
	return &ShippingService{provider: provider, metrics: m, logger: logger}
}

// CalculateShippingFee returns the carrier's quote for the parcel. When the
// carrier fails the error wraps ErrServiceUnavailable; falling back to a flat
// fee is the caller's decision.
func (s *ShippingService) CalculateShippingFee(ctx context.Context, districtID int, wardCode string, items []domain.ParcelItem) (*domain.ShippingQuote, error) {
	if districtID <= 0 {
		return nil, fmt.Errorf("%w: districtId is required", ErrValidation)
	}
	if strings.TrimSpace(wardCode) == "" {
		return nil, fmt.Errorf("%w: wardCode is required", ErrValidation)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrValidation)
	}
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d: quantity must be positive", ErrValidation, i)
		}
		if item.Weight < 0 || item.Price.IsNegative() {
			return nil, fmt.Errorf("%w: item %d: weight and price must not be negative", ErrValidation, i)
		}
	}

	parcel := BuildParcel(districtID, wardCode, items)

	quote, err := s.provider.Quote(ctx, parcel)
	if err != nil {
		s.metrics.ShippingQuote("unavailable")
		s.logger.Warn().Err(err).Int("district_id", districtID).Msg("shipping rate provider failed")
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}

	s.metrics.ShippingQuote("ok")
	quote.Weight = parcel.Weight
	quote.InsuranceValue = parcel.InsuranceValue
	return quote, nil
}

// BuildParcel sums weight (unknown weights count as DefaultItemWeight, total
// capped at MaxParcelWeight) and declared value.
func BuildParcel(districtID int, wardCode string, items []domain.ParcelItem) domain.Parcel {
	weight := 0
	value := decimal.Zero
	for _, item := range items {
		// products.weight is nullable and scans to 0, so 0 means unknown.
		w := item.Weight
		if w == 0 {
			w = domain.DefaultItemWeight
		}
		weight = addCapped(weight, w, item.Quantity)
		value = value.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	return domain.Parcel{
		ToDistrictID:   districtID,
		ToWardCode:     wardCode,
		Weight:         weight,
		InsuranceValue: value,
	}
}

// addCapped returns total + w*qty clamped to MaxParcelWeight without ever
// computing a product that could overflow.
func addCapped(total, w, qty int) int {
	if total >= domain.MaxParcelWeight || w <= 0 || qty <= 0 {
		return min(total, domain.MaxParcelWeight)
	}
	room := domain.MaxParcelWeight - total
	if w > room/qty {
		return domain.MaxParcelWeight
	}
	return total + w*qty
}
