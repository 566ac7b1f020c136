package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-orders/internal/core/domain"
)

type mockProvider struct {
	last  domain.Parcel
	calls int
	err   error
}

func (m *mockProvider) Quote(ctx context.Context, parcel domain.Parcel) (*domain.ShippingQuote, error) {
	m.calls++
	m.last = parcel
	if m.err != nil {
		return nil, m.err
	}
	return &domain.ShippingQuote{
		Fee:          decimal.NewFromInt(22000),
		ServiceFee:   decimal.NewFromInt(20000),
		InsuranceFee: decimal.NewFromInt(2000),
	}, nil
}

func TestBuildParcel(t *testing.T) {
	tests := []struct {
		name       string
		items      []domain.ParcelItem
		wantWeight int
		wantValue  int64
	}{
		{
			name:       "known weights",
			items:      []domain.ParcelItem{{Weight: 250, Price: decimal.NewFromInt(50), Quantity: 2}, {Weight: 100, Price: decimal.NewFromInt(30), Quantity: 1}},
			wantWeight: 600,
			wantValue:  130,
		},
		{
			name:       "unknown weight defaults",
			items:      []domain.ParcelItem{{Price: decimal.NewFromInt(10), Quantity: 3}},
			wantWeight: 3 * domain.DefaultItemWeight,
			wantValue:  30,
		},
		{
			name:       "capped at carrier limit",
			items:      []domain.ParcelItem{{Weight: 20000, Price: decimal.NewFromInt(5), Quantity: 2}},
			wantWeight: domain.MaxParcelWeight,
			wantValue:  10,
		},
		{
			name:       "exactly at carrier limit",
			items:      []domain.ParcelItem{{Weight: 15000, Price: decimal.NewFromInt(1), Quantity: 2}},
			wantWeight: domain.MaxParcelWeight,
			wantValue:  2,
		},
		{
			name:       "zero weight counts as unknown next to known weights",
			items:      []domain.ParcelItem{{Weight: 0, Price: decimal.NewFromInt(1), Quantity: 1}, {Weight: 50, Price: decimal.NewFromInt(1), Quantity: 1}},
			wantWeight: domain.DefaultItemWeight + 50,
			wantValue:  2,
		},
		{
			name:       "huge quantity does not wrap below the cap",
			items:      []domain.ParcelItem{{Weight: 0, Price: decimal.NewFromInt(1), Quantity: 1 << 61}},
			wantWeight: domain.MaxParcelWeight,
			wantValue:  1 << 61,
		},
		{
			name: "huge quantity after a capped line",
			items: []domain.ParcelItem{
				{Weight: 29999, Price: decimal.NewFromInt(1), Quantity: 1},
				{Weight: 4, Price: decimal.NewFromInt(1), Quantity: 1 << 62},
			},
			wantWeight: domain.MaxParcelWeight,
			wantValue:  1 + 1<<62,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parcel := BuildParcel(1444, "20308", tt.items)
			if parcel.Weight != tt.wantWeight {
				t.Errorf("weight = %d, want %d", parcel.Weight, tt.wantWeight)
			}
			if !parcel.InsuranceValue.Equal(decimal.NewFromInt(tt.wantValue)) {
				t.Errorf("insurance value = %s, want %d", parcel.InsuranceValue, tt.wantValue)
			}
			if parcel.ToDistrictID != 1444 || parcel.ToWardCode != "20308" {
				t.Errorf("destination not carried: %+v", parcel)
			}
		})
	}
}

func TestCalculateShippingFee_Success(t *testing.T) {
	provider := &mockProvider{}
	svc := NewShippingService(provider, nil, zerolog.Nop())

	quote, err := svc.CalculateShippingFee(context.Background(), 1444, "20308", []domain.ParcelItem{
		{Weight: 0, Price: decimal.NewFromInt(100), Quantity: 2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !quote.Fee.Equal(decimal.NewFromInt(22000)) {
		t.Errorf("fee = %s", quote.Fee)
	}
	if quote.Weight != 400 || provider.last.Weight != 400 {
		t.Errorf("expected weight 400, got quote %d parcel %d", quote.Weight, provider.last.Weight)
	}
	if !quote.InsuranceValue.Equal(decimal.NewFromInt(200)) {
		t.Errorf("insurance value = %s", quote.InsuranceValue)
	}
}

func TestCalculateShippingFee_HugeQuantityIsCapped(t *testing.T) {
	provider := &mockProvider{}
	svc := NewShippingService(provider, nil, zerolog.Nop())

	quote, err := svc.CalculateShippingFee(context.Background(), 1444, "20308", []domain.ParcelItem{
		{Weight: 0, Price: decimal.NewFromInt(1), Quantity: 1 << 61},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.last.Weight != domain.MaxParcelWeight || quote.Weight != domain.MaxParcelWeight {
		t.Errorf("expected carrier weight %d, got parcel %d quote %d", domain.MaxParcelWeight, provider.last.Weight, quote.Weight)
	}
}

func TestCalculateShippingFee_ProviderDown(t *testing.T) {
	cause := errors.New("carrier timeout")
	svc := NewShippingService(&mockProvider{err: cause}, nil, zerolog.Nop())

	_, err := svc.CalculateShippingFee(context.Background(), 1444, "20308", []domain.ParcelItem{{Weight: 100, Quantity: 1}})
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause not wrapped: %v", err)
	}
}

func TestCalculateShippingFee_InvalidInput(t *testing.T) {
	tests := []struct {
		name       string
		districtID int
		wardCode   string
		items      []domain.ParcelItem
	}{
		{"missing district", 0, "20308", []domain.ParcelItem{{Quantity: 1}}},
		{"blank ward", 1444, "  ", []domain.ParcelItem{{Quantity: 1}}},
		{"no items", 1444, "20308", nil},
		{"zero quantity", 1444, "20308", []domain.ParcelItem{{Quantity: 0}}},
		{"negative weight", 1444, "20308", []domain.ParcelItem{{Weight: -1, Quantity: 1}}},
		{"negative price", 1444, "20308", []domain.ParcelItem{{Price: decimal.NewFromInt(-1), Quantity: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mockProvider{}
			svc := NewShippingService(provider, nil, zerolog.Nop())

			_, err := svc.CalculateShippingFee(context.Background(), tt.districtID, tt.wardCode, tt.items)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if provider.calls != 0 {
				t.Errorf("provider called on invalid input")
			}
		})
	}
}
