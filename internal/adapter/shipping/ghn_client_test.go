package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront-orders/internal/core/domain"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		Token:          "secret-token",
		ShopID:         "42",
		FromDistrictID: 1454,
		FromWardCode:   "21211",
		ServiceTypeID:  2,
		Timeout:        time.Second,
	}
}

func testParcel() domain.Parcel {
	return domain.Parcel{
		ToDistrictID:   1444,
		ToWardCode:     "20308",
		Weight:         600,
		InsuranceValue: decimal.RequireFromString("150000.4"),
	}
}

func TestQuote_SendsParcelAndParsesFee(t *testing.T) {
	var got feeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, feePath, r.URL.Path)
		assert.Equal(t, "secret-token", r.Header.Get("Token"))
		assert.Equal(t, "42", r.Header.Get("ShopId"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":200,"message":"Success","data":{"total":36300,"service_fee":33000,"insurance_fee":3300}}`))
	}))
	defer srv.Close()

	quote, err := NewClient(testConfig(srv.URL)).Quote(context.Background(), testParcel())
	require.NoError(t, err)

	assert.True(t, quote.Fee.Equal(decimal.NewFromInt(36300)), "fee %s", quote.Fee)
	assert.True(t, quote.ServiceFee.Equal(decimal.NewFromInt(33000)))
	assert.True(t, quote.InsuranceFee.Equal(decimal.NewFromInt(3300)))

	assert.Equal(t, 1454, got.FromDistrictID)
	assert.Equal(t, "21211", got.FromWardCode)
	assert.Equal(t, 1444, got.ToDistrictID)
	assert.Equal(t, "20308", got.ToWardCode)
	assert.Equal(t, 600, got.Weight)
	assert.Equal(t, int64(150000), got.InsuranceValue)
	assert.Equal(t, parcelLength, got.Length)
	assert.Equal(t, parcelWidth, got.Width)
	assert.Equal(t, parcelHeight, got.Height)
}

func TestQuote_CarrierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":400,"message":"invalid ward","data":null}`))
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv.URL)).Quote(context.Background(), testParcel())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCarrier))
	assert.Contains(t, err.Error(), "invalid ward")
}

func TestQuote_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway</html>`))
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv.URL)).Quote(context.Background(), testParcel())
	require.Error(t, err)
}

func TestQuote_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond

	_, err := NewClient(cfg).Quote(context.Background(), testParcel())
	require.Error(t, err)
}
