package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-orders/internal/core/domain"
	"github.com/rl1809/storefront-orders/internal/port"
)

const feePath = "/shiip/public-api/v2/shipping-order/fee"

// Parcel dimensions in centimetres. Every parcel is quoted as the same box.
const (
	parcelLength = 20
	parcelWidth  = 15
	parcelHeight = 10
)

var ErrCarrier = errors.New("carrier rejected request")

type Config struct {
	BaseURL        string
	Token          string
	ShopID         string
	FromDistrictID int
	FromWardCode   string
	ServiceTypeID  int
	Timeout        time.Duration
}

// Client quotes fees against a GHN-compatible rate API.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

type feeRequest struct {
	ServiceTypeID  int    `json:"service_type_id"`
	FromDistrictID int    `json:"from_district_id"`
	FromWardCode   string `json:"from_ward_code"`
	ToDistrictID   int    `json:"to_district_id"`
	ToWardCode     string `json:"to_ward_code"`
	Length         int    `json:"length"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Weight         int    `json:"weight"`
	InsuranceValue int64  `json:"insurance_value"`
}

type feeResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *struct {
		Total        decimal.Decimal `json:"total"`
		ServiceFee   decimal.Decimal `json:"service_fee"`
		InsuranceFee decimal.Decimal `json:"insurance_fee"`
	} `json:"data"`
}

func (c *Client) Quote(ctx context.Context, parcel domain.Parcel) (*domain.ShippingQuote, error) {
	body, err := json.Marshal(feeRequest{
		ServiceTypeID:  c.cfg.ServiceTypeID,
		FromDistrictID: c.cfg.FromDistrictID,
		FromWardCode:   c.cfg.FromWardCode,
		ToDistrictID:   parcel.ToDistrictID,
		ToWardCode:     parcel.ToWardCode,
		Length:         parcelLength,
		Width:          parcelWidth,
		Height:         parcelHeight,
		Weight:         parcel.Weight,
		InsuranceValue: parcel.InsuranceValue.Round(0).IntPart(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode fee request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+feePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build fee request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Token", c.cfg.Token)
	req.Header.Set("ShopId", c.cfg.ShopID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call carrier: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read carrier response: %w", err)
	}

	var out feeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode carrier response (http %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || out.Code != http.StatusOK || out.Data == nil {
		return nil, fmt.Errorf("%w: http %d code %d: %s", ErrCarrier, resp.StatusCode, out.Code, out.Message)
	}

	return &domain.ShippingQuote{
		Fee:          out.Data.Total,
		ServiceFee:   out.Data.ServiceFee,
		InsuranceFee: out.Data.InsuranceFee,
	}, nil
}

var _ port.ShippingRateProvider = (*Client)(nil)
