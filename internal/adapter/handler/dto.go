package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-orders/internal/core/domain"
	"github.com/rl1809/storefront-orders/internal/core/service"
)

// Request and response bodies shared by the HTTP and gRPC transports.

type CreateOrderItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// CreateOrderRequest has no price fields. Prices always come from the catalog.
type CreateOrderRequest struct {
	Items           []CreateOrderItem `json:"items"`
	ShippingAddress domain.Address    `json:"shippingAddress"`
	ShippingFee     decimal.Decimal   `json:"shippingFee"`
	PaymentMethod   string            `json:"paymentMethod"`
	IdempotencyKey  string            `json:"idempotencyKey,omitempty"`
}

func (r CreateOrderRequest) toInput() service.CreateOrderInput {
	items := make([]service.CreateOrderItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, service.CreateOrderItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return service.CreateOrderInput{
		Items:           items,
		ShippingAddress: r.ShippingAddress,
		ShippingFee:     r.ShippingFee,
		PaymentMethod:   domain.PaymentMethod(r.PaymentMethod),
		IdempotencyKey:  r.IdempotencyKey,
	}
}

type UpdateStatusRequest struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
	ForceRestock  bool   `json:"forceRestock,omitempty"`
}

type OrderRequest struct {
	OrderID string `json:"orderId"`
}

type ListMyOrdersRequest struct{}

type QuoteItem struct {
	Weight   int             `json:"weight,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type QuoteRequest struct {
	DistrictID int         `json:"districtId"`
	WardCode   string      `json:"wardCode"`
	Items      []QuoteItem `json:"items"`
}

func (r QuoteRequest) parcelItems() []domain.ParcelItem {
	items := make([]domain.ParcelItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, domain.ParcelItem{Weight: item.Weight, Price: item.Price, Quantity: item.Quantity})
	}
	return items
}

type QuoteResponse struct {
	Fee            decimal.Decimal `json:"fee"`
	ServiceFee     decimal.Decimal `json:"serviceFee"`
	InsuranceFee   decimal.Decimal `json:"insuranceFee"`
	Weight         int             `json:"weight"`
	InsuranceValue decimal.Decimal `json:"insuranceValue"`
}

func newQuoteResponse(q *domain.ShippingQuote) *QuoteResponse {
	return &QuoteResponse{
		Fee:            q.Fee,
		ServiceFee:     q.ServiceFee,
		InsuranceFee:   q.InsuranceFee,
		Weight:         q.Weight,
		InsuranceValue: q.InsuranceValue,
	}
}

type OrderItemResponse struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Name      string          `json:"name"`
	Image     string          `json:"image,omitempty"`
	Weight    int             `json:"weight,omitempty"`
}

type PaymentResponse struct {
	Method    string          `json:"method"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type OwnerResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type OrderResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"userId"`
	Amount          decimal.Decimal     `json:"amount"`
	ShippingFee     decimal.Decimal     `json:"shippingFee"`
	ShippingAddress domain.Address      `json:"shippingAddress"`
	PaymentMethod   string              `json:"paymentMethod"`
	Status          string              `json:"status"`
	PaymentStatus   string              `json:"paymentStatus"`
	Items           []OrderItemResponse `json:"items"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
	Payment         *PaymentResponse    `json:"payment,omitempty"`
	Owner           *OwnerResponse      `json:"owner,omitempty"`
}

type ListOrdersResponse struct {
	Orders []OrderResponse `json:"orders"`
}

func newOrderResponse(o *domain.Order) *OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
			Name:      item.Name,
			Image:     item.Image,
			Weight:    item.Weight,
		})
	}

	resp := &OrderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		Amount:          o.Amount,
		ShippingFee:     o.ShippingFee,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   string(o.PaymentMethod),
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if p := o.Payment; p != nil {
		resp.Payment = &PaymentResponse{
			Method:    string(p.Method),
			Status:    string(p.Status),
			Amount:    p.Amount,
			UpdatedAt: p.UpdatedAt,
		}
	}
	if owner := o.Owner; owner != nil {
		resp.Owner = &OwnerResponse{ID: owner.ID, Name: owner.Name, Email: owner.Email}
	}
	return resp
}

func newListOrdersResponse(orders []domain.Order) *ListOrdersResponse {
	out := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, *newOrderResponse(&orders[i]))
	}
	return &ListOrdersResponse{Orders: out}
}
