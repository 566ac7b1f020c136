package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Cancellable reports whether a customer may cancel an order in this status.
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusPending || s == OrderStatusConfirmed
}

// Fulfilled orders are revenue history and are never hard-deleted.
func (s OrderStatus) Fulfilled() bool {
	return s == OrderStatusShipped || s == OrderStatusDelivered
}

// CancellableStatuses is the allowed-from set of the customer cancel path.
var CancellableStatuses = []OrderStatus{OrderStatusPending, OrderStatusConfirmed}

// FulfilledStatuses is the allowed-from set of an admin forced restock.
var FulfilledStatuses = []OrderStatus{OrderStatusShipped, OrderStatusDelivered}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodOnline PaymentMethod = "online"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodOnline
}

// Order is a financial record: Amount, ShippingFee, ShippingAddress and Items
// are fixed at creation. Only Status and PaymentStatus change afterwards.
type Order struct {
	ID              string
	UserID          string
	Amount          decimal.Decimal
	ShippingFee     decimal.Decimal
	ShippingAddress Address
	PaymentMethod   PaymentMethod
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Loaded by detail reads only.
	Payment *Payment
	Owner   *Owner
}

// OrderItem is a value snapshot of the product at order time. ProductID is a
// lookup key for restocking, not an ownership link.
type OrderItem struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
	Name      string
	Image     string
	Weight    int
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Payment struct {
	OrderID   string
	Method    PaymentMethod
	Status    PaymentStatus
	Amount    decimal.Decimal
	UpdatedAt time.Time
}

// Owner is the display projection of the user who placed an order.
type Owner struct {
	ID    string
	Name  string
	Email string
}
