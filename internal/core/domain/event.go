package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderEventType string

const (
	OrderEventCreated       OrderEventType = "order.created"
	OrderEventCancelled     OrderEventType = "order.cancelled"
	OrderEventStatusUpdated OrderEventType = "order.status_updated"
	OrderEventDeleted       OrderEventType = "order.deleted"
)

type OrderEvent struct {
	ID            string          `json:"id"`
	Type          OrderEventType  `json:"type"`
	OrderID       string          `json:"orderId"`
	UserID        string          `json:"userId"`
	Status        OrderStatus     `json:"status"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	Amount        decimal.Decimal `json:"amount"`
	Restocked     bool            `json:"restocked,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
}
