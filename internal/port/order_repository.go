package port

import (
	"context"

	"github.com/rl1809/storefront-orders/internal/core/domain"
)

type OrderRepository interface {
	// GetProductsByIDs reads every listed product in one batch. Unknown ids
	// are simply absent from the result.
	GetProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error)

	// GetOrder loads an order with items, payment and owner. Returns nil, nil
	// when the order does not exist.
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// ListOrdersByUser returns the user's orders with items, newest first.
	ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error)

	// RunAtomic runs fn in a single transaction. Every write made through tx
	// is committed if fn returns nil and rolled back otherwise.
	RunAtomic(ctx context.Context, fn func(ctx context.Context, tx OrderTx) error) error
}

// OrderTx is the set of writes allowed inside an atomic unit.
type OrderTx interface {
	// DecrementStock takes quantity units and adds them to sold quantity,
	// only if stock >= quantity. Returns false when the guard fails.
	DecrementStock(ctx context.Context, productID string, quantity int) (bool, error)

	// IncrementStock is the exact inverse of DecrementStock. Returns false
	// when the product no longer exists.
	IncrementStock(ctx context.Context, productID string, quantity int) (bool, error)

	// InsertOrder writes the order, its items and its payment row.
	InsertOrder(ctx context.Context, order *domain.Order) error

	// LockOrder reads an order with items and holds it until the unit ends.
	// Returns nil, nil when the order does not exist.
	LockOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// TransitionStatus moves the order to status/paymentStatus only if its
	// current status is one of from. Returns false when the guard fails.
	TransitionStatus(ctx context.Context, orderID string, from []domain.OrderStatus, status domain.OrderStatus, paymentStatus domain.PaymentStatus) (bool, error)

	// DeleteOrder removes the order together with items and payment.
	DeleteOrder(ctx context.Context, orderID string) error
}
