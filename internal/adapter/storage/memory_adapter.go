package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rl1809/storefront-orders/internal/core/domain"
	"github.com/rl1809/storefront-orders/internal/port"
)

var ErrOrderExists = errors.New("order already exists")

type memoryOrder struct {
	order domain.Order
	seq   int64
}

type memoryState struct {
	products map[string]domain.Product
	orders   map[string]memoryOrder
	seq      int64
}

// MemoryAdapter keeps the catalog and orders in process. Atomic units are
// serialized and run against a copy of the state that replaces the original
// only on success.
type MemoryAdapter struct {
	mu    sync.Mutex
	state *memoryState
	users map[string]domain.Owner
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		state: &memoryState{
			products: make(map[string]domain.Product),
			orders:   make(map[string]memoryOrder),
		},
		users: make(map[string]domain.Owner),
	}
}

// PutProduct inserts or replaces a catalog entry.
func (m *MemoryAdapter) PutProduct(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Images = slices.Clone(p.Images)
	m.state.products[p.ID] = p
}

func (m *MemoryAdapter) RemoveProduct(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state.products, id)
}

func (m *MemoryAdapter) Product(id string) (domain.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.products[id]
	return p, ok
}

func (m *MemoryAdapter) PutUser(owner domain.Owner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[owner.ID] = owner
}

func (m *MemoryAdapter) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.orders)
}

func (m *MemoryAdapter) GetProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	products := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.state.products[id]; ok {
			p.Images = slices.Clone(p.Images)
			products = append(products, p)
		}
	}
	return products, nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.state.orders[orderID]
	if !ok {
		return nil, nil
	}
	order := cloneOrder(stored.order)
	if owner, ok := m.users[order.UserID]; ok {
		order.Owner = &owner
	}
	return &order, nil
}

func (m *MemoryAdapter) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stored []memoryOrder
	for _, o := range m.state.orders {
		if o.order.UserID == userID {
			stored = append(stored, o)
		}
	}
	slices.SortFunc(stored, func(a, b memoryOrder) int {
		if c := b.order.CreatedAt.Compare(a.order.CreatedAt); c != 0 {
			return c
		}
		return int(b.seq - a.seq)
	})

	orders := make([]domain.Order, 0, len(stored))
	for _, o := range stored {
		order := cloneOrder(o.order)
		order.Payment = nil
		orders = append(orders, order)
	}
	return orders, nil
}

func (m *MemoryAdapter) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx port.OrderTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{state: m.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) DecrementStock(ctx context.Context, productID string, quantity int) (bool, error) {
	p, ok := t.state.products[productID]
	if !ok || p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	p.SoldQuantity += quantity
	p.UpdatedAt = time.Now().UTC()
	t.state.products[productID] = p
	return true, nil
}

func (t *memoryTx) IncrementStock(ctx context.Context, productID string, quantity int) (bool, error) {
	p, ok := t.state.products[productID]
	if !ok {
		return false, nil
	}
	p.Stock += quantity
	p.SoldQuantity -= quantity
	p.UpdatedAt = time.Now().UTC()
	t.state.products[productID] = p
	return true, nil
}

func (t *memoryTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	if _, exists := t.state.orders[order.ID]; exists {
		return fmt.Errorf("insert order %s: %w", order.ID, ErrOrderExists)
	}
	t.state.seq++
	stored := cloneOrder(*order)
	stored.Owner = nil
	t.state.orders[order.ID] = memoryOrder{order: stored, seq: t.state.seq}
	return nil
}

func (t *memoryTx) LockOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	stored, ok := t.state.orders[orderID]
	if !ok {
		return nil, nil
	}
	order := cloneOrder(stored.order)
	return &order, nil
}

func (t *memoryTx) TransitionStatus(ctx context.Context, orderID string, from []domain.OrderStatus, status domain.OrderStatus, paymentStatus domain.PaymentStatus) (bool, error) {
	stored, ok := t.state.orders[orderID]
	if !ok || !slices.Contains(from, stored.order.Status) {
		return false, nil
	}

	now := time.Now().UTC()
	stored.order.Status = status
	stored.order.PaymentStatus = paymentStatus
	stored.order.UpdatedAt = now
	if stored.order.Payment != nil {
		stored.order.Payment.Status = paymentStatus
		stored.order.Payment.UpdatedAt = now
	}
	t.state.orders[orderID] = stored
	return true, nil
}

func (t *memoryTx) DeleteOrder(ctx context.Context, orderID string) error {
	delete(t.state.orders, orderID)
	return nil
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		products: make(map[string]domain.Product, len(s.products)),
		orders:   make(map[string]memoryOrder, len(s.orders)),
		seq:      s.seq,
	}
	for id, p := range s.products {
		c.products[id] = p
	}
	for id, o := range s.orders {
		c.orders[id] = memoryOrder{order: cloneOrder(o.order), seq: o.seq}
	}
	return c
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	if o.Payment != nil {
		payment := *o.Payment
		o.Payment = &payment
	}
	if o.Owner != nil {
		owner := *o.Owner
		o.Owner = &owner
	}
	return o
}

var (
	_ port.OrderRepository = (*MemoryAdapter)(nil)
	_ port.OrderTx         = (*memoryTx)(nil)
)
