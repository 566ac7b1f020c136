package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-orders/internal/core/domain"
	"github.com/rl1809/storefront-orders/internal/metrics"
	"github.com/rl1809/storefront-orders/internal/port"
)

const idempotencyKeyPrefix = "idempotency:order:"

type CreateOrderItem struct {
	ProductID string
	Quantity  int
}

// CreateOrderInput carries no prices: every amount on the order comes from the
// catalog at the time of the call.
type CreateOrderInput struct {
	Items           []CreateOrderItem
	ShippingAddress domain.Address
	ShippingFee     decimal.Decimal
	PaymentMethod   domain.PaymentMethod
	IdempotencyKey  string
}

type UpdateStatusInput struct {
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus // empty keeps the current value
	ForceRestock  bool
}

type OrderService struct {
	repo         port.OrderRepository
	cache        port.CacheRepository
	events       port.EventPublisher
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	forceRestock bool
	now          func() time.Time
	newID        func() string
}

type Option func(*OrderService)

// WithIdempotency enables Idempotency-Key handling on CreateOrder.
func WithIdempotency(cache port.CacheRepository) Option {
	return func(s *OrderService) { s.cache = cache }
}

func WithEvents(events port.EventPublisher) Option {
	return func(s *OrderService) { s.events = events }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *OrderService) { s.metrics = m }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *OrderService) { s.logger = logger }
}

// WithForcedRestock allows admins to cancel shipped or delivered orders when
// they explicitly ask for a restock.
func WithForcedRestock(enabled bool) Option {
	return func(s *OrderService) { s.forceRestock = enabled }
}

func NewOrderService(repo port.OrderRepository, opts ...Option) *OrderService {
	s := &OrderService{
		repo:   repo,
		logger: zerolog.Nop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *OrderService) CreateOrder(ctx context.Context, userID string, in CreateOrderInput) (order *domain.Order, err error) {
	if verr := validateCreate(userID, in); verr != nil {
		s.metrics.OrderRejected("invalid_input")
		return nil, verr
	}

	if in.IdempotencyKey != "" && s.cache != nil {
		key := idempotencyKeyPrefix + userID + ":" + in.IdempotencyKey

		ok, setErr := s.cache.SetIdempotency(ctx, key)
		if setErr != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", setErr)
		}
		if !ok {
			s.metrics.OrderRejected("duplicate")
			return nil, ErrDuplicateRequest
		}

		defer func() {
			if err == nil {
				return
			}
			if releaseErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); releaseErr != nil {
				s.logger.Warn().Err(releaseErr).Str("key", key).Msg("failed to release idempotency key")
			}
		}()
	}

	order, err = s.buildOrder(ctx, userID, in)
	if err != nil {
		s.metrics.OrderRejected(rejectReason(err))
		return nil, err
	}

	err = s.repo.RunAtomic(ctx, func(ctx context.Context, tx port.OrderTx) error {
		for _, item := range byProductID(order.Items) {
			ok, err := tx.DecrementStock(ctx, item.ProductID, item.Quantity)
			if err != nil {
				return fmt.Errorf("stock decrement failed: %w", err)
			}
			if !ok {
				return fmt.Errorf("%w: product %s", ErrInsufficientStock, item.ProductID)
			}
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
	if err != nil {
		s.metrics.OrderRejected(rejectReason(err))
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("order rolled back")
		return nil, err
	}

	s.metrics.OrderCreated()
	s.logger.Info().
		Str("order_id", order.ID).
		Str("user_id", userID).
		Str("amount", order.Amount.String()).
		Int("items", len(order.Items)).
		Msg("order created")
	s.publish(ctx, domain.OrderEventCreated, order, false)

	return order, nil
}

// buildOrder validates the request against live catalog data and snapshots
// the items. It performs no writes.
func (s *OrderService) buildOrder(ctx context.Context, userID string, in CreateOrderInput) (*domain.Order, error) {
	ids := make([]string, 0, len(in.Items))
	for _, item := range in.Items {
		if !slices.Contains(ids, item.ProductID) {
			ids = append(ids, item.ProductID)
		}
	}

	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	total := decimal.Zero
	items := make([]domain.OrderItem, 0, len(in.Items))
	for _, req := range in.Items {
		p, ok := byID[req.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, req.ProductID)
		}
		if p.Stock < req.Quantity {
			return nil, fmt.Errorf("%w: product %s has %d left, %d requested", ErrInsufficientStock, p.ID, p.Stock, req.Quantity)
		}
		if !p.IsAvailable {
			return nil, fmt.Errorf("%w: product %s", ErrProductUnavailable, p.ID)
		}

		item := domain.OrderItem{
			ProductID: p.ID,
			Quantity:  req.Quantity,
			Price:     p.Price,
			Name:      p.Name,
			Image:     p.FirstImage(),
			Weight:    p.Weight,
		}
		total = total.Add(item.Subtotal())
		items = append(items, item)
	}

	id := s.newID()
	now := s.now().UTC()
	return &domain.Order{
		ID:              id,
		UserID:          userID,
		Amount:          total,
		ShippingFee:     in.ShippingFee,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
		Payment: &domain.Payment{
			OrderID:   id,
			Method:    in.PaymentMethod,
			Status:    domain.PaymentStatusPending,
			Amount:    total.Add(in.ShippingFee),
			UpdatedAt: now,
		},
	}, nil
}

func (s *OrderService) GetAllUserOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	orders, err := s.repo.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

func (s *OrderService) GetOrderByID(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: order %s", ErrForbidden, orderID)
	}
	return order, nil
}

// CancelOrder is the customer path: only the owner, only while pending or
// confirmed.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	var cancelled *domain.Order
	var restocked int
	err := s.repo.RunAtomic(ctx, func(ctx context.Context, tx port.OrderTx) error {
		order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return fmt.Errorf("%w: order %s", ErrForbidden, orderID)
		}
		cancelled, restocked, err = s.cancelLocked(ctx, tx, order, domain.CancellableStatuses)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterCancel(ctx, cancelled, "customer", restocked)
	return cancelled, nil
}

// UpdateOrderStatus is the admin path. A cancellation goes through the same
// compensation as CancelOrder.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string, in UpdateStatusInput) (*domain.Order, error) {
	if !in.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, in.Status)
	}
	if in.PaymentStatus != "" && !in.PaymentStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrValidation, in.PaymentStatus)
	}

	if in.Status == domain.OrderStatusCancelled {
		return s.adminCancel(ctx, orderID, in.ForceRestock)
	}

	var updated *domain.Order
	err := s.repo.RunAtomic(ctx, func(ctx context.Context, tx port.OrderTx) error {
		order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderStatusCancelled {
			return fmt.Errorf("%w: order %s is cancelled and already restocked", ErrInvalidState, orderID)
		}

		paymentStatus := in.PaymentStatus
		if paymentStatus == "" {
			paymentStatus = order.PaymentStatus
		}

		ok, err := tx.TransitionStatus(ctx, orderID, []domain.OrderStatus{order.Status}, in.Status, paymentStatus)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: order %s changed concurrently", ErrInvalidState, orderID)
		}

		order.Status = in.Status
		order.PaymentStatus = paymentStatus
		order.UpdatedAt = s.now().UTC()
		if order.Payment != nil {
			order.Payment.Status = paymentStatus
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order_id", orderID).
		Str("status", string(updated.Status)).
		Str("payment_status", string(updated.PaymentStatus)).
		Msg("order status updated")
	s.publish(ctx, domain.OrderEventStatusUpdated, updated, false)
	return updated, nil
}

func (s *OrderService) adminCancel(ctx context.Context, orderID string, forceRestock bool) (*domain.Order, error) {
	var cancelled *domain.Order
	var restocked int
	err := s.repo.RunAtomic(ctx, func(ctx context.Context, tx port.OrderTx) error {
		order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		from := domain.CancellableStatuses
		if order.Status.Fulfilled() {
			if !forceRestock || !s.forceRestock {
				return fmt.Errorf("%w: order %s is %s, cancelling it needs forceRestock", ErrInvalidState, orderID, order.Status)
			}
			from = domain.FulfilledStatuses
		}

		cancelled, restocked, err = s.cancelLocked(ctx, tx, order, from)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterCancel(ctx, cancelled, "admin", restocked)
	return cancelled, nil
}

// cancelLocked flips the status with a guarded update and then restores
// stock. The guard is what makes compensation run at most once per order.
func (s *OrderService) cancelLocked(ctx context.Context, tx port.OrderTx, order *domain.Order, from []domain.OrderStatus) (*domain.Order, int, error) {
	if !slices.Contains(from, order.Status) {
		return nil, 0, fmt.Errorf("%w: order %s is %s", ErrInvalidState, order.ID, order.Status)
	}

	ok, err := tx.TransitionStatus(ctx, order.ID, from, domain.OrderStatusCancelled, domain.PaymentStatusFailed)
	if err != nil {
		return nil, 0, fmt.Errorf("cancel order: %w", err)
	}
	if !ok {
		return nil, 0, fmt.Errorf("%w: order %s changed concurrently", ErrInvalidState, order.ID)
	}

	units, err := s.restock(ctx, tx, order)
	if err != nil {
		return nil, 0, err
	}

	order.Status = domain.OrderStatusCancelled
	order.PaymentStatus = domain.PaymentStatusFailed
	order.UpdatedAt = s.now().UTC()
	if order.Payment != nil {
		order.Payment.Status = domain.PaymentStatusFailed
	}
	return order, units, nil
}

// restock returns the number of units credited to products that still exist.
func (s *OrderService) restock(ctx context.Context, tx port.OrderTx, order *domain.Order) (int, error) {
	units := 0
	for _, item := range byProductID(order.Items) {
		ok, err := tx.IncrementStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return 0, fmt.Errorf("restock product %s: %w", item.ProductID, err)
		}
		if ok {
			units += item.Quantity
		} else {
			s.logger.Warn().
				Str("order_id", order.ID).
				Str("product_id", item.ProductID).
				Int("quantity", item.Quantity).
				Msg("product no longer exists, units not restocked")
		}
	}
	return units, nil
}

func (s *OrderService) afterCancel(ctx context.Context, order *domain.Order, path string, units int) {
	s.metrics.OrderCancelled(path)
	s.metrics.StockRestored(units)
	s.logger.Info().
		Str("order_id", order.ID).
		Str("user_id", order.UserID).
		Str("path", path).
		Int("units", units).
		Msg("order cancelled")
	s.publish(ctx, domain.OrderEventCancelled, order, true)
}

// DeleteOrder hard-deletes an order that was never fulfilled. Orders still
// holding stock are compensated in the same unit; cancelled ones already were.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID string) error {
	var deleted *domain.Order
	restocked := false
	units := 0
	err := s.repo.RunAtomic(ctx, func(ctx context.Context, tx port.OrderTx) error {
		order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status.Fulfilled() {
			return fmt.Errorf("%w: order %s is %s and cannot be deleted", ErrInvalidState, orderID, order.Status)
		}
		if order.Status.Cancellable() {
			units, err = s.restock(ctx, tx, order)
			if err != nil {
				return err
			}
			restocked = true
		}
		if err := tx.DeleteOrder(ctx, orderID); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		deleted = order
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.StockRestored(units)
	s.logger.Info().Str("order_id", orderID).Int("units", units).Bool("restocked", restocked).Msg("order deleted")
	s.publish(ctx, domain.OrderEventDeleted, deleted, restocked)
	return nil
}

func (s *OrderService) publish(ctx context.Context, eventType domain.OrderEventType, order *domain.Order, restocked bool) {
	if s.events == nil {
		return
	}
	event := domain.OrderEvent{
		ID:            s.newID(),
		Type:          eventType,
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		Amount:        order.Amount,
		Restocked:     restocked,
		OccurredAt:    s.now().UTC(),
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID).Str("event", string(eventType)).Msg("failed to publish order event")
	}
}

// byProductID returns the items sorted by product id, so every unit of work
// touches product rows in the same order.
func byProductID(items []domain.OrderItem) []domain.OrderItem {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b domain.OrderItem) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return sorted
}

func lockOrder(ctx context.Context, tx port.OrderTx, orderID string) (*domain.Order, error) {
	order, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return order, nil
}

func validateCreate(userID string, in CreateOrderInput) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrValidation)
	}
	for i, item := range in.Items {
		if item.ProductID == "" {
			return fmt.Errorf("%w: item %d: productId is required", ErrValidation, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d: quantity must be positive", ErrValidation, i)
		}
	}
	if in.ShippingFee.IsNegative() {
		return fmt.Errorf("%w: shippingFee must not be negative", ErrValidation)
	}
	if !in.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrValidation, in.PaymentMethod)
	}
	if missing := in.ShippingAddress.MissingFields(); len(missing) > 0 {
		return fmt.Errorf("%w: shippingAddress missing %v", ErrValidation, missing)
	}
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrProductUnavailable):
		return "unavailable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "invalid_input"
	default:
		return "internal"
	}
}
