package handler

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-orders/internal/adapter/storage"
	"github.com/rl1809/storefront-orders/internal/core/domain"
	"github.com/rl1809/storefront-orders/internal/core/service"
	"github.com/rl1809/storefront-orders/internal/metrics"
)

type stubProvider struct {
	quote *domain.ShippingQuote
	err   error
}

func (p *stubProvider) Quote(ctx context.Context, parcel domain.Parcel) (*domain.ShippingQuote, error) {
	if p.err != nil {
		return nil, p.err
	}
	q := *p.quote
	return &q, nil
}

type memoryCache struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (c *memoryCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys == nil {
		c.keys = make(map[string]bool)
	}
	if c.keys[key] {
		return false, nil
	}
	c.keys[key] = true
	return true, nil
}

func (c *memoryCache) ReleaseIdempotency(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

type fixture struct {
	store    *storage.MemoryAdapter
	provider *stubProvider
	metrics  *metrics.Metrics
	orders   *service.OrderService
	shipping *service.ShippingService
}

func newFixture() *fixture {
	store := storage.NewMemoryAdapter()
	store.PutProduct(domain.Product{
		ID: "shirt", Name: "Shirt", Price: decimal.NewFromInt(50), Stock: 5, IsAvailable: true, Weight: 250,
		Images: []string{"shirt.png"},
	})
	store.PutProduct(domain.Product{
		ID: "cap", Name: "Cap", Price: decimal.NewFromInt(30), Stock: 1, IsAvailable: true,
	})
	store.PutProduct(domain.Product{
		ID: "retired", Name: "Retired", Price: decimal.NewFromInt(10), Stock: 3, IsAvailable: false,
	})
	store.PutUser(domain.Owner{ID: "alice", Name: "Alice", Email: "alice@example.com"})

	provider := &stubProvider{quote: &domain.ShippingQuote{
		Fee: decimal.NewFromInt(22000), ServiceFee: decimal.NewFromInt(20000), InsuranceFee: decimal.NewFromInt(2000),
	}}
	m := metrics.New(prometheus.NewRegistry())

	return &fixture{
		store:    store,
		provider: provider,
		metrics:  m,
		orders: service.NewOrderService(store,
			service.WithIdempotency(&memoryCache{}),
			service.WithMetrics(m),
			service.WithForcedRestock(true),
		),
		shipping: service.NewShippingService(provider, m, zerolog.Nop()),
	}
}

func validAddress() domain.Address {
	return domain.Address{
		FullName:   "Alice",
		Phone:      "0900000001",
		Detail:     "12 Market St",
		WardCode:   "20308",
		DistrictID: 1444,
	}
}

func sampleOrderRequest() CreateOrderRequest {
	return CreateOrderRequest{
		Items: []CreateOrderItem{
			{ProductID: "shirt", Quantity: 2},
			{ProductID: "cap", Quantity: 1},
		},
		ShippingAddress: validAddress(),
		ShippingFee:     decimal.NewFromInt(15),
		PaymentMethod:   "cod",
	}
}
