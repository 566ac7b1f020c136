package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Metrics is safe to use through a nil pointer; every recorder is a no-op then.
type Metrics struct {
	OrdersCreated   prometheus.Counter
	OrdersRejected  *prometheus.CounterVec
	OrdersCancelled *prometheus.CounterVec
	UnitsRestocked  prometheus.Counter
	ShippingQuotes  *prometheus.CounterVec
	HTTPLatency     *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "created_total",
			Help:      "Orders committed.",
		}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "rejected_total",
			Help:      "Create requests rejected, by reason.",
		}, []string{"reason"}),
		OrdersCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "cancelled_total",
			Help:      "Orders cancelled, by path.",
		}, []string{"path"}),
		UnitsRestocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "restocked_units_total",
			Help:      "Units returned to stock by order compensation.",
		}),
		ShippingQuotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shipping",
			Name:      "quotes_total",
			Help:      "Shipping quotes requested, by outcome.",
		}, []string{"outcome"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route", "status"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.OrdersCreated,
		m.OrdersRejected,
		m.OrdersCancelled,
		m.UnitsRestocked,
		m.ShippingQuotes,
		m.HTTPLatency,
	)
	return m
}

func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.OrdersCreated.Inc()
}

func (m *Metrics) OrderRejected(reason string) {
	if m == nil {
		return
	}
	m.OrdersRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) OrderCancelled(path string) {
	if m == nil {
		return
	}
	m.OrdersCancelled.WithLabelValues(path).Inc()
}

// StockRestored counts units actually credited back to existing products.
func (m *Metrics) StockRestored(units int) {
	if m == nil || units <= 0 {
		return
	}
	m.UnitsRestocked.Add(float64(units))
}

func (m *Metrics) ShippingQuote(outcome string) {
	if m == nil {
		return
	}
	m.ShippingQuotes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHTTP(route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPLatency.WithLabelValues(route, status).Observe(float64(elapsed.Milliseconds()))
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
