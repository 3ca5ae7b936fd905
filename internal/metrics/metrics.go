// Package metrics exposes order and stock counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/Lixing-Zhang/restaurant-backend/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "restaurant"

// Metrics holds the service collectors on its own registry.
// A nil *Metrics records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	ordersPlaced  prometheus.Counter
	ordersFailed  *prometheus.CounterVec
	itemsSold     *prometheus.CounterVec
	revenue       prometheus.Counter
	unitsRestock  prometheus.Counter
	orderLineSize prometheus.Histogram
}

// New registers the collectors together with the Go and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Orders committed.",
		}),
		ordersFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_rejected_total",
			Help:      "Orders rejected or rolled back, by reason.",
		}, []string{"reason"}),
		itemsSold: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dish_units_sold_total",
			Help:      "Units reserved by committed orders, by dish code.",
		}, []string{"dish"}),
		revenue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_revenue_total",
			Help:      "Sum of committed order totals.",
		}),
		unitsRestock: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dish_units_restocked_total",
			Help:      "Units added by restocking.",
		}),
		orderLineSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_lines",
			Help:      "Distinct dishes per committed order.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ordersPlaced,
		m.ordersFailed,
		m.itemsSold,
		m.revenue,
		m.unitsRestock,
		m.orderLineSize,
	)
	return m
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) OrderPlaced(order *models.Order) {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
	m.orderLineSize.Observe(float64(len(order.Lines)))
	for _, line := range order.Lines {
		m.itemsSold.WithLabelValues(line.DishCode).Add(float64(line.Quantity))
	}
	total, _ := order.Total().Float64()
	m.revenue.Add(total)
}

func (m *Metrics) OrderRejected(reason string) {
	if m == nil {
		return
	}
	m.ordersFailed.WithLabelValues(reason).Inc()
}

func (m *Metrics) DishRestocked(units int) {
	if m == nil {
		return
	}
	m.unitsRestock.Add(float64(units))
}
