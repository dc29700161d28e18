// Package metrics holds the engine's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics registers on its own registry so tests can build as many as
// they like.
type Metrics struct {
	registry *prometheus.Registry

	OrdersSubmitted *prometheus.CounterVec
	OrdersRejected  *prometheus.CounterVec
	OrdersCanceled  prometheus.Counter
	Trades          prometheus.Counter
	TradedQuantity  prometheus.Counter
	RestingOrders   prometheus.Gauge
	PriceLevels     *prometheus.GaugeVec
	SubmitLatency   prometheus.Histogram

	EventsPublished prometheus.Counter
	PublishFailures prometheus.Counter
	SnapshotsTaken  prometheus.Counter
}

func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,

		OrdersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Orders accepted by the book, by type and side.",
		}, []string{"type", "side"}),

		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_rejected_total",
			Help:      "Orders refused before matching, by reason.",
		}, []string{"reason"}),

		OrdersCanceled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_canceled_total",
			Help:      "Resting orders canceled.",
		}),

		Trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trades executed.",
		}),

		TradedQuantity: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traded_quantity_total",
			Help:      "Sum of traded quantity.",
		}),

		RestingOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resting_orders",
			Help:      "Orders currently resting in the book.",
		}),

		PriceLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "price_levels",
			Help:      "Live price levels by side.",
		}, []string{"side"}),

		SubmitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_latency_seconds",
			Help:      "Time spent in OrderService.Submit, WAL write included.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),

		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Trade events acknowledged by the broker.",
		}),

		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Failed trade event publish attempts.",
		}),

		SnapshotsTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Book snapshots written.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OrdersSubmitted,
		m.OrdersRejected,
		m.OrdersCanceled,
		m.Trades,
		m.TradedQuantity,
		m.RestingOrders,
		m.PriceLevels,
		m.SubmitLatency,
		m.EventsPublished,
		m.PublishFailures,
		m.SnapshotsTaken,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
