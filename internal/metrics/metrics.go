package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ServerMetrics struct {
	Requests   *prometheus.CounterVec
	LatencyMS  *prometheus.HistogramVec
	Checkouts  *prometheus.CounterVec
	Promotions *prometheus.CounterVec
	TxRetries  prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewServerMetrics registers the collectors on reg. Pass prometheus.NewRegistry()
// in tests; the process uses prometheus.DefaultRegisterer.
func NewServerMetrics(reg prometheus.Registerer, service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "marketplace",
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: service,
		Name:      "checkouts_total",
		Help:      "Checkout attempts by result.",
	}, []string{"result"})
	promotions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: service,
		Name:      "promotions_total",
		Help:      "Promotion attempts by result.",
	}, []string{"result"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: service,
		Name:      "tx_retries_total",
		Help:      "Transactions retried after a serialization conflict.",
	})

	reg.MustRegister(requests, latency, checkouts, promotions, retries)

	m := &ServerMetrics{
		Requests:   requests,
		LatencyMS:  latency,
		Checkouts:  checkouts,
		Promotions: promotions,
		TxRetries:  retries,
		gatherer:   prometheus.DefaultGatherer,
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveCheckout and friends tolerate a nil receiver so services can run without metrics.
func (m *ServerMetrics) ObserveCheckout(result string) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(result).Inc()
}

func (m *ServerMetrics) ObservePromotion(result string) {
	if m == nil {
		return
	}
	m.Promotions.WithLabelValues(result).Inc()
}

func (m *ServerMetrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.TxRetries.Inc()
}
