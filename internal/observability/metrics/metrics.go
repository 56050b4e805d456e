package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Relay outcomes.
const (
	OutcomeSuccess       = "success"
	OutcomeUpstreamError = "upstream_error"
	OutcomeTimeout       = "timeout"
	OutcomeLocalError    = "local_error"
)

// RelayMetrics exposes counters/histograms for the chat relay.
type RelayMetrics struct {
	requestsTotal   *prometheus.CounterVec
	upstreamStatus  *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	rateLimited     prometheus.Counter
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatwidget",
			Subsystem: "relay",
			Name:      "requests_total",
			Help:      "Total relay invocations by outcome",
		}, []string{"outcome"}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatwidget",
			Subsystem: "relay",
			Name:      "upstream_responses_total",
			Help:      "Upstream responses by HTTP status code",
		}, []string{"code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatwidget",
			Subsystem: "relay",
			Name:      "upstream_latency_seconds",
			Help:      "Latency of the upstream chat call",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90},
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatwidget",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.upstreamStatus, m.upstreamLatency, m.rateLimited)
	return m
}

func (m *RelayMetrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
}

func (m *RelayMetrics) ObserveUpstreamStatus(code int) {
	if m == nil {
		return
	}
	m.upstreamStatus.WithLabelValues(strconv.Itoa(code)).Inc()
}

func (m *RelayMetrics) ObserveUpstreamLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.upstreamLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *RelayMetrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
