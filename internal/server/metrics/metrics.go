// Package metrics exports the server's Prometheus collectors.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "creditkeeper"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	webhookOutcomes *prometheus.CounterVec
	handleCommits   *prometheus.CounterVec
	handleSyncs     prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg (the default registerer when nil).
// Collectors already registered by an earlier call are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		webhookOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Inbound notifications by source and outcome.",
		}, []string{"source", "outcome"}),
		handleCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handle_commits_total",
			Help:      "Handle commit requests by outcome.",
		}, []string{"outcome"}),
		handleSyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handle_syncs_total",
			Help:      "Handles pushed to the identity provider by the sync sweep.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	if err := register(reg, &m.webhookOutcomes); err != nil {
		return nil, err
	}
	if err := register(reg, &m.handleCommits); err != nil {
		return nil, err
	}
	if err := register(reg, &m.handleSyncs); err != nil {
		return nil, err
	}
	if err := register(reg, &m.requestDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c *C) error {
	if err := reg.Register(*c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				*c = existing
				return nil
			}
		}
		return fmt.Errorf("register metric: %w", err)
	}
	return nil
}

func (m *Metrics) WebhookOutcome(source, outcome string) {
	if m == nil {
		return
	}
	m.webhookOutcomes.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) HandleCommit(outcome string) {
	if m == nil {
		return
	}
	m.handleCommits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HandlesSynced(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.handleSyncs.Add(float64(n))
}

func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler serves the collectors of g (the default gatherer when nil).
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
