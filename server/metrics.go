package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
	"github.com/jrsteele09/go-mcp-auth/introspection"
	"github.com/jrsteele09/go-mcp-auth/upstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "mcp_resource"

// Metrics records token verification, upstream relay and HTTP request figures on its own
// registry. It satisfies both introspection.Observer and upstream.Observer.
type Metrics struct {
	registry *prometheus.Registry

	verifications        *prometheus.CounterVec
	verificationDuration *prometheus.HistogramVec
	relays               *prometheus.CounterVec
	relayDuration        *prometheus.HistogramVec
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
}

var (
	_ introspection.Observer = (*Metrics)(nil)
	_ upstream.Observer      = (*Metrics)(nil)
)

// NewMetrics registers the collectors on registry. A nil registry gets a fresh one.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "token_verifications_total",
			Help:      "Bearer token verifications by outcome",
		}, []string{"outcome"}),
		verificationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "token_verification_duration_seconds",
			Help:      "Time spent verifying a bearer token, including introspection and userinfo",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		relays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "upstream_requests_total",
			Help:      "Requests relayed to the authorization server by route and status",
		}, []string{"route", "status"}),
		relayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of authorization server calls",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests served",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	var err error
	if m.verifications, err = registerCollector(registry, m.verifications); err != nil {
		return nil, err
	}
	if m.verificationDuration, err = registerCollector(registry, m.verificationDuration); err != nil {
		return nil, err
	}
	if m.relays, err = registerCollector(registry, m.relays); err != nil {
		return nil, err
	}
	if m.relayDuration, err = registerCollector(registry, m.relayDuration); err != nil {
		return nil, err
	}
	if m.httpRequests, err = registerCollector(registry, m.httpRequests); err != nil {
		return nil, err
	}
	if m.httpDuration, err = registerCollector(registry, m.httpDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) ObserveVerification(outcome introspection.Outcome, elapsed time.Duration) {
	m.verifications.WithLabelValues(string(outcome)).Inc()
	m.verificationDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

// ObserveRelay labels unreachable upstream calls with status "unreachable".
func (m *Metrics) ObserveRelay(route string, status int, elapsed time.Duration) {
	label := "unreachable"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.relays.WithLabelValues(route, label).Inc()
	m.relayDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// registerCollector registers collector, or returns the identical collector a previous
// NewMetrics registered on the same registry so both observe into the exported series.
func registerCollector[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}
	var are prometheus.AlreadyRegisteredError
	if apperrors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: register metrics: %v", apperrors.ErrMisconfigured, err)
}
