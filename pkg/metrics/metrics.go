package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "secrets_api"

// Metrics owns the service's Prometheus registry and the instruments
// around the credential cache and the HTTP surface.
type Metrics struct {
	registry *prometheus.Registry

	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
	refreshErrors *prometheus.CounterVec
	leaseExpiry   *prometheus.GaugeVec
	requests      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "credential_cache_hits_total",
			Help:      "Number of credential requests served from the cache",
		}, []string{"role"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "credential_cache_misses_total",
			Help:      "Number of credential requests that triggered or joined a refresh",
		}, []string{"role"}),
		refreshErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "credential_refresh_errors_total",
			Help:      "Number of failed credential refreshes",
		}, []string{"role"}),
		leaseExpiry: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: promNamespace,
			Name:      "time_until_secrets_expire",
			Help:      "The time remaining until the secret lease expires",
		}, []string{"role"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "http_requests_total",
			Help:      "Number of HTTP requests handled",
		}, []string{"method", "path", "code"}),
	}

	m.registry.MustRegister(m.cacheHits, m.cacheMisses, m.refreshErrors, m.leaseExpiry, m.requests)
	return m
}

func (m *Metrics) CacheHit(role string)     { m.cacheHits.WithLabelValues(role).Inc() }
func (m *Metrics) CacheMiss(role string)    { m.cacheMisses.WithLabelValues(role).Inc() }
func (m *Metrics) RefreshError(role string) { m.refreshErrors.WithLabelValues(role).Inc() }

func (m *Metrics) SetLeaseExpiry(role string, ttl time.Duration) {
	m.leaseExpiry.WithLabelValues(role).Set(ttl.Seconds())
}

func (m *Metrics) Request(method, path string, code int) {
	m.requests.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
