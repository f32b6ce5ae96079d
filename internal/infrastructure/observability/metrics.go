package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "careway"

// Recorder is everything the gateway reports. Metrics and Noop implement it.
type Recorder interface {
	ObserveUpstream(service string, status int, elapsed time.Duration)
	CacheLookup(hit bool)
	RateLimited(service string)
	PoolSize(service string, size int)
	Evicted(service string)
}

type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	upstream     *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
	rateLimited  *prometheus.CounterVec
	poolSize     *prometheus.GaugeVec
	evictions    *prometheus.CounterVec
}

// NewMetrics builds collectors on a private registry so several gateways can
// coexist in one process.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "proxied_requests_total",
			Help: "Proxied requests by target service and response status",
		}, []string{"service", "status"}),
		upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "upstream_duration_seconds",
			Help:    "Time spent waiting on downstream instances",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "cache_lookups_total",
			Help: "Response cache lookups by result",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "rate_limited_total",
			Help: "Requests rejected by a route rate limit",
		}, []string{"service"}),
		poolSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "pool_instances",
			Help: "Instances currently in each service pool",
		}, []string{"service"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "instance_evictions_total",
			Help: "Instances evicted after failed health checks",
		}, []string{"service"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.upstream,
		m.cacheLookups,
		m.rateLimited,
		m.poolSize,
		m.evictions,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveUpstream(service string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(service, strconv.Itoa(status)).Inc()
	m.upstream.WithLabelValues(service).Observe(elapsed.Seconds())
}

func (m *Metrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) RateLimited(service string) {
	m.rateLimited.WithLabelValues(service).Inc()
}

func (m *Metrics) PoolSize(service string, size int) {
	m.poolSize.WithLabelValues(service).Set(float64(size))
}

func (m *Metrics) Evicted(service string) {
	m.evictions.WithLabelValues(service).Inc()
}
