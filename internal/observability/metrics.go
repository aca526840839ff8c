package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the HTTP surface and the
// authorization layer.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	cacheLookups       *prometheus.CounterVec
	storageUnavailable prometheus.Counter
	registrations      prometheus.Counter
	boundPermissions   prometheus.Gauge
	denials            *prometheus.CounterVec
}

// NewMetrics initialises the registry and every collector.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "HTTP requests partitioned by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_authz_cache_lookups_total",
		Help: "Permission cache lookups partitioned by result.",
	}, []string{"result"})
	unavailable := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_authz_storage_unavailable_total",
		Help: "Permission loads that found the backing store unavailable.",
	})
	registrations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_authz_registrations_total",
		Help: "Completed permission registration passes.",
	})
	bound := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_authz_bound_permissions",
		Help: "Gate bindings held after the most recent registration pass.",
	})
	denials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_authz_denials_total",
		Help: "Requests rejected by the access filter.",
	}, []string{"reason"})
	registry.MustRegister(requests, duration, lookups, unavailable, registrations, bound, denials)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		cacheLookups:       lookups,
		storageUnavailable: unavailable,
		registrations:      registrations,
		boundPermissions:   bound,
		denials:            denials,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheLookups.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.cacheLookups.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) StorageUnavailable() {
	if m != nil {
		m.storageUnavailable.Inc()
	}
}

// Registered records a registration pass after which the gate holds count bindings.
func (m *Metrics) Registered(count int) {
	if m == nil {
		return
	}
	m.registrations.Inc()
	m.boundPermissions.Set(float64(count))
}

func (m *Metrics) Denied(reason string) {
	if m != nil {
		m.denials.WithLabelValues(reason).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
