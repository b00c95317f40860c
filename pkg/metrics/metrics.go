// Package metrics exposes Prometheus collectors for the tenant router.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ghlmux"

// Metrics holds every collector the service reports.
type Metrics struct {
	requests     *prometheus.CounterVec
	durations    *prometheus.HistogramVec
	rateLimited  *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	cacheEvicted *prometheus.CounterVec
	cacheSize    prometheus.Gauge
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	adminOps     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of HTTP requests by handler and status code",
		}, []string{"handler", "code"}),

		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request latency",
			Buckets:   prometheus.ExponentialBuckets(1e-3, 4, 8),
		}, []string{"handler"}),

		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tenant",
			Name:      "rate_limited_total",
			Help:      "Count of requests rejected by the per-tenant rate limit",
		}, []string{"tenant"}),

		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client_cache",
			Name:      "lookups_total",
			Help:      "Count of upstream client cache lookups by result",
		}, []string{"result"}),

		cacheEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client_cache",
			Name:      "evictions_total",
			Help:      "Count of upstream clients dropped from the cache by reason",
		}, []string{"reason"}),

		cacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client_cache",
			Name:      "entries",
			Help:      "Number of cached upstream clients",
		}),

		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mcp",
			Name:      "tool_calls_total",
			Help:      "Count of MCP tool calls by tool and result",
		}, []string{"tool", "result"}),

		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mcp",
			Name:      "tool_duration_seconds",
			Help:      "Histogram of MCP tool call latency",
			Buckets:   prometheus.ExponentialBuckets(5e-3, 3, 8),
		}, []string{"tool"}),

		adminOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "operations_total",
			Help:      "Count of tenant administration operations by result",
		}, []string{"operation", "result"}),
	}

	reg.MustRegister(m.Collectors()...)
	return m
}

// Collectors returns every collector, for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requests, m.durations, m.rateLimited,
		m.cacheLookups, m.cacheEvicted, m.cacheSize,
		m.toolCalls, m.toolDuration, m.adminOps,
	}
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// CacheHit implements the client factory observer.
func (m *Metrics) CacheHit() { m.cacheLookups.WithLabelValues("hit").Inc() }

func (m *Metrics) CacheMiss() { m.cacheLookups.WithLabelValues("miss").Inc() }

func (m *Metrics) CacheEvicted(reason string) { m.cacheEvicted.WithLabelValues(reason).Inc() }

func (m *Metrics) CacheSize(n int) { m.cacheSize.Set(float64(n)) }

// RateLimited counts one rejected request for tenantID.
func (m *Metrics) RateLimited(tenantID string) {
	m.rateLimited.WithLabelValues(tenantID).Inc()
}

// ToolCall records one MCP tool invocation.
func (m *Metrics) ToolCall(tool string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.toolCalls.WithLabelValues(tool, result).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// AdminOp records one tenant administration operation.
func (m *Metrics) AdminOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.adminOps.WithLabelValues(op, result).Inc()
}

// Instrument wraps next, counting requests and observing latency under the
// given handler label.
func (m *Metrics) Instrument(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		m.requests.WithLabelValues(handler, strconv.Itoa(sw.code)).Inc()
		m.durations.WithLabelValues(handler).Observe(time.Since(start).Seconds())
		if sw.code == http.StatusTooManyRequests {
			if id := w.Header().Get("X-Tenant-ID"); id != "" {
				m.RateLimited(id)
			}
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.code, w.wroteHeader = code, true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Flush keeps streaming responses working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
