package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. It implements the recorder
// interfaces of the audit, events, rbac and modules packages.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Permission metrics
	PermissionChecksTotal *prometheus.CounterVec

	// Module metrics
	ModuleInitsTotal   *prometheus.CounterVec
	ModuleInitDuration *prometheus.HistogramVec
	RegisteredModules  prometheus.Gauge
	OperationsTotal    *prometheus.CounterVec

	// Event bus metrics
	EventsPublishedTotal      *prometheus.CounterVec
	EventHandlerFailuresTotal *prometheus.CounterVec

	// Audit log metrics
	AuditEntriesTotal   *prometheus.CounterVec
	AuditEvictionsTotal prometheus.Counter

	otel *OTelMetrics
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waypoint_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "waypoint_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waypoint_permission_checks_total",
				Help: "Total number of permission checks by result",
			},
			[]string{"permission", "result"},
		),
		ModuleInitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waypoint_module_inits_total",
				Help: "Total number of module builds by department and outcome",
			},
			[]string{"department", "outcome"},
		),
		ModuleInitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "waypoint_module_init_duration_seconds",
				Help:    "Module build duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"department"},
		),
		RegisteredModules: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "waypoint_modules_registered",
				Help: "Number of modules in the registry",
			},
		),
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waypoint_operations_total",
				Help: "Total number of module operation invocations by status",
			},
			[]string{"op", "status"},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waypoint_events_published_total",
				Help: "Total number of events published by topic",
			},
			[]string{"topic"},
		),
		EventHandlerFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waypoint_event_handler_failures_total",
				Help: "Total number of failed event handlers by topic",
			},
			[]string{"topic"},
		),
		AuditEntriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waypoint_audit_entries_total",
				Help: "Total number of audit entries stored by level",
			},
			[]string{"level"},
		),
		AuditEvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "waypoint_audit_evictions_total",
				Help: "Total number of audit entries evicted from the ring buffer",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionChecksTotal,
		m.ModuleInitsTotal,
		m.ModuleInitDuration,
		m.RegisteredModules,
		m.OperationsTotal,
		m.EventsPublishedTotal,
		m.EventHandlerFailuresTotal,
		m.AuditEntriesTotal,
		m.AuditEvictionsTotal,
	)

	return m
}

// Mirror forwards module, operation and event measurements to o as well
func (m *Metrics) Mirror(o *OTelMetrics) {
	m.otel = o
}

// PermissionChecked counts one permission check
func (m *Metrics) PermissionChecked(permission string, allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.PermissionChecksTotal.WithLabelValues(permission, result).Inc()
}

// ModuleInitialized records the outcome of one module build
func (m *Metrics) ModuleInitialized(department, outcome string, elapsed time.Duration) {
	m.ModuleInitsTotal.WithLabelValues(department, outcome).Inc()
	m.ModuleInitDuration.WithLabelValues(department).Observe(elapsed.Seconds())
	if m.otel != nil {
		m.otel.ModuleInitialized(context.Background(), department, outcome, elapsed)
	}
}

// ModulesRegistered sets the registry size
func (m *Metrics) ModulesRegistered(n int) {
	m.RegisteredModules.Set(float64(n))
}

// OperationInvoked counts one operation invocation
func (m *Metrics) OperationInvoked(op, status string) {
	m.OperationsTotal.WithLabelValues(op, status).Inc()
	if m.otel != nil {
		m.otel.OperationInvoked(context.Background(), op, status)
	}
}

// EventPublished counts one publication
func (m *Metrics) EventPublished(topic string) {
	m.EventsPublishedTotal.WithLabelValues(topic).Inc()
	if m.otel != nil {
		m.otel.EventPublished(context.Background(), topic)
	}
}

// EventHandlerFailed counts one failed subscriber
func (m *Metrics) EventHandlerFailed(topic string) {
	m.EventHandlerFailuresTotal.WithLabelValues(topic).Inc()
}

// AuditEntryRecorded counts one stored audit entry
func (m *Metrics) AuditEntryRecorded(level string) {
	m.AuditEntriesTotal.WithLabelValues(level).Inc()
}

// AuditEntryEvicted counts one evicted audit entry
func (m *Metrics) AuditEntryEvicted() {
	m.AuditEvictionsTotal.Inc()
}

// statusWriter captures the status code written by a handler
type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests. Requests are labelled
// with their mux route template so path parameters do not explode the
// label space.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sw, r)

			route := routeTemplate(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
