package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	requestTime   *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	conflicts     *prometheus.CounterVec
	ticketIDs     *prometheus.CounterVec
	idRetries     prometheus.Counter
	cacheResults  *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewMetrics registers every collector.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helpdesk_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_errors_total",
			Help: "HTTP errors by route and error code.",
		}, []string{"path", "method", "code"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_ticket_transitions_total",
			Help: "Committed ticket lifecycle transitions by action.",
		}, []string{"action"}),
		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_ticket_conflicts_total",
			Help: "Rejected transitions due to current ticket state.",
		}, []string{"operation"}),
		ticketIDs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_ticket_ids_allocated_total",
			Help: "Ticket ids allocated by category code.",
		}, []string{"category_code"}),
		idRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_ticket_id_retries_total",
			Help: "Ticket creations retried after a duplicate id.",
		}),
		cacheResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_stats_cache_total",
			Help: "Stats cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_notifications_total",
			Help: "Notification deliveries by outcome.",
		}, []string{"outcome"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestTime.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordTransition counts a committed lifecycle action.
func (m *Metrics) RecordTransition(action string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action).Inc()
}

// RecordConflict counts a transition rejected by the assignment guard.
func (m *Metrics) RecordConflict(operation string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(operation).Inc()
}

// RecordTicketID counts an allocated id.
func (m *Metrics) RecordTicketID(categoryCode string) {
	if m == nil {
		return
	}
	m.ticketIDs.WithLabelValues(categoryCode).Inc()
}

// RecordTicketIDRetry counts a creation retried after a duplicate id.
func (m *Metrics) RecordTicketIDRetry() {
	if m == nil {
		return
	}
	m.idRetries.Inc()
}

// RecordCache counts a stats cache lookup.
func (m *Metrics) RecordCache(result string) {
	if m == nil {
		return
	}
	m.cacheResults.WithLabelValues(result).Inc()
}

// RecordNotification counts a notification outcome (sent, failed, dropped, skipped).
func (m *Metrics) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}
