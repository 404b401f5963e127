package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the service's prometheus collectors. Every method is safe on a nil
// receiver so components can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorCount      *prometheus.CounterVec

	slaScans        *prometheus.CounterVec
	slaScanDuration prometheus.Histogram
	slaEvaluated    prometheus.Counter
	slaEvents       *prometheus.CounterVec
	slaFailures     *prometheus.CounterVec

	mailRuns     *prometheus.CounterVec
	mailMessages *prometheus.CounterVec

	notifyQueued  prometheus.Counter
	notifyDropped prometheus.Counter
	notifySent    prometheus.Counter
	notifyFailed  *prometheus.CounterVec
}

// NewMetrics builds and registers collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "HTTP error responses by error code",
		}, []string{"path", "method", "code"}),
		slaScans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_scans_total",
			Help: "SLA scan iterations by result",
		}, []string{"result"}),
		slaScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sla_scan_duration_seconds",
			Help:    "Duration of a full SLA scan",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		slaEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sla_tickets_evaluated_total",
			Help: "Tickets evaluated against their SLA deadline",
		}),
		slaEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_events_total",
			Help: "SLA warnings and violations committed",
		}, []string{"kind", "phase"}),
		slaFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_ticket_failures_total",
			Help: "Per-ticket failures during a scan",
		}, []string{"reason"}),
		mailRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mail_ingestion_runs_total",
			Help: "Mail ingestion iterations by result",
		}, []string{"result"}),
		mailMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mail_messages_total",
			Help: "Inbound messages by outcome",
		}, []string{"outcome"}),
		notifyQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_enqueued_total",
			Help: "Outbound notifications accepted by the queue",
		}),
		notifyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_dropped_total",
			Help: "Outbound notifications dropped because the queue was full or unavailable",
		}),
		notifySent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Outbound notifications delivered to the mail relay",
		}),
		notifyFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Outbound notification delivery failures",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestCount,
		m.requestDuration,
		m.errorCount,
		m.slaScans,
		m.slaScanDuration,
		m.slaEvaluated,
		m.slaEvents,
		m.slaFailures,
		m.mailRuns,
		m.mailMessages,
		m.notifyQueued,
		m.notifyDropped,
		m.notifySent,
		m.notifyFailed,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(path, method, code).Inc()
}

// RecordScan records one SLA scan iteration.
func (m *Metrics) RecordScan(err error, duration time.Duration, evaluated int) {
	if m == nil {
		return
	}
	m.slaScans.WithLabelValues(resultLabel(err)).Inc()
	m.slaScanDuration.Observe(duration.Seconds())
	m.slaEvaluated.Add(float64(evaluated))
}

// RecordSLAEvent counts a committed warning or violation.
func (m *Metrics) RecordSLAEvent(kind, phase string) {
	if m == nil {
		return
	}
	m.slaEvents.WithLabelValues(kind, phase).Inc()
}

// RecordSLAFailure counts a ticket the scan could not process.
func (m *Metrics) RecordSLAFailure(reason string) {
	if m == nil {
		return
	}
	m.slaFailures.WithLabelValues(reason).Inc()
}

// RecordIngestion records one mail ingestion iteration.
func (m *Metrics) RecordIngestion(err error) {
	if m == nil {
		return
	}
	m.mailRuns.WithLabelValues(resultLabel(err)).Inc()
}

// RecordMessage counts an inbound message by outcome.
func (m *Metrics) RecordMessage(outcome string) {
	if m == nil {
		return
	}
	m.mailMessages.WithLabelValues(outcome).Inc()
}

// RecordEnqueued counts a notification accepted by the outbound queue.
func (m *Metrics) RecordEnqueued() {
	if m == nil {
		return
	}
	m.notifyQueued.Inc()
}

// RecordDropped counts a notification the queue refused.
func (m *Metrics) RecordDropped() {
	if m == nil {
		return
	}
	m.notifyDropped.Inc()
}

// RecordSent counts a delivered notification.
func (m *Metrics) RecordSent() {
	if m == nil {
		return
	}
	m.notifySent.Inc()
}

// RecordSendFailure counts a failed delivery.
func (m *Metrics) RecordSendFailure(reason string) {
	if m == nil {
		return
	}
	m.notifyFailed.WithLabelValues(reason).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
