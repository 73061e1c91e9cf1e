package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	reportsIngested   *prometheus.CounterVec
	reportsRejected   *prometheus.CounterVec
	storeSize         prometheus.Gauge
	wsClients         prometheus.Gauge
	alertsFired       *prometheus.CounterVec
	webhookErrors     prometheus.Counter
}

// New creates the collectors and registers them on a private registry, so
// several instances can coexist in one process (tests).
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relojcausal_http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relojcausal_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		reportsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relojcausal_reports_ingested_total",
			Help: "Reports accepted on /api/reports, by class.",
		}, []string{"class"}),
		reportsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relojcausal_reports_rejected_total",
			Help: "Reports refused on /api/reports, by reason.",
		}, []string{"reason"}),
		storeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relojcausal_store_reports",
			Help: "Reports currently held in the in-memory buffer.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relojcausal_ws_clients",
			Help: "Connected dashboard WebSocket clients.",
		}),
		alertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relojcausal_alerts_fired_total",
			Help: "Alerts fired, by rule and severity.",
		}, []string{"rule", "severity"}),
		webhookErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relojcausal_webhook_errors_total",
			Help: "Failed webhook deliveries.",
		}),
	}

	m.reg.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		m.reportsIngested,
		m.reportsRejected,
		m.storeSize,
		m.wsClients,
		m.alertsFired,
		m.webhookErrors,
	)
	return m
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests and observes latency under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) ReportIngested(class string) {
	if m == nil {
		return
	}
	m.reportsIngested.WithLabelValues(class).Inc()
}

func (m *Metrics) ReportRejected(reason string) {
	if m == nil {
		return
	}
	m.reportsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetStoreSize(n int) {
	if m == nil {
		return
	}
	m.storeSize.Set(float64(n))
}

func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}

func (m *Metrics) AlertFired(rule, severity string) {
	if m == nil {
		return
	}
	m.alertsFired.WithLabelValues(rule, severity).Inc()
}

func (m *Metrics) WebhookError() {
	if m == nil {
		return
	}
	m.webhookErrors.Inc()
}
