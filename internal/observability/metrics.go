package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	upstreamRequestsTotal *prometheus.CounterVec
	upstreamDuration      *prometheus.HistogramVec
	modelFallbacks        *prometheus.CounterVec
	translationFallbacks  prometheus.Counter
	waitTimeOutcomes      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triagekit_http_requests_total",
				Help: "Total number of HTTP requests handled.",
			},
			[]string{"route", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "triagekit_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		upstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triagekit_upstream_requests_total",
				Help: "Total generative backend API requests.",
			},
			[]string{"endpoint", "status"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "triagekit_upstream_request_duration_seconds",
				Help:    "Generative backend request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "status"},
		),
		modelFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triagekit_model_fallback_total",
				Help: "Times a candidate model was unavailable and the next one was tried.",
			},
			[]string{"model"},
		),
		translationFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "triagekit_translation_fallback_total",
				Help: "Diagnoses that kept untranslated text after a translation failure.",
			},
		),
		waitTimeOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triagekit_wait_time_resolutions_total",
				Help: "Facility wait-time resolutions by outcome.",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.upstreamRequestsTotal,
		m.upstreamDuration,
		m.modelFallbacks,
		m.translationFallbacks,
		m.waitTimeOutcomes,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "UNKNOWN"
	}
	statusLabel := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(route, method, statusLabel).Inc()
	m.httpRequestDuration.WithLabelValues(route, method, statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) ObserveUpstream(endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	statusLabel := strconv.Itoa(status)
	m.upstreamRequestsTotal.WithLabelValues(endpoint, statusLabel).Inc()
	m.upstreamDuration.WithLabelValues(endpoint, statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) IncModelFallback(model string) {
	if m == nil {
		return
	}
	m.modelFallbacks.WithLabelValues(model).Inc()
}

func (m *Metrics) IncTranslationFallback() {
	if m == nil {
		return
	}
	m.translationFallbacks.Inc()
}

func (m *Metrics) IncWaitTimeOutcome(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.waitTimeOutcomes.WithLabelValues(outcome).Inc()
}
