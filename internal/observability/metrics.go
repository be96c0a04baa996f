package observability

import (
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

// Metrics holds the process collectors. A nil *Metrics is valid and records
// nothing, so call sites never need an Enabled check.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec

	genAttempts    *prometheus.CounterVec
	genYield       *prometheus.CounterVec
	genRuns        *prometheus.CounterVec
	genRunDuration *prometheus.HistogramVec
	recordsDropped *prometheus.CounterVec
	recordsWritten *prometheus.CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

// Current returns the process metrics, or nil when Init has not enabled them.
func Current() *Metrics {
	return instance
}

// Init builds the process-wide collectors when METRICS_ENABLED is set.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("prometheus metrics enabled")
		}
	})
	return instance
}

// New builds an independent collector set on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studygen_api_requests_total",
			Help: "API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "studygen_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 120},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "studygen_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studygen_llm_requests_total",
			Help: "Model calls by model/status.",
		}, []string{"model", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "studygen_llm_request_duration_seconds",
			Help:    "Model call latency in seconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"model", "status"}),
		genAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studygen_generation_attempts_total",
			Help: "Generation attempts by run/status (ok, empty, error).",
		}, []string{"run", "status"}),
		genYield: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studygen_generation_records_total",
			Help: "Well-formed records returned by generation attempts.",
		}, []string{"run"}),
		genRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studygen_generation_runs_total",
			Help: "Finished generation runs by run/terminal state.",
		}, []string{"run", "state"}),
		genRunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "studygen_generation_run_duration_seconds",
			Help:    "Wall time of generation runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"run", "state"}),
		recordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studygen_records_dropped_total",
			Help: "Malformed model records dropped at the call boundary.",
		}, []string{"kind"}),
		recordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studygen_records_written_total",
			Help: "Artifact records persisted by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency,
		m.genAttempts, m.genYield, m.genRuns, m.genRunDuration,
		m.recordsDropped, m.recordsWritten,
	)
	return m
}

// Handler serves the Prometheus text exposition for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method = orUnknown(method)
	route = orUnknown(route)
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(model, status string, dur time.Duration) {
	if m == nil {
		return
	}
	model = orUnknown(model)
	status = orUnknown(status)
	m.llmRequests.WithLabelValues(model, status).Inc()
	if dur > 0 {
		m.llmLatency.WithLabelValues(model, status).Observe(dur.Seconds())
	}
}

func (m *Metrics) ObserveGenerationAttempt(run, status string, yield int) {
	if m == nil {
		return
	}
	run = orUnknown(run)
	m.genAttempts.WithLabelValues(run, orUnknown(status)).Inc()
	if yield > 0 {
		m.genYield.WithLabelValues(run).Add(float64(yield))
	}
}

func (m *Metrics) ObserveGenerationRun(run, state string, dur time.Duration) {
	if m == nil {
		return
	}
	run, state = orUnknown(run), orUnknown(state)
	m.genRuns.WithLabelValues(run, state).Inc()
	m.genRunDuration.WithLabelValues(run, state).Observe(dur.Seconds())
}

func (m *Metrics) AddRecordsDropped(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsDropped.WithLabelValues(orUnknown(kind)).Add(float64(n))
}

func (m *Metrics) AddRecordsWritten(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsWritten.WithLabelValues(orUnknown(kind)).Add(float64(n))
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return s
}
