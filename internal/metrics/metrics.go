// Package metrics exposes pipeline counters over Prometheus. All methods
// are safe on a nil *Metrics so callers can run with metrics disabled.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry         *prometheus.Registry
	suitesTotal      *prometheus.CounterVec
	suiteDuration    prometheus.Histogram
	semanticRequests *prometheus.CounterVec
	semanticTokens   *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	runsTotal        *prometheus.CounterVec
	gradePercentage  *prometheus.GaugeVec
	gradeScore       *prometheus.GaugeVec
	httpRequests     *prometheus.CounterVec
}

// New builds the metrics on a private registry so several pipelines in one
// process, or one test binary, do not collide.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		suitesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradecheck_suites_total",
			Help: "Test suites executed, by final status.",
		}, []string{"status"}),
		suiteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gradecheck_suite_duration_seconds",
			Help:    "Wall time of a single test suite.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		semanticRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradecheck_semantic_criteria_total",
			Help: "Criteria sent to the semantic scorer, by outcome.",
		}, []string{"outcome"}),
		semanticTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradecheck_semantic_tokens_total",
			Help: "Tokens used by the semantic scorer.",
		}, []string{"direction"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gradecheck_stage_duration_seconds",
			Help:    "Wall time of each pipeline stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradecheck_runs_total",
			Help: "Grading runs, by exit reason.",
		}, []string{"exit_reason"}),
		gradePercentage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gradecheck_grade_percentage",
			Help: "Latest grade percentage per target.",
		}, []string{"target"}),
		gradeScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gradecheck_grade_score",
			Help: "Latest total score per target.",
		}, []string{"target"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradecheck_http_requests_total",
			Help: "Requests served by the history browser, by route and status.",
		}, []string{"route", "status"}),
	}
	m.registry.MustRegister(
		m.suitesTotal,
		m.suiteDuration,
		m.semanticRequests,
		m.semanticTokens,
		m.stageDuration,
		m.runsTotal,
		m.gradePercentage,
		m.gradeScore,
		m.httpRequests,
	)
	return m
}

func (m *Metrics) SuiteFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.suitesTotal.WithLabelValues(status).Inc()
	m.suiteDuration.Observe(d.Seconds())
}

// SemanticRequest records one criterion's verdict. outcome is "scored" or
// "failed".
func (m *Metrics) SemanticRequest(outcome string, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.semanticRequests.WithLabelValues(outcome).Inc()
	m.semanticTokens.WithLabelValues("input").Add(float64(inputTokens))
	m.semanticTokens.WithLabelValues("output").Add(float64(outputTokens))
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) RunFinished(exitReason string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(exitReason).Inc()
}

func (m *Metrics) RecordGrade(target string, total, percentage float64) {
	if m == nil {
		return
	}
	m.gradeScore.WithLabelValues(target).Set(total)
	m.gradePercentage.WithLabelValues(target).Set(percentage)
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests to next under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		if m != nil {
			m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		}
	})
}
