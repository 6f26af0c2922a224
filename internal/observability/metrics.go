package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dlerrors "github.com/devlens/devlens/internal/errors"
	"github.com/devlens/devlens/internal/pipeline"
)

// Outcome labels for devlens_analyses_total.
const (
	OutcomeSuccess = "success"
	OutcomeInput   = "input_error"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Metrics holds the Prometheus collectors on a private registry.
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	registry *prometheus.Registry

	AnalysesTotal      *prometheus.CounterVec
	AnalysisDuration   prometheus.Histogram
	EventsIngested     prometheus.Counter
	EventsUnclassified prometheus.Counter
	BehaviorEvents     *prometheus.CounterVec
	HTTPRequestsTotal  *prometheus.CounterVec

	behaviors *BehaviorStats
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics(behaviors *BehaviorStats) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		AnalysesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devlens_analyses_total",
			Help: "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "devlens_analysis_duration_seconds",
			Help:    "Wall time of one pipeline run.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		EventsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "devlens_events_ingested_total",
			Help: "Rows handed to the pipeline.",
		}),
		EventsUnclassified: factory.NewCounter(prometheus.CounterOpts{
			Name: "devlens_events_unclassified_total",
			Help: "Rows that matched no behavior rule.",
		}),
		BehaviorEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devlens_behavior_events_total",
			Help: "Classified events by behavior code.",
		}, []string{"code"}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devlens_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		behaviors: behaviors,
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Behaviors returns the cross-run behavior statistics, possibly nil.
func (m *Metrics) Behaviors() *BehaviorStats {
	return m.behaviors
}

// ObserveRun implements pipeline.Observer.
func (m *Metrics) ObserveRun(stats pipeline.RunStats) {
	m.AnalysesTotal.WithLabelValues(Outcome(stats.Err)).Inc()
	m.AnalysisDuration.Observe(stats.Duration.Seconds())
	m.EventsIngested.Add(float64(stats.Rows))
	m.EventsUnclassified.Add(float64(stats.Unclassified))

	if stats.Err != nil {
		return
	}
	for code, n := range stats.Behaviors {
		m.BehaviorEvents.WithLabelValues(code).Add(float64(n))
	}
	if m.behaviors != nil {
		m.behaviors.RecordRun(stats.Behaviors)
	}
}

// ObserveHTTP counts one HTTP request.
func (m *Metrics) ObserveHTTP(route string, status int) {
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Outcome maps a run error to its metric label.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	switch dlerrors.KindOf(err) {
	case dlerrors.KindTimeout:
		return OutcomeTimeout
	case dlerrors.KindInvalid:
		return OutcomeInput
	default:
		return OutcomeError
	}
}
