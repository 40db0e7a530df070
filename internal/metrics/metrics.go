// Package metrics exposes Prometheus counters and histograms for extraction
// runs, learning feedback and store saves.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	RunConfidence  prometheus.Histogram
	FieldsTotal    *prometheus.CounterVec
	IssuesTotal    *prometheus.CounterVec
	FeedbackTotal  *prometheus.CounterVec
	EnhancedFields prometheus.Counter
	SavesTotal     *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
//
// Metrics:
//   - extract_runs_total{status}
//   - extract_run_duration_seconds
//   - extract_run_confidence
//   - extract_fields_total{field,strategy,found}
//   - extract_issues_total{severity,category}
//   - extract_feedback_total{correct}
//   - extract_ai_enhanced_fields_total
//   - extract_learning_saves_total{outcome}
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "extract_runs_total",
			Help: "Extraction runs by outcome",
		}, []string{"status"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "extract_run_duration_seconds",
			Help:    "Wall time of one extraction run",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		RunConfidence: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "extract_run_confidence",
			Help:    "Overall document confidence per run",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
		FieldsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "extract_fields_total",
			Help: "Field outcomes by winning strategy",
		}, []string{"field", "strategy", "found"}),
		IssuesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "extract_issues_total",
			Help: "Issues raised by the anti-pattern filter",
		}, []string{"severity", "category"}),
		FeedbackTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "extract_feedback_total",
			Help: "Feedback received on extracted values",
		}, []string{"correct"}),
		EnhancedFields: f.NewCounter(prometheus.CounterOpts{
			Name: "extract_ai_enhanced_fields_total",
			Help: "Fields filled by AI enhancement",
		}),
		SavesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "extract_learning_saves_total",
			Help: "Learning store saves by outcome (ok, overwrote, failed)",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(status string, d time.Duration, confidence float64) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
	if status == "ok" {
		m.RunConfidence.Observe(confidence)
	}
}

// ObserveField records whether a field was found and by which strategy.
func (m *Metrics) ObserveField(field, strategy string, found bool) {
	if m == nil {
		return
	}
	if !found {
		strategy = "none"
	}
	m.FieldsTotal.WithLabelValues(field, strategy, boolLabel(found)).Inc()
}

// ObserveIssue counts one filter issue.
func (m *Metrics) ObserveIssue(severity, category string) {
	if m == nil {
		return
	}
	m.IssuesTotal.WithLabelValues(severity, category).Inc()
}

// ObserveFeedback counts one feedback call.
func (m *Metrics) ObserveFeedback(correct bool) {
	if m == nil {
		return
	}
	m.FeedbackTotal.WithLabelValues(boolLabel(correct)).Inc()
}

// ObserveEnhanced counts fields filled by the enhancer.
func (m *Metrics) ObserveEnhanced(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EnhancedFields.Add(float64(n))
}

// ObserveSave counts one learning store save.
func (m *Metrics) ObserveSave(outcome string) {
	if m == nil {
		return
	}
	m.SavesTotal.WithLabelValues(outcome).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
