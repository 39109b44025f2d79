package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the import workflow's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	uploads          *prometheus.CounterVec
	parseDuration    *prometheus.HistogramVec
	parseIssues      *prometheus.CounterVec
	duplicates       prometheus.Counter
	stageTransitions *prometheus.CounterVec
	rollbacks        *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "statement_import_uploads_total",
			Help: "Uploaded statements by detected format.",
		}, []string{"format"}),
		parseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "statement_import_parse_duration_seconds",
			Help:    "Time spent parsing one statement.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"format"}),
		parseIssues: f.NewCounterVec(prometheus.CounterOpts{
			Name: "statement_import_parse_issues_total",
			Help: "Parse errors and warnings recorded in previews.",
		}, []string{"kind"}),
		duplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "statement_import_duplicates_flagged_total",
			Help: "Candidates flagged as likely duplicates.",
		}),
		stageTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "statement_import_stage_transitions_total",
			Help: "Import sessions entering each stage.",
		}, []string{"stage"}),
		rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "statement_import_rollbacks_total",
			Help: "Rollback attempts by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) upload(format string) {
	if m != nil {
		m.uploads.WithLabelValues(format).Inc()
	}
}

func (m *Metrics) parsed(format string, took time.Duration, errors, warnings int) {
	if m == nil {
		return
	}
	m.parseDuration.WithLabelValues(format).Observe(took.Seconds())
	m.parseIssues.WithLabelValues("error").Add(float64(errors))
	m.parseIssues.WithLabelValues("warning").Add(float64(warnings))
}

func (m *Metrics) flagged(n int) {
	if m != nil {
		m.duplicates.Add(float64(n))
	}
}

func (m *Metrics) entered(stage Stage) {
	if m != nil {
		m.stageTransitions.WithLabelValues(string(stage)).Inc()
	}
}

func (m *Metrics) rollback(result string) {
	if m != nil {
		m.rollbacks.WithLabelValues(result).Inc()
	}
}
