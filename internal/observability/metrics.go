// Package observability exposes Prometheus metrics for ingest passes.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pass outcomes.
const (
	OutcomeChanged   = "changed"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
)

var (
	passesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sprintlog",
		Subsystem: "ingest",
		Name:      "passes_total",
		Help:      "Reconciliation passes by outcome.",
	}, []string{"outcome"})
	recordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sprintlog",
		Subsystem: "ingest",
		Name:      "records_total",
		Help:      "Records affected by reconciliation, by action.",
	}, []string{"action"})
	parseGapsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sprintlog",
		Subsystem: "ingest",
		Name:      "parse_gaps_total",
		Help:      "Item bullets dropped because user, item or date context was missing.",
	})
	degradedReadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sprintlog",
		Subsystem: "ingest",
		Name:      "degraded_reads_total",
		Help:      "Passes that merged against empty state after a failed store read.",
	})
	passDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sprintlog",
		Subsystem: "ingest",
		Name:      "pass_duration_seconds",
		Help:      "Wall time of a reconciliation pass.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	})
	lastChangeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sprintlog",
		Subsystem: "ingest",
		Name:      "last_change_timestamp_seconds",
		Help:      "Unix timestamp of the most recent pass that wrote records.",
	})
)

func init() {
	prometheus.MustRegister(passesTotal, recordsTotal, parseGapsTotal, degradedReadsTotal, passDuration, lastChangeGauge)
}

// PassStats is what a finished pass reports.
type PassStats struct {
	Outcome           string
	Inserted          int
	Updated           int
	DuplicatesRemoved int
	Gaps              int
	PriorReadFailed   bool
	Duration          time.Duration
}

// RecordPass updates all pass metrics.
func RecordPass(s PassStats) {
	passesTotal.WithLabelValues(s.Outcome).Inc()
	recordsTotal.WithLabelValues("inserted").Add(float64(s.Inserted))
	recordsTotal.WithLabelValues("updated").Add(float64(s.Updated))
	recordsTotal.WithLabelValues("duplicates_removed").Add(float64(s.DuplicatesRemoved))
	parseGapsTotal.Add(float64(s.Gaps))
	if s.PriorReadFailed {
		degradedReadsTotal.Inc()
	}
	passDuration.Observe(s.Duration.Seconds())
	if s.Outcome == OutcomeChanged {
		lastChangeGauge.Set(float64(time.Now().Unix()))
	}
}
