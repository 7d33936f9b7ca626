package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	completionAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querywright_completion_attempts_total",
			Help: "Completion service calls made by the generation loop, by outcome.",
		},
		[]string{"outcome"},
	)
	completionExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querywright_completion_exhausted_total",
			Help: "Generations that gave up after exhausting the completion retry policy.",
		},
	)
	generationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querywright_generation_duration_seconds",
			Help:    "End-to-end SQL generation latency by strategy and status.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"strategy", "status"},
	)
	sqlExecutionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querywright_sql_execution_duration_seconds",
			Help:    "Latency of executing generated SQL against target databases.",
			Buckets: prometheus.DefBuckets,
		},
	)
	archiveFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querywright_archive_failures_total",
			Help: "Generation archive writes that failed.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		completionAttemptsTotal,
		completionExhaustedTotal,
		generationDurationSeconds,
		sqlExecutionDurationSeconds,
		archiveFailuresTotal,
	)
}

func ObserveCompletionAttempt(err error) {
	if err != nil {
		completionAttemptsTotal.WithLabelValues(OutcomeFailure).Inc()
		return
	}
	completionAttemptsTotal.WithLabelValues(OutcomeSuccess).Inc()
}

func IncrementCompletionExhausted() {
	completionExhaustedTotal.Inc()
}

func ObserveGeneration(strategy string, err error, elapsed time.Duration) {
	status := OutcomeSuccess
	if err != nil {
		status = OutcomeFailure
	}
	generationDurationSeconds.WithLabelValues(strategy, status).Observe(elapsed.Seconds())
}

func ObserveSQLExecution(elapsed time.Duration) {
	sqlExecutionDurationSeconds.Observe(elapsed.Seconds())
}

func IncrementArchiveFailure() {
	archiveFailuresTotal.Inc()
}
