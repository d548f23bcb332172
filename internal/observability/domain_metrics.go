package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/reportq/reportq/internal/report"
)

// Job status label values.
const (
	JobStatusDone            = "done"
	JobStatusDecodeError     = "decode_error"
	JobStatusConnectionError = "connection_error"
	JobStatusQueryError      = "query_error"
	JobStatusEmitError       = "emit_error"
	JobStatusArchiveError    = "archive_error"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportq_jobs_total",
			Help: "Total number of report jobs handled, by output format and outcome.",
		},
		[]string{"format", "status"},
	)
	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reportq_job_duration_seconds",
			Help:    "Wall time of a report job from decode to last emitted byte.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"format"},
	)
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportq_queries_total",
			Help: "Total number of catalog queries executed, by outcome.",
		},
		[]string{"status"},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reportq_query_duration_seconds",
			Help:    "Catalog query execution latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
	renderedRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportq_rendered_rows_total",
			Help: "Total number of result rows rendered, by output format.",
		},
		[]string{"format"},
	)
)

func init() {
	prometheus.MustRegister(
		jobsTotal,
		jobDurationSeconds,
		queriesTotal,
		queryDurationSeconds,
		renderedRowsTotal,
	)
}

// ObserveJob records one finished job. An empty format is reported as
// "unknown", which happens when the payload could not be decoded.
func ObserveJob(format report.Format, status string, elapsed time.Duration) {
	label := string(format)
	if label == "" {
		label = "unknown"
	}
	jobsTotal.WithLabelValues(label, status).Inc()
	jobDurationSeconds.WithLabelValues(label).Observe(elapsed.Seconds())
}

func ObserveQuery(ok bool, elapsed time.Duration) {
	status := "ok"
	if !ok {
		status = "error"
	}
	queriesTotal.WithLabelValues(status).Inc()
	queryDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveRenderedRows(format report.Format, rows int) {
	if rows <= 0 {
		return
	}
	renderedRowsTotal.WithLabelValues(string(format)).Add(float64(rows))
}
