package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmeter_requests_total",
			Help: "Total number of API requests per path",
		},
		[]string{"path"},
	)

	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gmeter_request_duration_seconds",
			Help:    "Request duration in seconds per path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmeter_request_errors_total",
			Help: "Total number of error responses per path and status code",
		},
		[]string{"path", "code"},
	)
)

var (
	EOPFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmeter_eop_fetch_total",
			Help: "Total number of EOP bulletin fetches per source and result",
		},
		[]string{"source", "result"},
	)

	EOPFetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gmeter_eop_fetch_duration_seconds",
			Help:    "Duration of EOP bulletin fetches per source",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"source"},
	)

	EOPTableFetchedTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gmeter_eop_table_fetched_timestamp",
			Help: "Unix timestamp at which the cached EOP table was fetched",
		},
		[]string{"source"},
	)

	EOPTableSamples = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gmeter_eop_table_samples",
			Help: "Number of samples in the cached EOP table",
		},
		[]string{"source"},
	)

	EOPStaleServedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmeter_eop_stale_served_total",
			Help: "Queries answered from a stale table because the refresh failed",
		},
		[]string{"source"},
	)

	EOPQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmeter_eop_queries_total",
			Help: "Pole coordinate lookups per resulting provenance",
		},
		[]string{"provenance"},
	)
)

// ObserveFetch records the outcome of a single bulletin fetch.
func ObserveFetch(source string, startedAt time.Time, err error) {
	EOPFetchDurationSeconds.WithLabelValues(source).Observe(time.Since(startedAt).Seconds())
	result := "success"
	if err != nil {
		result = "error"
	}
	EOPFetchTotal.WithLabelValues(source, result).Inc()
}

// UpdateTableMetrics publishes the shape of the table now being served.
func UpdateTableMetrics(source string, samples int, fetchedAt time.Time) {
	EOPTableSamples.WithLabelValues(source).Set(float64(samples))
	EOPTableFetchedTimestamp.WithLabelValues(source).Set(float64(fetchedAt.Unix()))
}

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gmeter_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gmeter_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmeter_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}
