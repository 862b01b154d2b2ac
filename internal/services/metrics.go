package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// eventsIngested counts ingestion outcomes: created, duplicate, invalid.
	eventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_ingested_total",
			Help: "Events received by the ingestion gateway, by outcome.",
		},
		[]string{"outcome"},
	)

	// digestRuns counts aggregation runs: created, empty, busy, error.
	digestRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digest_runs_total",
			Help: "Digest aggregation runs, by outcome.",
		},
		[]string{"outcome"},
	)

	digestRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "digest_run_duration_seconds",
			Help:    "Duration of digest aggregation runs in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// digestEvents observes how many events a created digest consumed.
	digestEvents = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "digest_events_per_run",
			Help:    "Number of events consumed by each created digest.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// notifications counts delivery attempts: sent, failed, abandoned.
	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digest_notifications_total",
			Help: "Digest notification delivery attempts, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(eventsIngested, digestRuns, digestRunDuration, digestEvents, notifications)
}
