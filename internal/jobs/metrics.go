package jobs

import "github.com/prometheus/client_golang/prometheus"

var (
	jobsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zimaged",
		Subsystem: "jobs",
		Name:      "submitted_total",
		Help:      "Accepted generation jobs",
	})

	jobsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zimaged",
		Subsystem: "jobs",
		Name:      "rejected_total",
		Help:      "Submissions rejected before a record was created, by kind",
	}, []string{"kind"})

	jobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zimaged",
		Subsystem: "jobs",
		Name:      "finished_total",
		Help:      "Jobs reaching a terminal state, by state and error kind",
	}, []string{"state", "kind"})

	jobsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "zimaged",
		Subsystem: "jobs",
		Name:      "active",
		Help:      "Jobs not yet in a terminal state",
	})

	inferenceDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "zimaged",
		Subsystem: "jobs",
		Name:      "inference_duration_seconds",
		Help:      "Wall time of successful inference calls",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(jobsSubmitted, jobsRejected, jobsFinished, jobsActive, inferenceDuration)
}
