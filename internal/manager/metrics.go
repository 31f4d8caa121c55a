package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	modelLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zimaged",
			Subsystem: "model",
			Name:      "loads_total",
			Help:      "Model load attempts by profile and result",
		},
		[]string{"profile", "result"},
	)

	modelLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "zimaged",
			Subsystem: "model",
			Name:      "load_duration_seconds",
			Help:      "Duration of successful model loads in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"profile"},
	)

	modelLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "zimaged",
			Subsystem: "model",
			Name:      "loaded",
			Help:      "1 while a model handle is loaded",
		},
	)
)

func init() {
	prometheus.MustRegister(modelLoadsTotal, modelLoadDuration, modelLoaded)
}
