package service

import "github.com/prometheus/client_golang/prometheus"

var IndexSize = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "taskindex",
	Subsystem: "index",
	Name:      "tasks",
	Help:      "Number of indexed tasks.",
})

var RecomputeSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "taskindex",
	Subsystem: "result_cache",
	Name:      "recompute_seconds",
	Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
})

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{IndexSize, RecomputeSeconds}
}
