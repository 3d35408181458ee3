package database

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_requests_total",
		Help: "Store requests by method, table and outcome.",
	}, []string{"method", "table", "outcome"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_request_retries_total",
		Help: "Retry attempts against the store.",
	}, []string{"method", "table"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_request_duration_seconds",
		Help:    "Store request duration including retries.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "table"})
)

func observeRequest(method, table, outcome string, elapsed time.Duration) {
	requestsTotal.WithLabelValues(method, table, outcome).Inc()
	requestDuration.WithLabelValues(method, table).Observe(elapsed.Seconds())
}

func observeRetry(method, table string) {
	retriesTotal.WithLabelValues(method, table).Inc()
}
