package repository

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ers",
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Reimbursement store operations by outcome.",
	}, []string{"op", "result"})

	storeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ers",
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Reimbursement store operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
)

// observe is deferred with a pointer to the named error result
func observe(op string, start time.Time, err *error) {
	result := "ok"
	if err != nil && *err != nil {
		result = "error"
	}
	storeOperations.WithLabelValues(op, result).Inc()
	storeDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
