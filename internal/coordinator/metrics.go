package coordinator

import "github.com/prometheus/client_golang/prometheus"

// coordinatorMetrics are the system-wide throughput/abort-rate numbers
// that make the two concurrency-control disciplines comparable.
type coordinatorMetrics struct {
	begins         prometheus.Counter
	commits        *prometheus.CounterVec
	aborts         *prometheus.CounterVec
	applyFailures  prometheus.Counter
	validationTime prometheus.Histogram
}

func newCoordinatorMetrics(reg prometheus.Registerer) *coordinatorMetrics {
	m := &coordinatorMetrics{
		begins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "txkv_coordinator_begins_total",
			Help: "Total BEGIN calls.",
		}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "txkv_coordinator_commits_total",
			Help: "Total committed transactions, by discipline.",
		}, []string{"discipline"}),
		aborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "txkv_coordinator_aborts_total",
			Help: "Total aborted transactions, by discipline and reason.",
		}, []string{"discipline", "reason"}),
		applyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "txkv_coordinator_apply_failures_total",
			Help: "Total write-phase PUTs that failed after retry (APPLY_FAILED).",
		}),
		validationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "txkv_coordinator_validation_seconds",
			Help:    "Time spent inside the backward-validation critical section.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.begins, m.commits, m.aborts, m.applyFailures, m.validationTime)
	}
	return m
}
