package node

import "github.com/prometheus/client_golang/prometheus"

// nodeMetrics are the data node's contribution to the system-wide
// throughput/abort-rate/deadlock-incidence numbers that make OCC and S2PL
// comparable under load.
type nodeMetrics struct {
	gets           prometheus.Counter
	puts           prometheus.Counter
	lockWaits      prometheus.Counter
	lockTimeouts   prometheus.Counter
	deadlockAborts prometheus.Counter
}

func newNodeMetrics(reg prometheus.Registerer) *nodeMetrics {
	m := &nodeMetrics{
		gets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "txkv_node_gets_total",
			Help: "Total GET operations served by this node.",
		}),
		puts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "txkv_node_puts_total",
			Help: "Total PUT operations served by this node.",
		}),
		lockWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "txkv_node_lock_waits_total",
			Help: "Total LOCK_ACQUIRE calls that had to queue behind a conflicting holder.",
		}),
		lockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "txkv_node_lock_timeouts_total",
			Help: "Total LOCK_ACQUIRE calls that expired waiting for a grant.",
		}),
		deadlockAborts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "txkv_node_deadlock_aborts_total",
			Help: "Total LOCK_ACQUIRE calls answered DEADLOCK_ABORT because the requester had been wounded.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.gets, m.puts, m.lockWaits, m.lockTimeouts, m.deadlockAborts)
	}
	return m
}
