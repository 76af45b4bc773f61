package node

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dreamware/txkv/internal/cluster"
	"github.com/dreamware/txkv/internal/storage"
)

// DataNode owns one shard of the key space and serves both the lockless
// OCC path and the lock-table-mediated S2PL path over the same
// storage.Store.
type DataNode struct {
	store   storage.Store
	locks   *LockTable
	metrics *nodeMetrics
	log     *zap.SugaredLogger
}

// NewDataNode creates a node over store, registering its metrics with reg
// (nil is accepted and simply skips registration, which test code uses to
// avoid duplicate-registration panics across table-driven cases).
func NewDataNode(store storage.Store, reg prometheus.Registerer, log *zap.SugaredLogger) *DataNode {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	locks := NewLockTable()
	metrics := newNodeMetrics(reg)
	if reg != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "txkv_node_lock_table_size",
			Help: "Number of keys with an active holder or queued waiter.",
		}, func() float64 { return float64(locks.Size()) }))
	}
	return &DataNode{store: store, locks: locks, metrics: metrics, log: log}
}

// Get is the OCC-path read: lockless, always permitted.
func (n *DataNode) Get(key string) ([]byte, bool) {
	n.metrics.gets.Inc()
	return n.store.Get(key)
}

// Put is the OCC-path write: lockless, always permitted.
func (n *DataNode) Put(key string, value []byte) {
	n.metrics.puts.Inc()
	n.store.Put(key, value)
}

// GetLocked is the S2PL-path read. rejected is true if tid does not
// currently hold a compatible lock on key: every S2PL get/put must be
// preceded by a successful acquire, otherwise the node rejects it.
func (n *DataNode) GetLocked(tid int64, key string) (value []byte, found bool, rejected bool) {
	if n.locks.IsAborted(tid) || !n.locks.HoldsCompatible(tid, key, cluster.LockShared) {
		return nil, false, true
	}
	n.metrics.gets.Inc()
	v, ok := n.store.Get(key)
	return v, ok, false
}

// PutLocked is the S2PL-path write; see GetLocked for the rejection rule.
func (n *DataNode) PutLocked(tid int64, key string, value []byte) (rejected bool) {
	if n.locks.IsAborted(tid) || !n.locks.HoldsCompatible(tid, key, cluster.LockExclusive) {
		return true
	}
	n.metrics.puts.Inc()
	n.store.Put(key, value)
	return false
}

// Acquire attempts to take key in mode on behalf of tid, per the wound-wait
// policy documented on LockTable.
func (n *DataNode) Acquire(ctx context.Context, tid int64, key string, mode cluster.LockMode, timeout time.Duration) cluster.LockResult {
	result, queued := n.locks.Acquire(ctx, tid, key, mode, timeout)
	if queued {
		n.metrics.lockWaits.Inc()
	}
	switch result {
	case cluster.LockTimeout:
		n.metrics.lockTimeouts.Inc()
		n.log.Warnw("lock acquire timed out", "tid", tid, "key", key, "mode", mode)
	case cluster.LockDeadlockAbort:
		n.metrics.deadlockAborts.Inc()
		n.log.Warnw("lock acquire rejected: transaction wounded", "tid", tid, "key", key, "mode", mode)
	}
	return result
}

// ReleaseAll releases every lock tid holds.
func (n *DataNode) ReleaseAll(tid int64) {
	n.locks.ReleaseAll(tid)
}

// Stats returns the node's current storage occupancy, for the /info
// admin surface.
func (n *DataNode) Stats() storage.StoreStats {
	return n.store.Stats()
}
