package coordinator

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/txkv/internal/cluster"
)

// maxApplyRetries bounds the write-phase retry policy: a persistently
// failing PUT surfaces as APPLY_FAILED rather than retrying forever.
const maxApplyRetries = 3

// NodeClient is the coordinator's view of a data node: just enough to
// dispatch the write phase. A real implementation posts to the node's PUT
// RPC; tests can supply a fake that fails on demand.
type NodeClient interface {
	Put(ctx context.Context, addr, key string, value []byte) error
}

// httpNodeClient is the production NodeClient, talking PUT over the same
// JSON/HTTP RPC framing as the rest of the system.
type httpNodeClient struct{}

func (httpNodeClient) Put(ctx context.Context, addr, key string, value []byte) error {
	req := cluster.PutRequest{RequestID: cluster.NewRequestID(), Key: key, Value: value}
	var resp cluster.PutResponse
	return cluster.PostJSON(ctx, addr+"/v1/put", req, &resp)
}

// HTTPNodeClient returns the production NodeClient used by cmd/coordinator.
func HTTPNodeClient() NodeClient { return httpNodeClient{} }

// Coordinator is the single process that issues TIDs, validates OCC
// transactions against history, and drives the write-apply phase. Its
// validation critical section and counter are deliberately centralized.
type Coordinator struct {
	mu       sync.Mutex // validation critical section; also guards liveTxns
	clock    Clock
	history  *History
	liveTxns map[int64]int64 // tid -> ts_start (== tid), for ts_low pruning

	router     *NodeRouter
	nodeClient NodeClient
	metrics    *coordinatorMetrics
	log        *zap.SugaredLogger
}

// New creates a coordinator routing writes through router via nodeClient.
func New(router *NodeRouter, nodeClient NodeClient, reg prometheus.Registerer, log *zap.SugaredLogger) *Coordinator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	history := NewHistory()
	if reg != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "txkv_coordinator_history_size",
			Help: "Number of commit records currently retained for backward validation.",
		}, func() float64 { return float64(history.Len()) }))
	}
	return &Coordinator{
		history:    history,
		liveTxns:   make(map[int64]int64),
		router:     router,
		nodeClient: nodeClient,
		metrics:    newCoordinatorMetrics(reg),
		log:        log,
	}
}

// Begin issues a new TID, which doubles as the transaction's start
// timestamp.
func (c *Coordinator) Begin() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	tid := c.clock.Next()
	c.liveTxns[tid] = tid
	c.metrics.begins.Inc()
	return tid
}

// ValidateAndCommit runs backward validation for an OCC transaction and, if
// it survives, assigns a commit timestamp and dispatches the write phase,
// all inside the validation critical section: assign, dispatch, and append
// happen under the same lock, trading validation throughput for a much
// simpler correctness argument.
func (c *Coordinator) ValidateAndCommit(ctx context.Context, tid int64, readKeys []string, writes map[string][]byte, discipline string) (status cluster.CommitStatus, tsCommit int64, reason string) {
	if discipline == "" {
		discipline = "occ"
	}
	start := time.Now()
	c.mu.Lock()
	defer func() {
		c.metrics.validationTime.Observe(time.Since(start).Seconds())
		c.mu.Unlock()
	}()

	readSet := make(map[string]struct{}, len(readKeys))
	for _, k := range readKeys {
		readSet[k] = struct{}{}
	}

	if c.history.ConflictsAfter(tid, readSet) {
		delete(c.liveTxns, tid)
		c.metrics.aborts.WithLabelValues(discipline, cluster.ReasonStaleRead).Inc()
		c.pruneLocked()
		return cluster.StatusAborted, 0, cluster.ReasonStaleRead
	}

	tsCommit = c.clock.Next()

	writtenKeys := make(map[string]struct{}, len(writes))
	for k := range writes {
		writtenKeys[k] = struct{}{}
	}

	applyErr := c.dispatchWrites(ctx, writes)

	// Once ts_commit is assigned the transaction is logically committed; a
	// write-phase failure is surfaced to the caller but does not unwind the
	// history entry.
	c.history.Append(Record{TID: tid, TSCommit: tsCommit, WrittenKeys: writtenKeys})
	delete(c.liveTxns, tid)
	c.pruneLocked()

	if applyErr != nil {
		c.metrics.applyFailures.Inc()
		c.log.Errorw("write phase failed after retries", "tid", tid, "error", applyErr)
		return cluster.StatusAborted, tsCommit, cluster.ReasonApplyFailed
	}

	c.metrics.commits.WithLabelValues(discipline).Inc()
	return cluster.StatusCommitted, tsCommit, ""
}

// Abort discards tid's in-flight state. Idempotent: aborting a tid that
// was never begun or already terminated is a no-op.
func (c *Coordinator) Abort(tid int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.liveTxns, tid)
	c.metrics.aborts.WithLabelValues("client", cluster.ReasonClientAbort).Inc()
	c.pruneLocked()
}

// pruneLocked removes history records no live transaction could still
// legally observe. Must be called with c.mu held.
func (c *Coordinator) pruneLocked() {
	if len(c.liveTxns) == 0 {
		c.history.Prune(math.MaxInt64)
		return
	}
	tsLow := int64(math.MaxInt64)
	for _, ts := range c.liveTxns {
		if ts < tsLow {
			tsLow = ts
		}
	}
	c.history.Prune(tsLow)
}

// dispatchWrites issues one PUT per (key, value) pair, grouped by owning
// shard and fanned out in parallel across shards via errgroup.
func (c *Coordinator) dispatchWrites(ctx context.Context, writes map[string][]byte) error {
	if len(writes) == 0 {
		return nil
	}

	byShard := make(map[int][]cluster.KV)
	for key, value := range writes {
		shardID := c.router.ShardFor(key)
		byShard[shardID] = append(byShard[shardID], cluster.KV{Key: key, Value: value})
	}

	g, gctx := errgroup.WithContext(ctx)
	for shardID, kvs := range byShard {
		shardID, kvs := shardID, kvs
		g.Go(func() error {
			addr := c.router.NodeAddr(shardID)
			for _, kv := range kvs {
				if err := c.putWithRetry(gctx, addr, kv.Key, kv.Value); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Coordinator) putWithRetry(ctx context.Context, addr, key string, value []byte) error {
	var err error
	for attempt := 0; attempt <= maxApplyRetries; attempt++ {
		if err = c.nodeClient.Put(ctx, addr, key, value); err == nil {
			return nil
		}
		c.log.Warnw("write-phase PUT failed, retrying", "addr", addr, "key", key, "attempt", attempt, "error", err)
	}
	return err
}

// HistorySize returns the number of retained commit records, the same
// value the txkv_coordinator_history_size gauge reports.
func (c *Coordinator) HistorySize() int {
	return c.history.Len()
}

// Router exposes the coordinator's node router.
func (c *Coordinator) Router() *NodeRouter {
	return c.router
}
