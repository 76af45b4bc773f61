package coordinator

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// nodeHealth tracks one node's liveness as observed by the probe loop.
type nodeHealth struct {
	lastCheck time.Time
	healthy   bool
}

// Liveness periodically probes every node's /health endpoint and keeps the
// most recent observed status, purely for logging state transitions and
// for IsHealthy queries. It never triggers shard reassignment:
// there is no replication or rebalancing, so an unreachable node just means
// requests routed to it will fail until it comes back.
type Liveness struct {
	mu       sync.RWMutex
	status   map[string]*nodeHealth
	client   *http.Client
	interval time.Duration
	log      *zap.SugaredLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLiveness creates a prober that checks each node every interval.
func NewLiveness(interval time.Duration, log *zap.SugaredLogger) *Liveness {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Liveness{
		status:   make(map[string]*nodeHealth),
		client:   &http.Client{Timeout: 2 * time.Second},
		interval: interval,
		log:      log,
	}
}

// Start begins probing every node in nodeAddrs on a ticker until Stop is
// called or ctx is cancelled.
func (l *Liveness) Start(ctx context.Context, nodeAddrs []string) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		l.probeAll(ctx, nodeAddrs)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.probeAll(ctx, nodeAddrs)
			}
		}
	}()
}

// Stop halts the probe loop and waits for it to exit.
func (l *Liveness) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

func (l *Liveness) probeAll(ctx context.Context, nodeAddrs []string) {
	for _, addr := range nodeAddrs {
		healthy := l.probeOne(ctx, addr)
		l.mu.Lock()
		prev := l.status[addr]
		l.status[addr] = &nodeHealth{lastCheck: time.Now(), healthy: healthy}
		l.mu.Unlock()

		if prev != nil && prev.healthy && !healthy {
			l.log.Warnw("node became unreachable", "addr", addr)
		} else if prev != nil && !prev.healthy && healthy {
			l.log.Infow("node recovered", "addr", addr)
		}
	}
}

func (l *Liveness) probeOne(ctx context.Context, addr string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/health", http.NoBody)
	if err != nil {
		return false
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}

// IsHealthy reports the most recent observed status for addr. Unknown
// nodes (never probed) report healthy, so a coordinator that hasn't
// started the liveness loop yet doesn't spuriously block routing.
func (l *Liveness) IsHealthy(addr string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.status[addr]
	if !ok {
		return true
	}
	return h.healthy
}
