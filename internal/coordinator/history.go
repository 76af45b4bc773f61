package coordinator

import (
	"sort"
	"sync"
)

// Record is a committed transaction's footprint in history. It deliberately
// does not retain the written values — those live in the data nodes after
// the write phase completes.
type Record struct {
	WrittenKeys map[string]struct{}
	TID         int64
	TSCommit    int64
}

// History is the coordinator's ordered, prunable record of committed
// transactions, used by backward validation to find write/read conflicts.
type History struct {
	mu      sync.Mutex
	records []Record // ascending by TSCommit; Append is always called with a larger TSCommit than the last.
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{}
}

// Append records a newly committed transaction. Callers must hold whatever
// external lock serializes validation (Coordinator does), since Append
// assumes TSCommit values arrive in increasing order.
func (h *History) Append(rec Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
}

// ConflictsAfter reports whether any record committed after tsStart wrote a
// key also present in readSet — the backward-validation conflict check.
func (h *History) ConflictsAfter(tsStart int64, readSet map[string]struct{}) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := sort.Search(len(h.records), func(i int) bool { return h.records[i].TSCommit > tsStart })
	for _, rec := range h.records[idx:] {
		for key := range readSet {
			if _, written := rec.WrittenKeys[key]; written {
				return true
			}
		}
	}
	return false
}

// Prune drops every record with TSCommit <= tsLow. tsLow == 0 drops
// nothing; Coordinator passes math.MaxInt64 when no transaction is live,
// which drops every record.
func (h *History) Prune(tsLow int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := sort.Search(len(h.records), func(i int) bool { return h.records[i].TSCommit > tsLow })
	if idx == 0 {
		return
	}
	remaining := make([]Record, len(h.records)-idx)
	copy(remaining, h.records[idx:])
	h.records = remaining
}

// Len returns the number of retained records, for the history-size gauge.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}
