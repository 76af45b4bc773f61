package node

import (
	"context"
	"sync"
	"time"

	"github.com/dreamware/txkv/internal/cluster"
)

type waiter struct {
	result chan cluster.LockResult
	tid    int64
	mode   cluster.LockMode
}

type lockEntry struct {
	holders map[int64]cluster.LockMode
	waiters []*waiter
}

// LockTable arbitrates SHARED/EXCLUSIVE access to keys under S2PL. One
// exclusive holder or any number of shared holders may hold a key at a
// time; a sole shared holder may upgrade to exclusive in place. Conflicts
// are resolved by wound-wait, keyed on the caller-supplied TID.
type LockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	aborted map[int64]bool
}

// NewLockTable returns an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{
		entries: make(map[string]*lockEntry),
		aborted: make(map[int64]bool),
	}
}

// Acquire attempts to take key in mode on behalf of tid, blocking until
// GRANTED, TIMEOUT, or DEADLOCK_ABORT. queued reports whether the request
// had to enqueue behind a conflicting holder rather than being granted
// immediately.
func (lt *LockTable) Acquire(ctx context.Context, tid int64, key string, mode cluster.LockMode, timeout time.Duration) (result cluster.LockResult, queued bool) {
	lt.mu.Lock()

	if lt.aborted[tid] {
		lt.mu.Unlock()
		return cluster.LockDeadlockAbort, false
	}

	entry := lt.entries[key]
	if entry == nil {
		entry = &lockEntry{holders: make(map[int64]cluster.LockMode)}
		lt.entries[key] = entry
	}

	if tryGrantLocked(entry, tid, mode) {
		lt.mu.Unlock()
		return cluster.LockGranted, false
	}

	// Conflict: wound any holder younger than the requester, since an
	// older transaction has priority. Holders older than the requester
	// remain as blockers the requester must wait for.
	var blocked bool
	for holderTID := range entry.holders {
		if holderTID == tid {
			continue
		}
		if holderTID > tid {
			lt.woundLocked(holderTID)
		} else {
			blocked = true
		}
	}

	if !blocked && tryGrantLocked(entry, tid, mode) {
		lt.mu.Unlock()
		return cluster.LockGranted, false
	}

	w := &waiter{tid: tid, mode: mode, result: make(chan cluster.LockResult, 1)}
	entry.waiters = append(entry.waiters, w)
	lt.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-w.result:
		return res, true
	case <-timer.C:
		return lt.resolveTimeoutOrCancel(entry, w), true
	case <-ctx.Done():
		return lt.resolveTimeoutOrCancel(entry, w), true
	}
}

// resolveTimeoutOrCancel handles the race between a waiter being granted
// and its timeout/context firing at nearly the same instant: it re-checks
// the result channel under the lock before declaring a timeout.
func (lt *LockTable) resolveTimeoutOrCancel(entry *lockEntry, w *waiter) cluster.LockResult {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	select {
	case res := <-w.result:
		return res
	default:
	}

	for i, candidate := range entry.waiters {
		if candidate == w {
			entry.waiters = append(entry.waiters[:i], entry.waiters[i+1:]...)
			break
		}
	}
	return cluster.LockTimeout
}

// tryGrantLocked grants key in mode to tid if compatible with its current
// holders, mutating entry.holders on success. Must be called with lt.mu
// held.
func tryGrantLocked(entry *lockEntry, tid int64, mode cluster.LockMode) bool {
	others := false
	allOthersShared := true
	for holderTID, holderMode := range entry.holders {
		if holderTID == tid {
			continue
		}
		others = true
		if holderMode == cluster.LockExclusive {
			allOthersShared = false
		}
	}

	if !others {
		entry.holders[tid] = mode
		return true
	}

	if mode == cluster.LockShared && allOthersShared {
		entry.holders[tid] = cluster.LockShared
		return true
	}

	return false
}

// woundLocked aborts tid: every lock it holds is released and it is marked
// so that any in-flight or future call rejects with DEADLOCK_ABORT until
// ReleaseAll clears it. Must be called with lt.mu held.
func (lt *LockTable) woundLocked(tid int64) {
	lt.aborted[tid] = true
	lt.releaseAllLocked(tid)
}

// ReleaseAll releases every lock tid holds and drops any of its queued
// waiter requests, promoting newly-compatible waiters in arrival order.
func (lt *LockTable) ReleaseAll(tid int64) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	lt.releaseAllLocked(tid)
	delete(lt.aborted, tid)
}

func (lt *LockTable) releaseAllLocked(tid int64) {
	for _, entry := range lt.entries {
		if _, held := entry.holders[tid]; held {
			delete(entry.holders, tid)
			promoteWaitersLocked(entry)
		}

		for i := 0; i < len(entry.waiters); {
			if entry.waiters[i].tid == tid {
				entry.waiters[i].result <- cluster.LockDeadlockAbort
				entry.waiters = append(entry.waiters[:i], entry.waiters[i+1:]...)
				continue
			}
			i++
		}
	}
}

// promoteWaitersLocked grants queued waiters in FIFO order as far as
// compatibility allows, stopping at the first waiter that still conflicts
// so later, compatible waiters don't jump ahead of it.
func promoteWaitersLocked(entry *lockEntry) {
	remaining := entry.waiters[:0]
	stopped := false
	for _, w := range entry.waiters {
		if !stopped && tryGrantLocked(entry, w.tid, w.mode) {
			w.result <- cluster.LockGranted
			continue
		}
		stopped = true
		remaining = append(remaining, w)
	}
	entry.waiters = remaining
}

// IsAborted reports whether tid has been wounded and not yet released.
func (lt *LockTable) IsAborted(tid int64) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.aborted[tid]
}

// HoldsCompatible reports whether tid currently holds a lock on key
// sufficient to perform an operation requiring mode (SHARED covers reads;
// only EXCLUSIVE covers writes).
func (lt *LockTable) HoldsCompatible(tid int64, key string, mode cluster.LockMode) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	entry := lt.entries[key]
	if entry == nil {
		return false
	}
	held, ok := entry.holders[tid]
	if !ok {
		return false
	}
	if mode == cluster.LockShared {
		return true
	}
	return held == cluster.LockExclusive
}

// Size returns the number of keys with at least one active holder or
// queued waiter, for the node's lock-table-size gauge.
func (lt *LockTable) Size() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	n := 0
	for _, entry := range lt.entries {
		if len(entry.holders) > 0 || len(entry.waiters) > 0 {
			n++
		}
	}
	return n
}
