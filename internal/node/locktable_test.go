package node

import (
	"context"
	"testing"
	"time"

	"github.com/dreamware/txkv/internal/cluster"
)

func TestLockTableFreeKeyGrantsImmediately(t *testing.T) {
	lt := NewLockTable()
	res, queued := lt.Acquire(context.Background(), 1, "x", cluster.LockExclusive, time.Second)
	if res != cluster.LockGranted {
		t.Fatalf("expected GRANTED, got %s", res)
	}
	if queued {
		t.Error("expected an uncontended acquire not to be reported as queued")
	}
}

func TestLockTableSharedSharedCompatible(t *testing.T) {
	lt := NewLockTable()
	if res, _ := lt.Acquire(context.Background(), 1, "x", cluster.LockShared, time.Second); res != cluster.LockGranted {
		t.Fatalf("tid1 shared: expected GRANTED, got %s", res)
	}
	if res, _ := lt.Acquire(context.Background(), 2, "x", cluster.LockShared, time.Second); res != cluster.LockGranted {
		t.Fatalf("tid2 shared: expected GRANTED, got %s", res)
	}
}

func TestLockTableSoleSharedHolderCanUpgrade(t *testing.T) {
	lt := NewLockTable()
	lt.Acquire(context.Background(), 1, "x", cluster.LockShared, time.Second)
	res, _ := lt.Acquire(context.Background(), 1, "x", cluster.LockExclusive, time.Second)
	if res != cluster.LockGranted {
		t.Fatalf("expected upgrade to GRANTED, got %s", res)
	}
	if !lt.HoldsCompatible(1, "x", cluster.LockExclusive) {
		t.Error("expected tid1 to hold exclusive after upgrade")
	}
}

func TestLockTableOlderRequesterWoundsYoungerHolder(t *testing.T) {
	lt := NewLockTable()
	// tid 5 (younger) holds exclusive.
	if res, _ := lt.Acquire(context.Background(), 5, "x", cluster.LockExclusive, time.Second); res != cluster.LockGranted {
		t.Fatalf("setup: expected GRANTED, got %s", res)
	}
	// tid 2 (older) requests exclusive: should wound tid 5 and proceed.
	res, _ := lt.Acquire(context.Background(), 2, "x", cluster.LockExclusive, time.Second)
	if res != cluster.LockGranted {
		t.Fatalf("expected older requester to wound and proceed, got %s", res)
	}
	if !lt.IsAborted(5) {
		t.Error("expected tid5 to be marked aborted (wounded)")
	}
	if lt.HoldsCompatible(5, "x", cluster.LockExclusive) {
		t.Error("expected tid5's lock to be released after wounding")
	}
}

func TestLockTableYoungerRequesterWaitsForOlderHolder(t *testing.T) {
	lt := NewLockTable()
	// tid 2 (older) holds exclusive.
	lt.Acquire(context.Background(), 2, "x", cluster.LockExclusive, time.Second)

	done := make(chan cluster.LockResult, 1)
	queuedCh := make(chan bool, 1)
	go func() {
		// tid 5 (younger) must wait, not wound.
		res, queued := lt.Acquire(context.Background(), 5, "x", cluster.LockExclusive, 200*time.Millisecond)
		done <- res
		queuedCh <- queued
	}()

	time.Sleep(20 * time.Millisecond)
	lt.ReleaseAll(2)

	res := <-done
	if res != cluster.LockGranted {
		t.Fatalf("expected younger requester to be granted after release, got %s", res)
	}
	if !<-queuedCh {
		t.Error("expected the blocked requester to be reported as queued")
	}
}

func TestLockTableTimeoutRemovesWaiter(t *testing.T) {
	lt := NewLockTable()
	lt.Acquire(context.Background(), 2, "x", cluster.LockExclusive, time.Second)

	res, queued := lt.Acquire(context.Background(), 5, "x", cluster.LockExclusive, 30*time.Millisecond)
	if res != cluster.LockTimeout {
		t.Fatalf("expected TIMEOUT, got %s", res)
	}
	if !queued {
		t.Error("expected a request that timed out waiting to be reported as queued")
	}

	// Releasing the original holder afterward must not panic or deliver a
	// stale result to the (already-timed-out) waiter.
	lt.ReleaseAll(2)
}

func TestLockTableReleaseAllPromotesWaitersInOrder(t *testing.T) {
	lt := NewLockTable()
	lt.Acquire(context.Background(), 1, "x", cluster.LockExclusive, time.Second)

	firstDone := make(chan cluster.LockResult, 1)
	secondDone := make(chan cluster.LockResult, 1)
	go func() {
		res, _ := lt.Acquire(context.Background(), 2, "x", cluster.LockShared, time.Second)
		firstDone <- res
	}()
	time.Sleep(10 * time.Millisecond)
	go func() {
		res, _ := lt.Acquire(context.Background(), 3, "x", cluster.LockShared, time.Second)
		secondDone <- res
	}()
	time.Sleep(10 * time.Millisecond)

	lt.ReleaseAll(1)

	if res := <-firstDone; res != cluster.LockGranted {
		t.Errorf("expected first waiter GRANTED, got %s", res)
	}
	if res := <-secondDone; res != cluster.LockGranted {
		t.Errorf("expected second waiter GRANTED, got %s", res)
	}
}

func TestLockTableReleaseAllWakesWaiterWithGrant(t *testing.T) {
	lt := NewLockTable()
	lt.Acquire(context.Background(), 1, "x", cluster.LockExclusive, time.Second)

	waiterDone := make(chan cluster.LockResult, 1)
	go func() {
		res, _ := lt.Acquire(context.Background(), 2, "x", cluster.LockExclusive, time.Second)
		waiterDone <- res
	}()
	time.Sleep(10 * time.Millisecond)

	// tid1 aborts here, which should wake tid2 as a grant, not a deadlock
	// abort.
	lt.ReleaseAll(1)
	res := <-waiterDone
	if res != cluster.LockGranted {
		t.Fatalf("expected waiter to be granted after holder released, got %s", res)
	}
}

func TestLockTableCrossKeyDeadlockResolvesExactlyOneVictim(t *testing.T) {
	// A (tid 10) holds x, B (tid 20) holds y. A requests y, B requests x:
	// a classic deadlock that wound-wait must resolve without either side
	// blocking forever.
	lt := NewLockTable()
	lt.Acquire(context.Background(), 10, "x", cluster.LockExclusive, time.Second)
	lt.Acquire(context.Background(), 20, "y", cluster.LockExclusive, time.Second)

	aDone := make(chan cluster.LockResult, 1)
	bDone := make(chan cluster.LockResult, 1)
	go func() {
		res, _ := lt.Acquire(context.Background(), 10, "y", cluster.LockExclusive, time.Second)
		aDone <- res
	}()
	go func() {
		res, _ := lt.Acquire(context.Background(), 20, "x", cluster.LockExclusive, time.Second)
		bDone <- res
	}()

	aRes := <-aDone
	bRes := <-bDone

	// tid 10 is older than tid 20, so tid 10's request wounds tid 20
	// wherever they conflict: A must succeed, B must be wounded.
	if aRes != cluster.LockGranted {
		t.Errorf("expected older transaction to be granted, got %s", aRes)
	}
	if bRes != cluster.LockDeadlockAbort && bRes != cluster.LockGranted {
		t.Errorf("unexpected result for younger transaction: %s", bRes)
	}
	if !lt.IsAborted(20) {
		t.Error("expected younger transaction (tid 20) to be wounded")
	}
}

func TestLockTableSizeReflectsActiveKeys(t *testing.T) {
	lt := NewLockTable()
	if lt.Size() != 0 {
		t.Fatalf("expected empty table, got size %d", lt.Size())
	}
	lt.Acquire(context.Background(), 1, "x", cluster.LockExclusive, time.Second)
	lt.Acquire(context.Background(), 1, "y", cluster.LockExclusive, time.Second)
	if lt.Size() != 2 {
		t.Fatalf("expected size 2, got %d", lt.Size())
	}
	lt.ReleaseAll(1)
}
