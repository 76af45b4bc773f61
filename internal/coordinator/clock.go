package coordinator

import "sync/atomic"

// Clock is the coordinator's single source of TIDs and commit timestamps: a
// single strictly-increasing counter shared between begin and
// commit-timestamp assignment, so every call returns a value strictly
// greater than all previously returned values, across both operations.
type Clock struct {
	counter int64
}

// Next returns the next value in the sequence. Safe for concurrent use;
// under contention the increments still serialize to a total order.
func (c *Clock) Next() int64 {
	return atomic.AddInt64(&c.counter, 1)
}
