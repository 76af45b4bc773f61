// Package storage implements the per-shard key-value map that sits under
// txkv's data node, with one in-memory implementation striped across
// buckets so puts on disjoint keys don't serialize against each other.
//
// # Overview
//
// Keys never expire and are never deleted by the core: a value is created
// on first write and updated in place. Get on a missing key returns (nil,
// false) rather than an error — MISSING is a defined result, not a
// failure.
//
// # Concurrency
//
// BucketStore hashes each key (FNV-1a) to one of a fixed number of buckets,
// each guarded by its own sync.RWMutex. Two puts on keys that land in
// different buckets proceed without blocking each other; puts on the same
// key still serialize to whatever order the bucket's mutex picks — the
// node never needs to guarantee more than that.
package storage
