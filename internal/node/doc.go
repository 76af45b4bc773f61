// Package node implements a txkv data node: the owner of one shard of the
// key space, serving both concurrency-control disciplines over the same
// underlying storage.Store.
//
// # Two access paths, one store
//
// The OCC path (Get/Put) is lockless: it never consults the lock table and
// is safe to call from any number of concurrent transactions. The S2PL path
// (GetLocked/PutLocked) requires the caller to already hold a compatible
// lock, acquired through Acquire; operations attempted without one are
// rejected so a buggy caller fails fast instead of corrupting isolation.
//
// # Deadlock policy
//
// The lock table uses wound-wait, not wait-die: when a request conflicts
// with an existing holder, holders with a larger TID than the requester
// (younger transactions) are aborted outright and their locks released; if
// any remaining holder has a smaller TID (older), the requester waits in
// FIFO order up to its timeout. This
// guarantees deadlock freedom because a cycle would require some pair of
// transactions to each be older than the other, which the integer TID order
// makes impossible.
package node
