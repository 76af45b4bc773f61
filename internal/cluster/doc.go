// Package cluster carries the wire types and HTTP plumbing shared by every
// component of txkv — data nodes, the coordinator, and the transaction
// client. See doc comments on individual types for the wire contract of each
// RPC.
//
// # Overview
//
// txkv's core RPC surface is request/response JSON over plain HTTP; framing
// itself is not dictated by any RPC operation's own contract. Every request
// and response carries a RequestID, which each handler echoes back in its
// response; handlers do not log it, and each coordinator → node PUT carries
// a fresh RequestID of its own rather than the commit's. Every node-facing
// request that runs under S2PL also carries the issuing TID.
//
// # RPC inventory
//
// Node-facing:
//
//	GET(key)                              -> {value, found}
//	PUT(key, value)                       -> {ok}
//	LOCK_ACQUIRE(tid, key, mode, timeout)  -> {result}
//	LOCK_RELEASE_ALL(tid)                 -> {ok}
//
// Coordinator-facing:
//
//	BEGIN()                                      -> {tid}
//	VALIDATE_COMMIT(tid, read_keys, writes)      -> {status, ts_commit, reason}
//	ABORT(tid)                                    -> {ok}
//
// # Concurrency
//
// PostJSON and GetJSON are safe for concurrent use; they share one
// connection-pooling http.Client.
package cluster
