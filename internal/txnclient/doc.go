// Package txnclient implements the per-transaction state machine that
// drives both concurrency-control disciplines against a coordinator and a
// fixed set of data nodes. A Handle buffers reads and writes locally and
// only talks to the network at the points the chosen discipline requires:
// OCC defers everything to commit-time validation, S2PL acquires locks
// eagerly but still buffers writes so commit needs no rollback path.
package txnclient
