// Package coordinator implements txkv's single-process control plane: it
// issues timestamps, maintains the bounded commit history, runs backward
// validation for OCC transactions, and drives the parallel write-apply
// phase across data nodes.
//
// # Architecture
//
// The coordinator is intentionally centralized: the commit-timestamp
// counter and the validation critical section are a known, accepted
// bottleneck, not an oversight. Sharding the coordinator would require a
// distributed commit-timestamp scheme, which is out of scope here.
//
//	┌───────────────────────────────────────┐
//	│              Coordinator               │
//	├───────────────────────────────────────┤
//	│  Clock      — single strictly-         │
//	│               increasing counter       │
//	│  History    — committed records,       │
//	│               ts_commit-ordered,       │
//	│               prunable                 │
//	│  NodeRouter — shard(key) -> node addr   │
//	│  Liveness   — read-only health probe   │
//	└───────────────────────────────────────┘
//
// # State machine
//
//	NEW --begin--> ACTIVE --validate--> VALIDATING
//	VALIDATING --ok--> WRITING --done--> COMMITTED
//	VALIDATING --conflict--> ABORTED
//	ACTIVE --abort--> ABORTED
package coordinator
