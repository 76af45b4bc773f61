package cluster

import "hash/fnv"

// ShardFor computes the deterministic shard index for key given a fixed
// node count n: shard(key) = stable_hash(key) mod n. Both the
// coordinator's router and the client's own routing logic call this so a
// client and the coordinator always agree on which node owns a key without
// the client needing to ask.
func ShardFor(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32()) % n
}
