package coordinator

import "github.com/dreamware/txkv/internal/cluster"

// NodeRouter maps keys to the data node that owns them. The node count N is
// fixed at startup and shard(key) = stable_hash(key) mod N; there is no
// rebalancing or replication, so the router is just the ordered
// node-address list plus the hash.
type NodeRouter struct {
	nodes []string
}

// NewNodeRouter builds a router over the fixed, ordered list of node
// addresses supplied at coordinator startup.
func NewNodeRouter(nodeAddrs []string) *NodeRouter {
	nodes := make([]string, len(nodeAddrs))
	copy(nodes, nodeAddrs)
	return &NodeRouter{nodes: nodes}
}

// ShardFor returns the shard index that owns key, via FNV-1a.
func (r *NodeRouter) ShardFor(key string) int {
	return cluster.ShardFor(key, len(r.nodes))
}

// NodeAddr returns the address of the node owning shard id.
func (r *NodeRouter) NodeAddr(shardID int) string {
	return r.nodes[shardID]
}

// NodeForKey is ShardFor and NodeAddr composed, for the common case of
// routing a single key straight to its owning node.
func (r *NodeRouter) NodeForKey(key string) string {
	return r.NodeAddr(r.ShardFor(key))
}

// NumNodes returns the fixed node count N.
func (r *NodeRouter) NumNodes() int {
	return len(r.nodes)
}

// Nodes returns a copy of the ordered node address list.
func (r *NodeRouter) Nodes() []string {
	out := make([]string, len(r.nodes))
	copy(out, r.nodes)
	return out
}
