package coordinator

import "testing"

func TestNodeRouterShardForIsDeterministic(t *testing.T) {
	r := NewNodeRouter([]string{"a:1", "b:2", "c:3"})

	first := r.ShardFor("user:42")
	for i := 0; i < 10; i++ {
		if got := r.ShardFor("user:42"); got != first {
			t.Fatalf("shard assignment changed across calls: %d vs %d", got, first)
		}
	}
}

func TestNodeRouterShardForStaysInRange(t *testing.T) {
	r := NewNodeRouter([]string{"a:1", "b:2", "c:3"})

	for _, key := range []string{"x", "y", "z", "order:1", "order:2", "cart:99"} {
		shard := r.ShardFor(key)
		if shard < 0 || shard >= r.NumNodes() {
			t.Fatalf("shard %d for key %q out of range [0,%d)", shard, key, r.NumNodes())
		}
	}
}

func TestNodeRouterNodeForKeyRoutesToOwningAddr(t *testing.T) {
	nodes := []string{"a:1", "b:2", "c:3"}
	r := NewNodeRouter(nodes)

	addr := r.NodeForKey("some-key")
	found := false
	for _, n := range nodes {
		if n == addr {
			found = true
		}
	}
	if !found {
		t.Fatalf("NodeForKey returned %q, not one of %v", addr, nodes)
	}
}

func TestNodeRouterNodesReturnsCopy(t *testing.T) {
	r := NewNodeRouter([]string{"a:1", "b:2"})

	nodes := r.Nodes()
	nodes[0] = "mutated"

	if r.Nodes()[0] == "mutated" {
		t.Fatal("Nodes() leaked internal slice, mutation visible to router")
	}
}

func TestNodeRouterSingleNodeAlwaysOwnsEveryKey(t *testing.T) {
	r := NewNodeRouter([]string{"only:1"})

	for _, key := range []string{"a", "b", "c"} {
		if got := r.NodeForKey(key); got != "only:1" {
			t.Fatalf("expected sole node to own key %q, got %q", key, got)
		}
	}
}
