package graph

import "testing"

type testEdge struct {
	from, to    string
	destructive bool
}

func (e testEdge) Source() string { return e.from }
func (e testEdge) Target() string { return e.to }

func nonDestructive(e testEdge) bool { return !e.destructive }

func pathString(path []testEdge) string {
	if len(path) == 0 {
		return ""
	}
	out := path[0].from
	for _, e := range path {
		out += ">" + e.to
	}
	return out
}

func TestShortestPath_SameNodeIsEmptyPath(t *testing.T) {
	t.Parallel()

	g := New([]testEdge{{from: "a", to: "b"}})
	path, ok := g.ShortestPath("a", "a", nil)
	if !ok {
		t.Fatalf("expected a path from a node to itself")
	}
	if path == nil || len(path) != 0 {
		t.Fatalf("expected empty non-nil path, got %v", path)
	}

	// unknown nodes still reach themselves.
	if _, ok := g.ShortestPath("zzz", "zzz", nil); !ok {
		t.Fatalf("expected unknown node to reach itself")
	}
}

func TestShortestPath_PrefersFewestEdges(t *testing.T) {
	t.Parallel()

	g := New([]testEdge{
		{from: "0.1.0", to: "0.2.0"},
		{from: "0.2.0", to: "1.0.0"},
		{from: "1.0.0", to: "1.6.0"},
		{from: "0.2.0", to: "1.6.0"},
	})

	path, ok := g.ShortestPath("0.1.0", "1.6.0", nil)
	if !ok {
		t.Fatalf("expected a path")
	}
	if got := pathString(path); got != "0.1.0>0.2.0>1.6.0" {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestShortestPath_TiesBreakByInsertionOrder(t *testing.T) {
	t.Parallel()

	g := New([]testEdge{
		{from: "a", to: "x"},
		{from: "a", to: "y"},
		{from: "x", to: "b"},
		{from: "y", to: "b"},
	})

	path, ok := g.ShortestPath("a", "b", nil)
	if !ok {
		t.Fatalf("expected a path")
	}
	if got := pathString(path); got != "a>x>b" {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestShortestPath_FilterBlocksDestructiveEdges(t *testing.T) {
	t.Parallel()

	g := New([]testEdge{
		{from: "S0", to: "S1"},
		{from: "S1", to: "S0", destructive: true},
		{from: "S1", to: "S2"},
	})

	path, ok := g.ShortestPath("S0", "S2", nonDestructive)
	if !ok {
		t.Fatalf("expected forward path")
	}
	if got := pathString(path); got != "S0>S1>S2" {
		t.Fatalf("unexpected path %q", got)
	}

	if _, ok := g.ShortestPath("S2", "S0", nonDestructive); ok {
		t.Fatalf("expected no path from S2 to S0")
	}
	if _, ok := g.ShortestPath("S1", "S0", nonDestructive); ok {
		t.Fatalf("expected destructive edge to be refused")
	}
	if _, ok := g.ShortestPath("S1", "S0", nil); !ok {
		t.Fatalf("expected unfiltered search to use destructive edge")
	}
}

func TestShortestPath_FilterFallsBackToLongerRoute(t *testing.T) {
	t.Parallel()

	g := New([]testEdge{
		{from: "a", to: "c", destructive: true},
		{from: "a", to: "b"},
		{from: "b", to: "c"},
	})

	path, ok := g.ShortestPath("a", "c", nonDestructive)
	if !ok {
		t.Fatalf("expected a path")
	}
	if got := pathString(path); got != "a>b>c" {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestShortestPath_Unreachable(t *testing.T) {
	t.Parallel()

	g := New([]testEdge{{from: "a", to: "b"}, {from: "c", to: "d"}})

	if _, ok := g.ShortestPath("a", "d", nil); ok {
		t.Fatalf("expected no path between disconnected components")
	}
	if _, ok := g.ShortestPath("a", "missing", nil); ok {
		t.Fatalf("expected no path to an unknown node")
	}
}

func TestShortestPath_Cycles(t *testing.T) {
	t.Parallel()

	g := New([]testEdge{
		{from: "a", to: "b"},
		{from: "b", to: "a"},
		{from: "b", to: "c"},
	})

	path, ok := g.ShortestPath("a", "c", nil)
	if !ok || pathString(path) != "a>b>c" {
		t.Fatalf("unexpected path %q (ok=%v)", pathString(path), ok)
	}
}

func TestGraph_NodesAndEdges(t *testing.T) {
	t.Parallel()

	edges := []testEdge{{from: "b", to: "c"}, {from: "a", to: "b"}}
	g := New(edges)

	nodes := g.Nodes()
	if len(nodes) != 3 || nodes[0] != "a" || nodes[1] != "b" || nodes[2] != "c" {
		t.Fatalf("unexpected nodes %v", nodes)
	}

	copied := g.Edges()
	copied[0] = testEdge{from: "x", to: "y"}
	if g.Edges()[0].from != "b" {
		t.Fatalf("Edges must return a copy")
	}

	edges[0] = testEdge{from: "q", to: "r"}
	if g.HasNode("q") {
		t.Fatalf("graph must not alias the caller's slice")
	}
}
