// Package graph finds transition sequences between named states.
//
// A Graph is built once from an explicit edge set and never mutated
// afterwards, so a single value can be queried from any number of callers.
package graph

import "sort"

// Edge is a directed connection between two named nodes.
type Edge interface {
	Source() string
	Target() string
}

// Graph is an immutable adjacency view over a set of edges.
type Graph[E Edge] struct {
	edges     []E
	adjacency map[string][]int
	nodes     map[string]struct{}
}

// New builds a graph from edges. Outgoing edges keep the order in which they
// were supplied, which makes path selection deterministic.
func New[E Edge](edges []E) *Graph[E] {
	g := &Graph[E]{
		edges:     append([]E(nil), edges...),
		adjacency: make(map[string][]int),
		nodes:     make(map[string]struct{}),
	}
	for i, edge := range g.edges {
		g.adjacency[edge.Source()] = append(g.adjacency[edge.Source()], i)
		g.nodes[edge.Source()] = struct{}{}
		g.nodes[edge.Target()] = struct{}{}
	}
	return g
}

// Edges returns a copy of the edge set in insertion order.
func (g *Graph[E]) Edges() []E {
	return append([]E(nil), g.edges...)
}

// Nodes returns every node referenced by an edge, sorted.
func (g *Graph[E]) Nodes() []string {
	nodes := make([]string, 0, len(g.nodes))
	for node := range g.nodes {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}

// HasNode reports whether node is referenced by any edge.
func (g *Graph[E]) HasNode(node string) bool {
	_, ok := g.nodes[node]
	return ok
}

// ShortestPath returns the sequence with the fewest edges leading from one
// node to another. Edges for which allow returns false are never traversed;
// a nil allow accepts every edge. When from equals to the result is an empty,
// valid path. The boolean is false when no sequence connects the nodes.
func (g *Graph[E]) ShortestPath(from, to string, allow func(E) bool) ([]E, bool) {
	if from == to {
		return []E{}, true
	}
	if !g.HasNode(from) || !g.HasNode(to) {
		return nil, false
	}

	// via[node] holds the index of the edge used to first reach node.
	via := map[string]int{from: -1}
	queue := []string{from}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, idx := range g.adjacency[current] {
			edge := g.edges[idx]
			if allow != nil && !allow(edge) {
				continue
			}
			next := edge.Target()
			if _, seen := via[next]; seen {
				continue
			}
			via[next] = idx
			if next == to {
				return g.unwind(via, from, to), true
			}
			queue = append(queue, next)
		}
	}

	return nil, false
}

func (g *Graph[E]) unwind(via map[string]int, from, to string) []E {
	var reversed []E
	for node := to; node != from; {
		edge := g.edges[via[node]]
		reversed = append(reversed, edge)
		node = edge.Source()
	}
	path := make([]E, len(reversed))
	for i, edge := range reversed {
		path[len(reversed)-1-i] = edge
	}
	return path
}
