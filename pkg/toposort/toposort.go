// Package toposort provides a small directed acyclic graph used to order
// workflow steps: topological sort for a flat order and level grouping for
// parallel execution waves. Ties resolve lexicographically so plans render
// the same way on every run.
package toposort

import (
	"sort"
)

// Graph represents a directed graph keyed by node name.
type Graph struct {
	children map[string][]string
	parents  map[string][]string
	inserted []string
}

// NewGraph initializes an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		children: map[string][]string{},
		parents:  map[string][]string{},
	}
}

// AddNode inserts a new node. Returns false when the node already exists.
func (g *Graph) AddNode(name string) bool {
	if _, exists := g.children[name]; exists {
		return false
	}

	g.children[name] = nil
	g.parents[name] = nil
	g.inserted = append(g.inserted, name)

	return true
}

// AddEdge inserts the link from "from" node to "to" node, creating either
// endpoint on demand. Duplicate edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)

	for _, existing := range g.children[from] {
		if existing == to {
			return
		}
	}

	g.children[from] = append(g.children[from], to)
	g.parents[to] = append(g.parents[to], from)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.children)
}

// Toposort returns the nodes in topological order. The second return value is
// false when the graph contains a cycle; the partial order emitted so far is
// returned alongside it.
func (g *Graph) Toposort() ([]string, bool) {
	indegree := make(map[string]int, len(g.children))
	for name := range g.children {
		indegree[name] = len(g.parents[name])
	}

	ready := make([]string, 0, len(g.children))
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}

	sort.Strings(ready)

	order := make([]string, 0, len(g.children))

	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		order = append(order, node)

		released := make([]string, 0, len(g.children[node]))

		for _, child := range g.children[node] {
			indegree[child]--
			if indegree[child] == 0 {
				released = append(released, child)
			}
		}

		sort.Strings(released)
		ready = mergeSorted(ready, released)
	}

	return order, len(order) == len(g.children)
}

// Levels groups the nodes into execution waves: every node in wave i depends
// only on nodes in waves < i. The second return value is false when the graph
// contains a cycle.
func (g *Graph) Levels() ([][]string, bool) {
	indegree := make(map[string]int, len(g.children))
	for name := range g.children {
		indegree[name] = len(g.parents[name])
	}

	current := make([]string, 0, len(g.children))
	for name, deg := range indegree {
		if deg == 0 {
			current = append(current, name)
		}
	}

	sort.Strings(current)

	var (
		levels  [][]string
		visited int
	)

	for len(current) > 0 {
		levels = append(levels, current)
		visited += len(current)

		var next []string

		for _, node := range current {
			for _, child := range g.children[node] {
				indegree[child]--
				if indegree[child] == 0 {
					next = append(next, child)
				}
			}
		}

		sort.Strings(next)
		current = next
	}

	return levels, visited == len(g.children)
}

// FindChildren returns the other ends of outgoing edges, sorted.
func (g *Graph) FindChildren(from string) []string {
	return sortedCopy(g.children[from])
}

// FindParents returns the other ends of incoming edges, sorted.
func (g *Graph) FindParents(to string) []string {
	return sortedCopy(g.parents[to])
}

// Descendants returns every node reachable from seed, excluding seed itself.
func (g *Graph) Descendants(seed string) []string {
	seen := map[string]bool{}
	stack := append([]string(nil), g.children[seed]...)

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if seen[node] {
			continue
		}

		seen[node] = true
		stack = append(stack, g.children[node]...)
	}

	result := make([]string, 0, len(seen))
	for node := range seen {
		result = append(result, node)
	}

	sort.Strings(result)

	return result
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}

	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)

	return out
}

// mergeSorted merges two individually sorted slices into one sorted slice.
func mergeSorted(a, b []string) []string {
	if len(b) == 0 {
		return a
	}

	merged := make([]string, 0, len(a)+len(b))

	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			merged = append(merged, a[i])
			i++
		} else {
			merged = append(merged, b[j])
			j++
		}
	}

	merged = append(merged, a[i:]...)
	merged = append(merged, b[j:]...)

	return merged
}
