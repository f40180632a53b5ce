package toposort_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsunset/dbsunset/pkg/toposort"
)

func index(list []string, val string) int {
	for idx, str := range list {
		if str == val {
			return idx
		}
	}

	return -1
}

// addNodes is a test helper to add multiple nodes at once.
func addNodes(graph *toposort.Graph, names ...string) {
	for _, name := range names {
		graph.AddNode(name)
	}
}

// edge represents a directed edge from one node to another.
type edge struct {
	from string
	to   string
}

func TestToposortDuplicatedNode(t *testing.T) {
	t.Parallel()

	graph := toposort.NewGraph()
	graph.AddNode("a")

	if graph.AddNode("a") {
		t.Error("duplicate node not rejected")
	}
}

func TestToposortWikipedia(t *testing.T) {
	t.Parallel()

	graph := toposort.NewGraph()
	addNodes(graph, "2", "3", "5", "7", "8", "9", "10", "11")

	edges := []edge{
		{"7", "8"},
		{"7", "11"},
		{"5", "11"},
		{"3", "8"},
		{"3", "10"},
		{"11", "2"},
		{"11", "9"},
		{"11", "10"},
		{"8", "9"},
	}

	for _, e := range edges {
		graph.AddEdge(e.from, e.to)
	}

	result, ok := graph.Toposort()
	require.True(t, ok, "cycle reported in an acyclic graph")
	require.Len(t, result, 8)

	for _, e := range edges {
		assert.Less(t, index(result, e.from), index(result, e.to),
			"%s must sort before %s", e.from, e.to)
	}
}

func TestToposortDeterministic(t *testing.T) {
	t.Parallel()

	build := func() *toposort.Graph {
		graph := toposort.NewGraph()
		addNodes(graph, "c", "a", "b", "d")
		graph.AddEdge("a", "d")
		graph.AddEdge("b", "d")

		return graph
	}

	first, ok := build().Toposort()
	require.True(t, ok)

	for range 10 {
		again, ok := build().Toposort()
		require.True(t, ok)
		assert.Equal(t, first, again)
	}

	// Ready nodes drain lexicographically.
	assert.Equal(t, []string{"a", "b", "c", "d"}, first)
}

func TestToposortCycle(t *testing.T) {
	t.Parallel()

	graph := toposort.NewGraph()
	graph.AddEdge("a", "b")
	graph.AddEdge("b", "c")
	graph.AddEdge("c", "a")

	_, ok := graph.Toposort()
	assert.False(t, ok, "cycle not detected")
}

func TestLevelsLinearChain(t *testing.T) {
	t.Parallel()

	graph := toposort.NewGraph()
	graph.AddEdge("validate", "process")
	graph.AddEdge("process", "refactor")

	levels, ok := graph.Levels()
	require.True(t, ok)

	assert.Equal(t, [][]string{{"validate"}, {"process"}, {"refactor"}}, levels)
}

func TestLevelsDiamond(t *testing.T) {
	t.Parallel()

	graph := toposort.NewGraph()
	graph.AddEdge("root", "left")
	graph.AddEdge("root", "right")
	graph.AddEdge("left", "join")
	graph.AddEdge("right", "join")

	levels, ok := graph.Levels()
	require.True(t, ok)

	assert.Equal(t, [][]string{{"root"}, {"left", "right"}, {"join"}}, levels)
}

func TestLevelsCycle(t *testing.T) {
	t.Parallel()

	graph := toposort.NewGraph()
	graph.AddEdge("a", "b")
	graph.AddEdge("b", "a")

	_, ok := graph.Levels()
	assert.False(t, ok)
}

func TestFindChildrenAndParents(t *testing.T) {
	t.Parallel()

	graph := toposort.NewGraph()
	graph.AddEdge("a", "c")
	graph.AddEdge("b", "c")
	graph.AddEdge("c", "d")

	assert.Equal(t, []string{"c"}, graph.FindChildren("a"))
	assert.Equal(t, []string{"a", "b"}, graph.FindParents("c"))
	assert.Nil(t, graph.FindChildren("d"))
	assert.Nil(t, graph.FindParents("a"))
}

func TestDescendants(t *testing.T) {
	t.Parallel()

	graph := toposort.NewGraph()
	graph.AddEdge("a", "b")
	graph.AddEdge("b", "c")
	graph.AddEdge("b", "d")
	graph.AddEdge("x", "y")

	assert.Equal(t, []string{"b", "c", "d"}, graph.Descendants("a"))
	assert.Equal(t, []string{"c", "d"}, graph.Descendants("b"))
	assert.Empty(t, graph.Descendants("c"))
}

func TestDuplicateEdgeIgnored(t *testing.T) {
	t.Parallel()

	graph := toposort.NewGraph()
	graph.AddEdge("a", "b")
	graph.AddEdge("a", "b")

	assert.Equal(t, []string{"b"}, graph.FindChildren("a"))
	assert.Equal(t, []string{"a"}, graph.FindParents("b"))
}
