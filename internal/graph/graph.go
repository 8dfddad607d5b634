// Package graph builds the component dependency graph (spec §4.2), detects
// cycles, and computes a deterministic topological order. The cycle-detection
// and Kahn's-algorithm approach here is grounded on the teacher's action
// dependency graph (graph/dag.go's checkCycleRecursive and
// GetExecutionOrder), generalized from single-dependency action chains to
// the framework's richer edge model (required/optional/lazy).
package graph

import "fmt"

// Edge is one dependency edge (spec §4.2's dependency edge, restricted to
// the fields the graph itself needs — parameter name and phase-specific
// metadata live on the owning component descriptor).
type Edge struct {
	From     string
	To       string
	Optional bool
	Lazy     bool
}

// Graph is a node-and-edge dependency graph over component keys.
type Graph struct {
	nodes []string       // registration order, for deterministic tie-breaking
	seen  map[string]bool
	edges map[string][]Edge // from -> edges (required, optional and lazy)
}

func New() *Graph {
	return &Graph{seen: map[string]bool{}, edges: map[string][]Edge{}}
}

// AddNode registers a component key with no edges yet. Safe to call more
// than once for the same key.
func (g *Graph) AddNode(key string) {
	if !g.seen[key] {
		g.seen[key] = true
		g.nodes = append(g.nodes, key)
	}
}

// AddEdge adds a required (or optional/lazy) dependency from -> to. Both
// ends are registered as nodes if not already present.
func (g *Graph) AddEdge(from, to string, optional, lazy bool) {
	g.AddNode(from)
	g.AddNode(to)
	g.edges[from] = append(g.edges[from], Edge{From: from, To: to, Optional: optional, Lazy: lazy})
}

// Nodes returns all node keys in insertion order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// EdgesFrom returns the edges whose From is key, in insertion order.
func (g *Graph) EdgesFrom(key string) []Edge {
	return g.edges[key]
}

// Cycle is one detected cycle, listing each member exactly once in order.
type Cycle struct {
	Path []string
}

func (c Cycle) String() string {
	s := ""
	for i, k := range c.Path {
		if i > 0 {
			s += " -> "
		}
		s += k
	}
	return s
}

// DetectCycles runs an iterated DFS recording the current path; every back
// edge found yields one reported cycle. The search continues after each
// report so independent cycles are all surfaced (spec §4.2, invariant 2).
// Optional/lazy edges never participate in cycle detection: the container
// can always break them with a deferred or absent-sentinel resolution.
func (g *Graph) DetectCycles() []Cycle {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	onPath := map[string]int{} // node -> index in path
	var path []string
	var cycles []Cycle

	var visit func(node string)
	visit = func(node string) {
		color[node] = gray
		onPath[node] = len(path)
		path = append(path, node)

		for _, e := range g.edges[node] {
			if e.Optional || e.Lazy {
				continue
			}
			switch color[e.To] {
			case white:
				visit(e.To)
			case gray:
				start := onPath[e.To]
				cyclePath := append([]string{}, path[start:]...)
				cycles = append(cycles, Cycle{Path: cyclePath})
			case black:
				// already fully explored, no cycle through here
			}
		}

		path = path[:len(path)-1]
		delete(onPath, node)
		color[node] = black
	}

	for _, n := range g.nodes {
		if color[n] == white {
			visit(n)
		}
	}
	return cycles
}

// TopologicalSort runs Kahn's algorithm, processing zero-in-degree nodes in
// registration order for determinism (spec §4.2). If cycles are present the
// returned order omits the cyclic members and ok is false; callers should
// have already consulted DetectCycles for the full error report.
func (g *Graph) TopologicalSort() (order []string, ok bool) {
	inDegree := make(map[string]int, len(g.nodes))
	for _, n := range g.nodes {
		inDegree[n] = 0
	}
	for _, n := range g.nodes {
		for _, e := range g.edges[n] {
			if e.Optional || e.Lazy {
				continue
			}
			inDegree[e.To]++ // e.To must be instantiated before e.From
		}
	}

	// Nodes with in-degree 0 (no one depends ON them being ready first in
	// our convention we invert: we want dependencies instantiated before
	// dependents, so we process nodes whose dependencies are satisfied).
	// Recompute in terms of "requires remaining" to match instantiation
	// order (leaf dependencies first).
	requiresRemaining := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	for _, n := range g.nodes {
		requiresRemaining[n] = 0
	}
	for _, n := range g.nodes {
		for _, e := range g.edges[n] {
			if e.Optional || e.Lazy {
				continue
			}
			requiresRemaining[n]++
			dependents[e.To] = append(dependents[e.To], n)
		}
	}

	var queue []string
	for _, n := range g.nodes {
		if requiresRemaining[n] == 0 {
			queue = append(queue, n)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, dependent := range dependents[current] {
			requiresRemaining[dependent]--
			if requiresRemaining[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.nodes) {
		return result, false
	}
	return result, true
}

// GetLeafComponents returns nodes with zero outgoing (required) edges.
func (g *Graph) GetLeafComponents() []string {
	var leaves []string
	for _, n := range g.nodes {
		hasRequired := false
		for _, e := range g.edges[n] {
			if !e.Optional && !e.Lazy {
				hasRequired = true
				break
			}
		}
		if !hasRequired {
			leaves = append(leaves, n)
		}
	}
	return leaves
}

// GetInstantiationGroup returns 1 + max(group of each required dependency),
// with a cycle guard returning 0 on self-re-entry (spec §4.2).
func (g *Graph) GetInstantiationGroup(node string) int {
	visiting := map[string]bool{}
	memo := map[string]int{}

	var group func(n string) int
	group = func(n string) int {
		if v, ok := memo[n]; ok {
			return v
		}
		if visiting[n] {
			return 0
		}
		visiting[n] = true
		defer delete(visiting, n)

		max := 0
		for _, e := range g.edges[n] {
			if e.Optional || e.Lazy {
				continue
			}
			if depGroup := group(e.To); depGroup+1 > max {
				max = depGroup + 1
			}
		}
		memo[n] = max
		return max
	}
	return group(node)
}

// Describe renders a human-readable summary of the graph (SPEC_FULL §11).
// The boot-time consolidated error report is rendered by validator.Report
// and does not include it.
func (g *Graph) Describe() string {
	out := ""
	for _, n := range g.nodes {
		out += fmt.Sprintf("%s:\n", n)
		for _, e := range g.edges[n] {
			flag := ""
			if e.Optional {
				flag = " (optional)"
			}
			if e.Lazy {
				flag += " (lazy)"
			}
			out += fmt.Sprintf("  -> %s%s\n", e.To, flag)
		}
	}
	return out
}
