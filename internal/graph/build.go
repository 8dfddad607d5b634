package graph

import "github.com/katalyst-run/katalyst/internal/scanner"

// BuildFromMetadata constructs a Graph from scanned component descriptors:
// one required edge per non-optional, non-lazy constructor parameter, and an
// optional/lazy edge otherwise (spec §4.2).
// Capability-typed and well-known-property parameters are not added as
// graph edges: they are resolved by the validator/container against the
// capability registry and the well-known-property registry respectively,
// not against a single concrete node in the component graph.
func BuildFromMetadata(types []scanner.TypeMetadata) *Graph {
	g := New()
	for _, t := range types {
		g.AddNode(t.Key)
		for _, p := range t.ConstructorParams {
			if p.IsCapability || p.WellKnown {
				continue
			}
			g.AddEdge(t.Key, p.TypeKey, p.Optional, p.Lazy)
		}
	}
	return g
}
