// Package scanner implements component discovery (spec §4.1). Go has no
// runtime class-path reflection, so discovery is manifest-driven: each
// component registers a TypeMetadata descriptor (by hand, or via a thin
// code-generator in a real deployment) instead of being found by scanning
// loaded classes. The predicate algebra and determinism contract are
// unchanged from the spec; only how the initial set is produced differs.
package scanner

// ParamMetadata describes one constructor parameter.
type ParamMetadata struct {
	Name string
	// TypeKey is a concrete component key, unless IsCapability is set, in
	// which case it names a capability that some component must implement.
	TypeKey      string
	Optional     bool
	Lazy         bool
	IsCapability bool
	// WellKnown marks a framework-injected property (clock, request-id
	// source, …) resolved from a fixed registry rather than the graph.
	WellKnown bool
}

// TypeMetadata is the discovery unit: one component's shape, independent of
// whether it has been instantiated.
type TypeMetadata struct {
	Key                   string
	Package               string
	ConstructorParams     []ParamMetadata
	Capabilities          map[string]bool
	Annotations           map[string]bool
	MethodsWithAnnotation map[string]bool
	HasNoArgsConstructor  bool
	IsConcrete            bool
	IsInterface           bool
	IsTest                bool
	IsSynthetic           bool
	// RequiresFeature names the optional feature switch that must be
	// enabled for this component to be provided at all (spec §4.3's
	// FeatureProvidedType remediation).
	RequiresFeature string
}

// Implements reports whether the metadata declares capability c.
func (t TypeMetadata) Implements(c string) bool { return t.Capabilities[c] }

// HasAnnotation reports whether annotation a is declared on the type.
func (t TypeMetadata) HasAnnotation(a string) bool { return t.Annotations[a] }

// HasMethodAnnotation reports whether any method carries annotation a.
func (t TypeMetadata) HasMethodAnnotation(a string) bool { return t.MethodsWithAnnotation[a] }
