package scanner

import "regexp"

// Predicate is a pure function over type metadata (spec §4.1's predicate
// algebra).
type Predicate func(TypeMetadata) bool

// All matches every type.
func All() Predicate { return func(TypeMetadata) bool { return true } }

// None matches no type.
func None() Predicate { return func(TypeMetadata) bool { return false } }

// And combines predicates with logical AND.
func And(ps ...Predicate) Predicate {
	return func(t TypeMetadata) bool {
		for _, p := range ps {
			if !p(t) {
				return false
			}
		}
		return true
	}
}

// Or combines predicates with logical OR.
func Or(ps ...Predicate) Predicate {
	return func(t TypeMetadata) bool {
		for _, p := range ps {
			if p(t) {
				return true
			}
		}
		return false
	}
}

// Not negates a predicate.
func Not(p Predicate) Predicate {
	return func(t TypeMetadata) bool { return !p(t) }
}

// MatchesPackage matches types whose Package equals pkg.
func MatchesPackage(pkg string) Predicate {
	return func(t TypeMetadata) bool { return t.Package == pkg }
}

// MatchesName matches types whose Key matches the given regular expression.
func MatchesName(pattern string) Predicate {
	re := regexp.MustCompile(pattern)
	return func(t TypeMetadata) bool { return re.MatchString(t.Key) }
}

// ImplementsCapability matches types that declare the given capability.
func ImplementsCapability(capability string) Predicate {
	return func(t TypeMetadata) bool { return t.Implements(capability) }
}

// HasAnnotation matches types carrying the given annotation.
func HasAnnotation(annotation string) Predicate {
	return func(t TypeMetadata) bool { return t.HasAnnotation(annotation) }
}

// HasNoArgsConstructor matches types with a zero-argument constructor.
func HasNoArgsConstructor() Predicate {
	return func(t TypeMetadata) bool { return t.HasNoArgsConstructor }
}

// IsConcrete matches non-interface types.
func IsConcrete() Predicate {
	return func(t TypeMetadata) bool { return t.IsConcrete }
}

// IsNotInterface matches types that are not interfaces.
func IsNotInterface() Predicate {
	return func(t TypeMetadata) bool { return !t.IsInterface }
}

// IsNotTest excludes types marked as test-only.
func IsNotTest() Predicate {
	return func(t TypeMetadata) bool { return !t.IsTest }
}

// HasMethodsWithAnnotation matches types with at least one annotated method.
func HasMethodsWithAnnotation(annotation string) Predicate {
	return func(t TypeMetadata) bool { return t.HasMethodAnnotation(annotation) }
}
