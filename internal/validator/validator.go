// Package validator runs after the graph is built and before any
// instantiation, producing the full structured error set from spec §4.3.
// Grounded on the teacher's graph/dag.go ValidateDAG, which also runs a
// full pre-flight pass and returns every problem found rather than failing
// on the first one.
package validator

import (
	"fmt"
	"sort"

	"github.com/katalyst-run/katalyst/internal/errs"
	"github.com/katalyst-run/katalyst/internal/graph"
	"github.com/katalyst-run/katalyst/internal/scanner"
)

// Category orders the consolidated report (spec §4.3: cycles, missing deps,
// uninstantiable, secondary, feature-provided).
type Category int

const (
	CategoryCircular Category = iota
	CategoryMissingDependency
	CategoryUninstantiable
	CategorySecondaryBinding
	CategoryFeatureProvided
	CategoryWellKnownProperty
)

// Finding is one validation problem, attributable to a component and kind.
type Finding struct {
	Category  Category
	Component string
	Kind      errs.Kind
	Message   string
}

func (f Finding) Error() string { return fmt.Sprintf("%s: %s", f.Component, f.Message) }

// WellKnownRegistry reports whether a well-known property key is available
// (clock, request-id source, and similar framework-injected properties).
type WellKnownRegistry interface {
	Has(key string) bool
}

// EnabledFeatures reports whether an optional feature switch is on.
type EnabledFeatures interface {
	Enabled(name string) bool
}

// Validator checks a scanned component set and its graph against spec
// §4.3's five failure categories, producing every finding rather than
// stopping at the first.
type Validator struct {
	wellKnown WellKnownRegistry
	features  EnabledFeatures
}

func New(wellKnown WellKnownRegistry, features EnabledFeatures) *Validator {
	return &Validator{wellKnown: wellKnown, features: features}
}

// Validate runs all checks and returns the findings ordered by category,
// then by component key for determinism within a category.
func (v *Validator) Validate(types []scanner.TypeMetadata, g *graph.Graph) []Finding {
	byKey := make(map[string]scanner.TypeMetadata, len(types))
	capabilityOwners := map[string][]string{}
	for _, t := range types {
		byKey[t.Key] = t
		for cap := range t.Capabilities {
			capabilityOwners[cap] = append(capabilityOwners[cap], t.Key)
		}
	}

	var findings []Finding

	for _, cycle := range g.DetectCycles() {
		findings = append(findings, Finding{
			Category:  CategoryCircular,
			Component: cycle.Path[0],
			Kind:      errs.KindDICircularDependency,
			Message:   fmt.Sprintf("circular dependency: %s", cycle.String()),
		})
	}

	for _, t := range types {
		if t.IsInterface {
			continue
		}
		if !t.HasNoArgsConstructor && len(t.ConstructorParams) == 0 {
			findings = append(findings, Finding{
				Category:  CategoryUninstantiable,
				Component: t.Key,
				Kind:      errs.KindDIUninstantiable,
				Message:   "no usable constructor found",
			})
		}

		for _, p := range t.ConstructorParams {
			switch {
			case p.WellKnown:
				if v.wellKnown == nil || !v.wellKnown.Has(p.TypeKey) {
					findings = append(findings, Finding{
						Category:  CategoryWellKnownProperty,
						Component: t.Key,
						Kind:      errs.KindDIWellKnownProperty,
						Message:   fmt.Sprintf("well-known property %q unavailable for parameter %q", p.TypeKey, p.Name),
					})
				}
			case p.IsCapability:
				owners := capabilityOwners[p.TypeKey]
				if len(owners) == 0 {
					findings = append(findings, Finding{
						Category:  CategorySecondaryBinding,
						Component: t.Key,
						Kind:      errs.KindDIMissingSecondary,
						Message:   fmt.Sprintf("no component implements capability %q for parameter %q", p.TypeKey, p.Name),
					})
				}
				primaries := 0
				for _, o := range owners {
					if byKey[o].HasAnnotation("Primary") {
						primaries++
					}
				}
				if len(owners) > 1 && primaries == 0 {
					findings = append(findings, Finding{Category: CategoryUninstantiable, Component: t.Key, Kind: errs.KindDIUninstantiable,
						Message: fmt.Sprintf("ambiguous capability %q for parameter %q: %d candidates and no Primary designated", p.TypeKey, p.Name, len(owners))})
				}
			default:
				target, known := byKey[p.TypeKey]
				if !known {
					if !p.Optional {
						findings = append(findings, Finding{
							Category:  CategoryMissingDependency,
							Component: t.Key,
							Kind:      errs.KindDIMissingDependency,
							Message:   fmt.Sprintf("parameter %q requires %q, which is not registered", p.Name, p.TypeKey),
						})
					}
					continue
				}
				if target.RequiresFeature != "" && (v.features == nil || !v.features.Enabled(target.RequiresFeature)) {
					findings = append(findings, Finding{
						Category:  CategoryFeatureProvided,
						Component: t.Key,
						Kind:      errs.KindDIMissingFeatureType,
						Message:   fmt.Sprintf("parameter %q requires %q, provided only when feature %q is enabled", p.Name, p.TypeKey, target.RequiresFeature),
					})
				}
			}
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Category != findings[j].Category {
			return findings[i].Category < findings[j].Category
		}
		return findings[i].Component < findings[j].Component
	})
	return findings
}

// Report renders a consolidated human-readable error report, grouped by
// category in the spec-mandated order.
func Report(findings []Finding) string {
	names := map[Category]string{
		CategoryCircular:          "Circular dependencies",
		CategoryMissingDependency: "Missing dependencies",
		CategoryUninstantiable:    "Uninstantiable components",
		CategorySecondaryBinding:  "Unsatisfied capability bindings",
		CategoryFeatureProvided:   "Feature-gated dependencies",
		CategoryWellKnownProperty: "Missing well-known properties",
	}

	out := ""
	var current Category = -1
	for _, f := range findings {
		if f.Category != current {
			current = f.Category
			out += fmt.Sprintf("%s:\n", names[current])
		}
		out += fmt.Sprintf("  - %s\n", f.Error())
	}
	return out
}
