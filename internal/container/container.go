// Package container implements the DI container (spec §4.4): topological
// instantiation, type-key and capability-based lookup, external module
// merge, and reverse-topological shutdown. Grounded on the teacher's
// graph/dag.go GetExecutionOrder for the instantiation order and on
// worker/pool.go's supervisor style for the ready/shutdown lifecycle.
package container

import (
	"fmt"
	"sort"

	"github.com/katalyst-run/katalyst/internal/errs"
	"github.com/katalyst-run/katalyst/internal/graph"
	"github.com/katalyst-run/katalyst/internal/scanner"
	"github.com/katalyst-run/katalyst/pkg/feature"
)

// Resolver is the view a Factory gets of the in-progress container: lookups
// only ever see components earlier in the topological order, which is
// exactly the set already instantiated.
type Resolver interface {
	Get(key string) (any, bool)
	GetAll(capability string) []any
	WellKnown(key string) (any, bool)
}

// Factory builds one component's instance from its already-instantiated
// dependencies.
type Factory func(Resolver) (any, error)

// Closer is the "close" capability (spec §4.4): components implementing it
// are shut down in reverse topological order.
type Closer interface {
	Close() error
}

// Container holds instantiated singletons, keyed by component key, plus the
// capability index needed for GetAll and primary-marker resolution.
type Container struct {
	instances    map[string]any
	capabilities map[string][]string // capability -> keys, sorted by key
	primary      map[string]string   // capability -> designated primary key
	wellKnown    map[string]any
	order        []string // instantiation order, kept for reverse shutdown
}

// Build instantiates every component in types, in the order imposed by g,
// merging externally-provided modules first so a feature's pre-built
// singleton satisfies any component depending on that key (spec §4.4).
func Build(
	types []scanner.TypeMetadata,
	factories map[string]Factory,
	g *graph.Graph,
	wellKnown map[string]any,
	externalModules []feature.Module,
) (*Container, error) {
	c := &Container{
		instances:    map[string]any{},
		capabilities: map[string][]string{},
		primary:      map[string]string{},
		wellKnown:    wellKnown,
	}
	if c.wellKnown == nil {
		c.wellKnown = map[string]any{}
	}

	byKey := make(map[string]scanner.TypeMetadata, len(types))
	for _, t := range types {
		byKey[t.Key] = t
		for cap := range t.Capabilities {
			c.capabilities[cap] = append(c.capabilities[cap], t.Key)
			if t.Annotations["Primary"] {
				c.primary[cap] = t.Key
			}
		}
	}
	for cap := range c.capabilities {
		sort.Strings(c.capabilities[cap])
	}

	for _, m := range externalModules {
		c.instances[m.Key] = m.Instance
	}

	order, ok := g.TopologicalSort()
	if !ok {
		return nil, errs.New(errs.KindDICircularDependency, "container build attempted on a cyclic graph")
	}

	for _, key := range order {
		if _, already := c.instances[key]; already {
			c.order = append(c.order, key)
			continue
		}
		factory, hasFactory := factories[key]
		if !hasFactory {
			// no factory registered (e.g. an interface-only node or a
			// well-known synthetic key): nothing to instantiate here.
			continue
		}
		instance, err := factory(c)
		if err != nil {
			return nil, errs.Wrap(errs.KindDIInstantiationFailure, fmt.Sprintf("instantiating %q", key), err)
		}
		c.instances[key] = instance
		c.order = append(c.order, key)
	}

	return c, nil
}

// Get resolves a component by exact type-key.
func (c *Container) Get(key string) (any, bool) {
	v, ok := c.instances[key]
	return v, ok
}

// ResolveByName is an alias for Get: component keys double as lookup names.
func (c *Container) ResolveByName(name string) (any, bool) { return c.Get(name) }

// GetAll returns every instantiated component declaring the given
// capability, in deterministic (sorted key) order.
func (c *Container) GetAll(capability string) []any {
	keys := c.capabilities[capability]
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		if v, ok := c.instances[k]; ok {
			out = append(out, v)
		}
	}
	return out
}

// ResolveCapability picks the single implementing component for a
// capability-typed parameter: the sole candidate if there is exactly one,
// the designated primary if the capability has more than one candidate and
// one is marked Primary, or an error if ambiguous.
func (c *Container) ResolveCapability(capability string) (any, error) {
	candidates := c.GetAll(capability)
	switch len(candidates) {
	case 0:
		return nil, errs.New(errs.KindDIMissingSecondary, fmt.Sprintf("no component implements capability %q", capability))
	case 1:
		return candidates[0], nil
	default:
		if key, ok := c.primary[capability]; ok {
			if v, ok := c.instances[key]; ok {
				return v, nil
			}
		}
		return nil, errs.New(errs.KindDIUninstantiable, fmt.Sprintf("ambiguous capability %q: %d candidates and no Primary designated", capability, len(candidates)))
	}
}

// WellKnown resolves a framework-injected property by key.
func (c *Container) WellKnown(key string) (any, bool) {
	v, ok := c.wellKnown[key]
	return v, ok
}

// NotifyReady invokes OnReady on every feature, in the order supplied.
func NotifyReady(c *Container, features []feature.Feature) {
	for _, f := range features {
		f.OnReady(c)
	}
}

// Shutdown walks components implementing Closer in reverse instantiation
// order, collecting (not short-circuiting on) every Close error.
func (c *Container) Shutdown() []error {
	var errors []error
	for i := len(c.order) - 1; i >= 0; i-- {
		instance, ok := c.instances[c.order[i]]
		if !ok {
			continue
		}
		if closer, ok := instance.(Closer); ok {
			if err := closer.Close(); err != nil {
				errors = append(errors, fmt.Errorf("closing %q: %w", c.order[i], err))
			}
		}
	}
	return errors
}
