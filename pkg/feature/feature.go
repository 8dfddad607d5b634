// Package feature defines the extension point optional subsystems use to
// contribute pre-built singletons and observe container readiness (spec
// §4.4, §6).
package feature

// Module is a pre-built singleton a Feature contributes to the container
// before component instantiation begins. Key is the type-key it should be
// registered under.
type Module struct {
	Key      string
	Instance any
}

// Container is the narrow view of the DI container a Feature's OnReady
// hook receives — just enough to look components up, not enough to mutate
// the graph post-instantiation.
type Container interface {
	Get(key string) (any, bool)
}

// Feature is the extension point for optional subsystems: it contributes
// modules merged into the type-key table before instantiation, and is
// notified once the container has finished instantiating everything.
type Feature interface {
	ID() string
	ProvideModules() []Module
	OnReady(c Container)
}
