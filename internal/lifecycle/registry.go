// Package lifecycle implements the Registry Manager (spec §4.10): a
// process-wide ledger of resettable singletons used exclusively by the test
// harness to restore a pristine snapshot between runs without rebuilding
// the container. Grounded on the teacher's registry/autoregister.go
// registration-table style, narrowed to the single reset() hook the spec
// calls for.
package lifecycle

import "sync"

// Resettable is a singleton that can return itself to a pristine state.
type Resettable interface {
	Reset()
}

// Manager holds the process-wide ledger. Production code only ever
// appends; ResetAll is a test-harness-only operation.
type Manager struct {
	mu         sync.Mutex
	singletons []Resettable
}

var global = &Manager{}

// Global returns the process-wide Manager.
func Global() *Manager { return global }

// Register adds a singleton to the ledger. Safe to call from package init.
func (m *Manager) Register(s Resettable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.singletons = append(m.singletons, s)
}

// ResetAll calls Reset on every registered singleton, in registration
// order. Test-harness-only: production code never calls this.
func (m *Manager) ResetAll() {
	m.mu.Lock()
	singletons := append([]Resettable{}, m.singletons...)
	m.mu.Unlock()

	for _, s := range singletons {
		s.Reset()
	}
}

// Count reports how many singletons are currently registered (test
// introspection helper).
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.singletons)
}
