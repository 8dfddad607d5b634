package scanner

import "github.com/katalyst-run/katalyst/klog"

var log = klog.For("scanner")

// Loader produces one component's metadata on demand, the manifest-driven
// stand-in for reflecting over a loaded class (spec §9's "code generator
// emits a manifest" option). A Loader that fails is reported via the scan's
// onError callback and excluded, not fatal to the whole scan.
type Loader func() (TypeMetadata, error)

// entry pairs a registration-order index with its Loader so scan results
// stay deterministic regardless of map iteration order.
type entry struct {
	order  int
	loader Loader
}

// Scanner holds the manifest of registered component loaders.
type Scanner struct {
	entries []entry
}

// New creates an empty Scanner.
func New() *Scanner {
	return &Scanner{}
}

// Register adds a component loader to the manifest. Registration order is
// preserved through to Scan's output.
func (s *Scanner) Register(loader Loader) {
	s.entries = append(s.entries, entry{order: len(s.entries), loader: loader})
}

// Scan evaluates every registered loader, applies predicate (nil means
// All()), and returns the matching metadata in registration order. Loader
// failures are reported to onError (if non-nil) and skipped rather than
// aborting the scan. Synthetic/generated types are always excluded.
func (s *Scanner) Scan(predicate Predicate, onError func(err error)) []TypeMetadata {
	if predicate == nil {
		predicate = All()
	}

	result := make([]TypeMetadata, 0, len(s.entries))
	for _, e := range s.entries {
		meta, err := e.loader()
		if err != nil {
			log.WithError(err).Warn("component loader failed, skipping")
			if onError != nil {
				onError(err)
			}
			continue
		}
		if meta.IsSynthetic {
			continue
		}
		if predicate(meta) {
			result = append(result, meta)
		}
	}
	return result
}
