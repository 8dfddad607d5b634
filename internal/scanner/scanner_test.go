package scanner

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func meta(key string, caps ...string) TypeMetadata {
	capSet := map[string]bool{}
	for _, c := range caps {
		capSet[c] = true
	}
	return TypeMetadata{Key: key, Package: "app", IsConcrete: true, Capabilities: capSet}
}

func TestScanPreservesRegistrationOrder(t *testing.T) {
	s := New()
	s.Register(func() (TypeMetadata, error) { return meta("B"), nil })
	s.Register(func() (TypeMetadata, error) { return meta("A"), nil })
	s.Register(func() (TypeMetadata, error) { return meta("C"), nil })

	got := s.Scan(nil, nil)
	assert.Equal(t, []string{"B", "A", "C"}, keys(got))
}

func TestScanAppliesPredicate(t *testing.T) {
	s := New()
	s.Register(func() (TypeMetadata, error) { return meta("Repo1", "Repository"), nil })
	s.Register(func() (TypeMetadata, error) { return meta("Svc1", "Service"), nil })

	got := s.Scan(ImplementsCapability("Repository"), nil)
	assert.Equal(t, []string{"Repo1"}, keys(got))
}

func TestScanToleratesLoaderFailureAndReportsIt(t *testing.T) {
	s := New()
	s.Register(func() (TypeMetadata, error) { return meta("Good"), nil })
	s.Register(func() (TypeMetadata, error) { return TypeMetadata{}, errors.New("boom") })

	var reported []error
	got := s.Scan(nil, func(err error) { reported = append(reported, err) })

	assert.Equal(t, []string{"Good"}, keys(got))
	assert.Len(t, reported, 1)
}

func TestScanExcludesSynthetic(t *testing.T) {
	s := New()
	s.Register(func() (TypeMetadata, error) {
		m := meta("Generated")
		m.IsSynthetic = true
		return m, nil
	})
	assert.Empty(t, s.Scan(nil, nil))
}

func TestPredicateCombinators(t *testing.T) {
	p := And(ImplementsCapability("Service"), Not(HasAnnotation("Deprecated")))
	a := meta("A", "Service")
	a.Annotations = map[string]bool{"Deprecated": true}
	b := meta("B", "Service")

	assert.False(t, p(a))
	assert.True(t, p(b))
}

func keys(ms []TypeMetadata) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Key
	}
	return out
}
