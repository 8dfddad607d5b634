package config

import (
	"sort"
	"strconv"
	"strings"
)

// MapProvider is a flat, dot-path-keyed in-memory Provider. It backs unit
// tests and the composite-provider invariant without pulling in viper.
type MapProvider struct {
	values map[string]any
}

func NewMapProvider(values map[string]any) *MapProvider {
	flat := map[string]any{}
	for k, v := range values {
		flat[k] = v
	}
	return &MapProvider{values: flat}
}

func (m *MapProvider) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *MapProvider) HasKey(key string) bool {
	_, ok := m.values[key]
	return ok
}

func (m *MapProvider) GetString(key, def string) string {
	v, ok := m.values[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return def
	}
}

func (m *MapProvider) GetInt(key string, def int) int {
	v, ok := m.values[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
		return def
	default:
		return def
	}
}

func (m *MapProvider) GetLong(key string, def int64) int64 {
	v, ok := m.values[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return n
		}
		return def
	default:
		return def
	}
}

func (m *MapProvider) GetBoolean(key string, def bool) bool {
	v, ok := m.values[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, ok := parseBool(t); ok {
			return b
		}
		return def
	default:
		return def
	}
}

func (m *MapProvider) GetList(key string) []string {
	v, ok := m.values[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case string:
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	default:
		return nil
	}
}

func (m *MapProvider) AllKeys() []string {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
