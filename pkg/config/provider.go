// Package config defines the ConfigProvider contract Katalyst consumes from
// external collaborators (spec §6) plus two concrete implementations: a
// viper-backed production provider and a plain map provider for tests.
package config

import "strings"

// Provider is the read-only keyed lookup contract the framework core
// consumes. The core never parses YAML/properties itself; it only calls
// through this interface.
type Provider interface {
	Get(key string) (any, bool)
	GetString(key, def string) string
	GetInt(key string, def int) int
	GetLong(key string, def int64) int64
	GetBoolean(key string, def bool) bool
	GetList(key string) []string
	HasKey(key string) bool
	AllKeys() []string
}

// Validator is the startup configuration check contract (spec §6):
// Validate returns an error for a rejected configuration. Nothing in this
// module calls it; katalyst.Boot runs no configuration validation.
type Validator interface {
	Validate() error
}

// Composite chains providers; the first provider for which HasKey(key) is
// true wins, matching spec §6's "first provider that hasKey wins" rule.
type Composite struct {
	providers []Provider
}

func NewComposite(providers ...Provider) *Composite {
	return &Composite{providers: providers}
}

func (c *Composite) pick(key string) (Provider, bool) {
	for _, p := range c.providers {
		if p.HasKey(key) {
			return p, true
		}
	}
	return nil, false
}

func (c *Composite) Get(key string) (any, bool) {
	if p, ok := c.pick(key); ok {
		return p.Get(key)
	}
	return nil, false
}

func (c *Composite) GetString(key, def string) string {
	if p, ok := c.pick(key); ok {
		return p.GetString(key, def)
	}
	return def
}

func (c *Composite) GetInt(key string, def int) int {
	if p, ok := c.pick(key); ok {
		return p.GetInt(key, def)
	}
	return def
}

func (c *Composite) GetLong(key string, def int64) int64 {
	if p, ok := c.pick(key); ok {
		return p.GetLong(key, def)
	}
	return def
}

func (c *Composite) GetBoolean(key string, def bool) bool {
	if p, ok := c.pick(key); ok {
		return p.GetBoolean(key, def)
	}
	return def
}

func (c *Composite) GetList(key string) []string {
	if p, ok := c.pick(key); ok {
		return p.GetList(key)
	}
	return nil
}

func (c *Composite) HasKey(key string) bool {
	_, ok := c.pick(key)
	return ok
}

func (c *Composite) AllKeys() []string {
	seen := map[string]bool{}
	var keys []string
	for _, p := range c.providers {
		for _, k := range p.AllKeys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// parseBool accepts spec §6's expanded boolean vocabulary:
// true/false | yes/no | on/off | 1/0, case-insensitive.
func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "on", "1":
		return true, true
	case "false", "no", "off", "0":
		return false, true
	default:
		return false, false
	}
}
