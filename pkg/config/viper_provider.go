package config

import (
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperProvider wraps a *viper.Viper as a Provider, the way the teacher's
// cli/root.go binds flags, environment variables and a config file search
// path into one viper instance before handing it to the rest of the app.
type ViperProvider struct {
	v *viper.Viper
}

func NewViperProvider(v *viper.Viper) *ViperProvider {
	return &ViperProvider{v: v}
}

func (p *ViperProvider) Get(key string) (any, bool) {
	if !p.v.IsSet(key) {
		return nil, false
	}
	return p.v.Get(key), true
}

func (p *ViperProvider) HasKey(key string) bool {
	return p.v.IsSet(key)
}

func (p *ViperProvider) GetString(key, def string) string {
	if !p.v.IsSet(key) {
		return def
	}
	return p.v.GetString(key)
}

// GetInt falls back to def on a parse failure rather than viper's own
// GetInt, which swallows the cast error and returns 0 (spec §6).
func (p *ViperProvider) GetInt(key string, def int) int {
	if !p.v.IsSet(key) {
		return def
	}
	n, err := cast.ToIntE(p.v.Get(key))
	if err != nil {
		return def
	}
	return n
}

// GetLong falls back to def on a parse failure, for the same reason as
// GetInt.
func (p *ViperProvider) GetLong(key string, def int64) int64 {
	if !p.v.IsSet(key) {
		return def
	}
	n, err := cast.ToInt64E(p.v.Get(key))
	if err != nil {
		return def
	}
	return n
}

func (p *ViperProvider) GetBoolean(key string, def bool) bool {
	if !p.v.IsSet(key) {
		return def
	}
	if raw, ok := p.v.Get(key).(string); ok {
		if b, ok := parseBool(raw); ok {
			return b
		}
	}
	return p.v.GetBool(key)
}

func (p *ViperProvider) GetList(key string) []string {
	if !p.v.IsSet(key) {
		return nil
	}
	return p.v.GetStringSlice(key)
}

func (p *ViperProvider) AllKeys() []string {
	return p.v.AllKeys()
}
