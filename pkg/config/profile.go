package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// ProfileLoaderOptions configures LoadProfile (spec §6).
type ProfileLoaderOptions struct {
	// ConfigDir is the directory to search for application.<ext> and
	// application-<profile>.<ext>.
	ConfigDir string
	// BaseName defaults to "application".
	BaseName string
	// Extensions tried in order, defaults to []string{"yaml", "yml", "json"}.
	Extensions []string
	// ProfileEnvKey is the environment variable / property consulted for
	// the requested profile, defaults to "KATALYST_PROFILE".
	ProfileEnvKey string
}

func (o ProfileLoaderOptions) withDefaults() ProfileLoaderOptions {
	if o.BaseName == "" {
		o.BaseName = "application"
	}
	if len(o.Extensions) == 0 {
		o.Extensions = []string{"yaml", "yml", "json"}
	}
	if o.ProfileEnvKey == "" {
		o.ProfileEnvKey = "KATALYST_PROFILE"
	}
	return o
}

// LoadProfile loads the base file, and if a profile is requested (via
// ProfileEnvKey), deep-merges the per-profile file onto it — map keys
// recurse, non-map values replace. A requested profile whose file is
// missing or empty is an error; an absent base file is not (an empty config
// is valid).
// ${NAME:default} placeholders in string values are substituted recursively
// against the process environment.
func LoadProfile(opts ProfileLoaderOptions) (*ViperProvider, error) {
	opts = opts.withDefaults()

	base, err := loadFile(opts.ConfigDir, opts.BaseName, opts.Extensions)
	if err != nil {
		return nil, err
	}
	merged := base
	if merged == nil {
		merged = map[string]any{}
	}

	profile := strings.TrimSpace(os.Getenv(opts.ProfileEnvKey))
	if profile != "" {
		profileName := opts.BaseName + "-" + profile
		overlay, err := loadFile(opts.ConfigDir, profileName, opts.Extensions)
		if err != nil {
			return nil, fmt.Errorf("config: profile %q requested but %s could not be read: %w", profile, profileName, err)
		}
		if len(overlay) == 0 {
			return nil, fmt.Errorf("config: profile %q requested but %s.<ext> is missing or empty", profile, profileName)
		}
		merged = deepMerge(merged, overlay)
	}

	merged = substituteTree(merged).(map[string]any)

	v := viper.New()
	if err := v.MergeConfigMap(merged); err != nil {
		return nil, fmt.Errorf("config: failed to load merged config: %w", err)
	}
	return NewViperProvider(v), nil
}

// loadFile returns nil, nil when no candidate extension is found — an
// absent base file is not itself an error.
func loadFile(dir, baseName string, extensions []string) (map[string]any, error) {
	for _, ext := range extensions {
		path := baseName + "." + ext
		if dir != "" {
			path = dir + "/" + path
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		return v.AllSettings(), nil
	}
	return nil, nil
}

// deepMerge merges overlay onto base: map values recurse, anything else
// in overlay replaces the corresponding base value.
func deepMerge(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, ov := range overlay {
		if bv, ok := out[k]; ok {
			bm, bok := bv.(map[string]any)
			om, ook := ov.(map[string]any)
			if bok && ook {
				out[k] = deepMerge(bm, om)
				continue
			}
		}
		out[k] = ov
	}
	return out
}

var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([^}]*))?\}`)

// substituteTree walks a config tree substituting ${NAME:default} in every
// string value, recursively, so a default itself containing a placeholder
// still resolves.
func substituteTree(node any) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = substituteTree(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = substituteTree(val)
		}
		return out
	case string:
		return substituteString(v, 0)
	default:
		return v
	}
}

func substituteString(s string, depth int) string {
	if depth > 10 {
		return s
	}
	replaced := placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		groups := placeholderRe.FindStringSubmatch(match)
		name, def := groups[1], groups[2]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return def
	})
	if replaced == s {
		return replaced
	}
	return substituteString(replaced, depth+1)
}
