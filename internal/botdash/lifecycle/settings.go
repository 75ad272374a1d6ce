package lifecycle

import (
	"fmt"
	"sort"
	"strings"
)

// Setting is one environment entry injected into a bot instance.
type Setting struct {
	Key   string
	Value string
}

// Reserved variables set by the manager itself.
var reservedKeys = map[string]bool{
	EnvSecretToken: true,
	EnvBotID:       true,
	EnvBotName:     true,
}

// ValidateSettings rejects entries that would make the instance environment
// ambiguous: empty keys, keys with '=' or control characters, values with
// NUL or line breaks, duplicate keys, and keys that shadow reserved
// variables.
func ValidateSettings(settings []Setting) error {
	seen := make(map[string]bool, len(settings))
	for _, s := range settings {
		if err := ValidateSetting(s.Key, s.Value); err != nil {
			return err
		}
		if seen[s.Key] {
			return fmt.Errorf("setting %q given more than once", s.Key)
		}
		seen[s.Key] = true
	}
	return nil
}

// ValidateSetting checks a single key/value pair.
func ValidateSetting(key, value string) error {
	if key == "" {
		return fmt.Errorf("setting key must not be empty")
	}
	if strings.ContainsAny(key, "=\x00\r\n") {
		return fmt.Errorf("setting key %q contains '=', NUL or a line break", key)
	}
	if reservedKeys[key] {
		return fmt.Errorf("setting key %q is reserved", key)
	}
	if strings.ContainsAny(value, "\x00\r\n") {
		return fmt.Errorf("setting %q: value contains NUL or a line break", key)
	}
	return nil
}

// SettingsFromMap converts a key/value map into settings ordered by key.
func SettingsFromMap(m map[string]string) []Setting {
	out := make([]Setting, 0, len(m))
	for k, v := range m {
		out = append(out, Setting{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// envEntries renders settings as KEY=VALUE, ordered by key so repeated
// deploys of the same bot produce identical environments.
func envEntries(settings []Setting) []string {
	sorted := append([]Setting(nil), settings...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	out := make([]string, 0, len(sorted))
	for _, s := range sorted {
		out = append(out, s.Key+"="+s.Value)
	}
	return out
}
