// Package environment reads botdash configuration from process environment
// variables.
//
// Every variable is looked up under a common prefix (BOTDASH_ by default) so
// the dashboard never collides with variables meant for the engine client
// (DOCKER_HOST, DOCKER_CERT_PATH, ...). Malformed values fall back to the
// supplied default; callers that need hard failures use Required.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	units "github.com/docker/go-units"
)

// DefaultPrefix is the prefix used by Default.
const DefaultPrefix = "BOTDASH"

// Env resolves variable names under a prefix.
type Env struct {
	prefix string
}

// New returns an Env that looks variables up as PREFIX_NAME. An empty prefix
// disables prefixing.
func New(prefix string) Env {
	return Env{prefix: strings.TrimSuffix(strings.ToUpper(prefix), "_")}
}

// Default returns an Env using DefaultPrefix.
func Default() Env {
	return New(DefaultPrefix)
}

// Key returns the fully qualified variable name for name.
func (e Env) Key(name string) string {
	if e.prefix == "" {
		return name
	}
	return e.prefix + "_" + name
}

// Lookup returns the raw value and whether the variable is set at all.
func (e Env) Lookup(name string) (string, bool) {
	return os.LookupEnv(e.Key(name))
}

func (e Env) value(name string) string {
	return strings.TrimSpace(os.Getenv(e.Key(name)))
}

// String returns the variable value, or def when unset or blank.
func (e Env) String(name, def string) string {
	if v := e.value(name); v != "" {
		return v
	}
	return def
}

// Required returns the variable value or an error naming the missing key.
func (e Env) Required(name string) (string, error) {
	v := e.value(name)
	if v == "" {
		return "", fmt.Errorf("environment variable %s is required", e.Key(name))
	}
	return v, nil
}

// Bool parses the variable with strconv.ParseBool.
func (e Env) Bool(name string, def bool) bool {
	v := e.value(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Int parses the variable as a base-10 integer.
func (e Env) Int(name string, def int) int {
	v := e.value(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Duration parses the variable with time.ParseDuration ("10s", "2m"). A bare
// integer is read as seconds, matching how the engine API expresses stop
// timeouts.
func (e Env) Duration(name string, def time.Duration) time.Duration {
	v := e.value(name)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Bytes parses a human-readable memory size ("512m", "1g", "268435456")
// using the same binary units the engine CLI accepts.
func (e Env) Bytes(name string, def int64) int64 {
	v := e.value(name)
	if v == "" {
		return def
	}
	n, err := units.RAMInBytes(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// List splits a comma-separated variable, dropping blank elements.
func (e Env) List(name string, def []string) []string {
	v := e.value(name)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
