// Package redact scrubs bot credentials from text before it is logged,
// persisted in deployment history, or returned to callers.
//
// Engine errors routinely echo back parts of the create request (including
// the environment), so anything derived from an engine error must pass
// through here before leaving the lifecycle layer.
package redact

import (
	"errors"
	"strings"
)

// Placeholder replaces every scrubbed value.
const Placeholder = "[REDACTED]"

// minLen guards against masking short common substrings.
const minLen = 4

// sensitiveEnvKeys are environment names whose values are always masked.
var sensitiveEnvKeys = []string{"TOKEN", "SECRET", "PASSWORD", "PASSWD", "API_KEY", "APIKEY", "CREDENTIAL", "PRIVATE_KEY"}

// String replaces each occurrence of every value in s with Placeholder.
func String(s string, values ...string) string {
	for _, v := range values {
		if len(v) < minLen {
			continue
		}
		s = strings.ReplaceAll(s, v, Placeholder)
	}
	return s
}

// Error returns an error whose message has values scrubbed. The original
// error stays reachable through errors.Is / errors.As so callers can still
// classify it.
func Error(err error, values ...string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	clean := String(msg, values...)
	if clean == msg {
		return err
	}
	return &scrubbed{msg: clean, err: err}
}

type scrubbed struct {
	msg string
	err error
}

func (s *scrubbed) Error() string { return s.msg }
func (s *scrubbed) Unwrap() error { return s.err }

// Env returns a copy of a KEY=VALUE environment list where values of
// sensitive-looking keys are masked. Entries without '=' are kept as is.
func Env(env []string) []string {
	out := make([]string, len(env))
	for i, kv := range env {
		k, _, ok := strings.Cut(kv, "=")
		if ok && SensitiveKey(k) {
			out[i] = k + "=" + Placeholder
			continue
		}
		out[i] = kv
	}
	return out
}

// SensitiveKey reports whether an environment or setting key looks like it
// carries a credential.
func SensitiveKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, word := range sensitiveEnvKeys {
		if strings.Contains(upper, word) {
			return true
		}
	}
	return false
}

// Is reports whether err (or anything it wraps) was scrubbed by Error.
func Is(err error) bool {
	var s *scrubbed
	return errors.As(err, &s)
}
