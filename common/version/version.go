// Package version holds build metadata injected with -ldflags.
package version

import "fmt"

var (
	// Version is the release tag.
	Version = "v0.0.0-dev"
	// GitCommit is the source revision.
	GitCommit = "unknown"
	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// String renders the metadata for `botdash --version` and /health.
func String() string {
	return fmt.Sprintf("botdash %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
