// Package version records build metadata injected at link time.
package version

import "fmt"

// Populated via -ldflags "-X costlens/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a single-line human-readable version string.
func Info() string {
	return fmt.Sprintf("costlens %s (commit %s, built %s)", Version, Commit, Date)
}
