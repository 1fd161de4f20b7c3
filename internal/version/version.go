// Package version holds build metadata stamped into the commune binary.
package version

import "fmt"

// Set at link time, e.g.
//
//	-X github.com/d9705996/commune/internal/version.Version=v1.2.3
//	-X github.com/d9705996/commune/internal/version.Commit=abc1234
//	-X github.com/d9705996/commune/internal/version.Date=2026-02-26T00:00:00Z
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the build as "v1.2.3 (abc1234, 2026-02-26T00:00:00Z)".
func String() string {
	return fmt.Sprintf("%s (%s, %s)", Version, Commit, Date)
}
