// Package version holds the version string recorded in each file-cache entry
// so stale caches produced by an older runtime can be rejected.
package version

import (
	"runtime/debug"
)

// Default is the version fallback used when the binary was built without
// module information (e.g. `go run` inside this repository).
const Default = "dev"

// modulePath is the path of this module, looked up in the embedded build info.
const modulePath = "github.com/multiversx/wasmer"

// GetRuntimeVersion returns the version of this module as recorded in the
// calling binary's build info, or Default when unavailable.
func GetRuntimeVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Default
	}
	for _, dep := range info.Deps {
		if dep.Path == modulePath {
			return dep.Version
		}
	}
	return Default
}
