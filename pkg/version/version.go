// Package version provides build and core-version information for forge.
package version

import (
	"fmt"
	"os"
	"runtime"
)

// Version is the forge binary's release version.
// Set via ldflags at build time, or defaults to dev.
// GoReleaser sets: -X github.com/forgecore/forge/pkg/version.Version={{.Version}}
var Version = "dev"

// Build information set via ldflags at build time.
var (
	// Commit is the git commit hash.
	Commit = "unknown"

	// Date is the build date in RFC3339 format.
	Date = "unknown"

	// GoVersion is the Go version used to build the binary (set at runtime).
	GoVersion = runtime.Version()

	// CoreDataBuildVersion is the compiled-in core version string stamped
	// into every build index and compared against every discovered
	// compiler's build_version. Overridable at runtime by
	// CORE_DATA_BUILD_VERSION so tests can pin a stable value without
	// rebuilding.
	CoreDataBuildVersion = "dev"
)

// CoreVersion returns the core version string the build engine and
// compiler registry should use: CORE_DATA_BUILD_VERSION if set, otherwise
// the compiled-in CoreDataBuildVersion.
func CoreVersion() string {
	if v := os.Getenv("CORE_DATA_BUILD_VERSION"); v != "" {
		return v
	}
	return CoreDataBuildVersion
}

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	Date        string `json:"date"`
	GoVersion   string `json:"go_version"`
	CoreVersion string `json:"core_version"`
	OS          string `json:"os"`
	Arch        string `json:"arch"`
}

// String returns a formatted version string with all build info.
func String() string {
	return fmt.Sprintf("forge %s (commit: %s, built: %s, go: %s, core: %s)",
		Version, Commit, Date, GoVersion, CoreVersion())
}

// Short returns just the release version string.
func Short() string {
	return Version
}

// GetInfo returns structured version information.
func GetInfo() BuildInfo {
	return BuildInfo{
		Version:     Version,
		Commit:      Commit,
		Date:        Date,
		GoVersion:   GoVersion,
		CoreVersion: CoreVersion(),
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
	}
}
