package buildengine

import (
	"time"

	"github.com/forgecore/forge/internal/buildindex"
	"github.com/forgecore/forge/internal/manifest"
)

// CompileStat is one node's timing and cache outcome, accumulated per
// compile call (section 4.6: "Returns a BuildReport... plus one CompileStat
// per compiled resource").
type CompileStat struct {
	Path      buildindex.ResourcePathID
	Duration  time.Duration
	FromCache bool
}

// BuildReport is returned from Compile: the manifest as merged, plus the
// per-node statistics the caller can use for cache-hit-rate telemetry.
type BuildReport struct {
	Manifest manifest.Manifest
	Stats    []CompileStat
}
