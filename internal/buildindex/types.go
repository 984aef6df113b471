package buildindex

import "github.com/forgecore/forge/internal/contentid"

// CompiledResourceInfo is one output of a compiler invocation, recorded in
// the build index and re-emitted verbatim on a cache hit.
type CompiledResourceInfo struct {
	Path       ResourcePathID
	Identifier contentid.ID
}

// CompiledResourceReference is an (from_path, to_path) cross-reference a
// compile emits alongside its outputs; the linker materializes these into
// on-disk cross-references.
type CompiledResourceReference struct {
	From ResourcePathID
	To   ResourcePathID
}

type wireCompiledResourceInfo struct {
	Path       string `json:"path"`
	Identifier string `json:"identifier"`
}

type wireCompiledResourceReference struct {
	From string `json:"from"`
	To   string `json:"to"`
}
