package buildengine

import (
	"hash/fnv"

	"github.com/forgecore/forge/internal/buildindex"
)

// hashString folds s into the FNV-1a 64-bit space so it can be combined
// with numeric hashes via buildindex.CombineHash.
func hashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// contextHash computes `H(transform, compiler_hash, core_version)`, the
// environment half of the build cache key (section 4.5/4.6).
func contextHash(transform string, compilerHash uint64, coreVersion string) uint64 {
	return buildindex.CombineHash(hashString(transform), compilerHash, hashString(coreVersion))
}
