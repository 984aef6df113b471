package buildindex

import (
	"encoding/binary"
	"hash/fnv"
)

// CombineHash folds values into a single deterministic 64-bit digest,
// order-sensitive so a node's own hash and its dependencies' hashes always
// combine the same way given the same deps ordering. Exported so
// internal/buildengine can derive a context_hash from (transform,
// compiler_hash, core_version) with the same combination rule used for
// source hashes.
func CombineHash(values ...uint64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range values {
		binary.BigEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

func combineHash(values ...uint64) uint64 { return CombineHash(values...) }
