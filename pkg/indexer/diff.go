package indexer

import (
	"bytes"
	"context"
	"sort"

	"github.com/forgecore/forge/internal/content"
	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/indextree"
)

type keyedLeaf struct {
	key  []byte
	leaf indextree.Leaf
}

func collect(ctx context.Context, p content.Provider, idx Indexer, root contentid.ID) ([]keyedLeaf, error) {
	var out []keyedLeaf
	err := idx.EnumerateLeaves(ctx, p, root, func(key []byte, leaf indextree.Leaf) (bool, error) {
		out = append(out, keyedLeaf{key: append([]byte(nil), key...), leaf: leaf})
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].key, out[j].key) < 0 })
	return out, nil
}

// DiffLeaves enumerates left and right (trees of the same indexer strategy)
// and returns the keys present on only one side, sorted first by Side then
// by Key (spec 4.3: "enumeration and diff"). Keys present on both sides
// with equal leaves are omitted; keys present on both sides with differing
// leaves are reported once for each side, so a caller can tell which
// content each side points to.
func DiffLeaves(ctx context.Context, p content.Provider, idx Indexer, left, right contentid.ID) ([]DiffEntry, error) {
	leftLeaves, err := collect(ctx, p, idx, left)
	if err != nil {
		return nil, err
	}
	rightLeaves, err := collect(ctx, p, idx, right)
	if err != nil {
		return nil, err
	}

	var entries []DiffEntry
	i, j := 0, 0
	for i < len(leftLeaves) && j < len(rightLeaves) {
		cmp := bytes.Compare(leftLeaves[i].key, rightLeaves[j].key)
		switch {
		case cmp < 0:
			entries = append(entries, DiffEntry{Side: SideLeft, Key: leftLeaves[i].key, Leaf: leftLeaves[i].leaf})
			i++
		case cmp > 0:
			entries = append(entries, DiffEntry{Side: SideRight, Key: rightLeaves[j].key, Leaf: rightLeaves[j].leaf})
			j++
		default:
			if leftLeaves[i].leaf != rightLeaves[j].leaf {
				entries = append(entries, DiffEntry{Side: SideLeft, Key: leftLeaves[i].key, Leaf: leftLeaves[i].leaf})
				entries = append(entries, DiffEntry{Side: SideRight, Key: rightLeaves[j].key, Leaf: rightLeaves[j].leaf})
			}
			i++
			j++
		}
	}
	for ; i < len(leftLeaves); i++ {
		entries = append(entries, DiffEntry{Side: SideLeft, Key: leftLeaves[i].key, Leaf: leftLeaves[i].leaf})
	}
	for ; j < len(rightLeaves); j++ {
		entries = append(entries, DiffEntry{Side: SideRight, Key: rightLeaves[j].key, Leaf: rightLeaves[j].leaf})
	}

	sort.SliceStable(entries, func(a, b int) bool {
		if entries[a].Side != entries[b].Side {
			return entries[a].Side < entries[b].Side
		}
		return bytes.Compare(entries[a].Key, entries[b].Key) < 0
	})
	return entries, nil
}
