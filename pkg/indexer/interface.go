// Package indexer provides strategies over index trees (spec component
// C5): static fixed-width keys, string-path keys, and composite (nested)
// keys, each offering get/add/replace/remove/enumerate/diff.
package indexer

import (
	"context"

	"github.com/forgecore/forge/internal/content"
	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/indextree"
)

// Indexer is the common strategy interface every key scheme implements.
type Indexer interface {
	// Get looks up key in the tree rooted at root.
	Get(ctx context.Context, p content.Provider, root contentid.ID, key []byte) (*indextree.Leaf, bool, error)

	// Add inserts key -> leaf, failing if key already exists.
	Add(ctx context.Context, p content.Provider, root contentid.ID, key []byte, leaf indextree.Leaf) (contentid.ID, error)

	// Replace overwrites the leaf at an existing key, failing if absent.
	Replace(ctx context.Context, p content.Provider, root contentid.ID, key []byte, leaf indextree.Leaf) (contentid.ID, error)

	// Remove deletes key, returning the new root and the removed leaf.
	Remove(ctx context.Context, p content.Provider, root contentid.ID, key []byte) (contentid.ID, *indextree.Leaf, error)

	// EnumerateLeaves yields (key, leaf) pairs in this indexer's natural
	// order.
	EnumerateLeaves(ctx context.Context, p content.Provider, root contentid.ID, yield func(key []byte, leaf indextree.Leaf) (bool, error)) error
}

// Side labels a diff entry as present on only the left tree or only the
// right tree.
type Side int

const (
	SideLeft Side = iota
	SideRight
)

// DiffEntry is one (side, key, leaf) triple yielded by DiffLeaves.
type DiffEntry struct {
	Side Side
	Key  []byte
	Leaf indextree.Leaf
}
