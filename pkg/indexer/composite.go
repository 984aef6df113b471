package indexer

import (
	"context"
	"encoding/binary"

	"github.com/forgecore/forge/internal/content"
	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
	"github.com/forgecore/forge/internal/indextree"
)

// Composite nests a Second indexer's tree as a TreeRoot leaf under each key
// of a First indexer's tree (spec 4.3.3), e.g. a string-path outer index of
// static-keyed inner indexes. Keys are framed with Compose/Decompose so the
// outer/inner split round-trips exactly.
type Composite struct {
	First, Second Indexer
}

// NewComposite returns a composite indexer nesting second-indexer trees
// under a first-indexer tree.
func NewComposite(first, second Indexer) *Composite {
	return &Composite{First: first, Second: second}
}

// Compose frames (outer, inner) into a single key carrying a length prefix
// for outer, so Decompose(Compose(a, b)) == (a, b) always.
func Compose(outer, inner []byte) []byte {
	key := make([]byte, 4+len(outer)+len(inner))
	binary.BigEndian.PutUint32(key[:4], uint32(len(outer)))
	copy(key[4:], outer)
	copy(key[4+len(outer):], inner)
	return key
}

// Decompose splits a key produced by Compose back into its outer and inner
// parts.
func Decompose(key []byte) (outer, inner []byte, err error) {
	if len(key) < 4 {
		return nil, nil, ferr.New(ferr.CodeInvalidIndexKey, "composite key missing length prefix")
	}
	n := binary.BigEndian.Uint32(key[:4])
	key = key[4:]
	if uint64(n) > uint64(len(key)) {
		return nil, nil, ferr.New(ferr.CodeInvalidIndexKey, "composite key length prefix out of range")
	}
	return key[:n], key[n:], nil
}

func (c *Composite) innerRoot(ctx context.Context, p content.Provider, root contentid.ID, outer []byte) (contentid.ID, bool, error) {
	leaf, ok, err := c.First.Get(ctx, p, root, outer)
	if err != nil || !ok {
		return contentid.ID{}, ok, err
	}
	if leaf.Kind != indextree.LeafTreeRoot {
		return contentid.ID{}, false, ferr.New(ferr.CodeCorruptedTree, "found a resource leaf where a nested tree-root was expected")
	}
	return leaf.ID, true, nil
}

func (c *Composite) Get(ctx context.Context, p content.Provider, root contentid.ID, key []byte) (*indextree.Leaf, bool, error) {
	outer, inner, err := Decompose(key)
	if err != nil {
		return nil, false, err
	}
	innerRoot, ok, err := c.innerRoot(ctx, p, root, outer)
	if err != nil || !ok {
		return nil, ok, err
	}
	return c.Second.Get(ctx, p, innerRoot, inner)
}

func (c *Composite) Add(ctx context.Context, p content.Provider, root contentid.ID, key []byte, leaf indextree.Leaf) (contentid.ID, error) {
	outer, inner, err := Decompose(key)
	if err != nil {
		return contentid.ID{}, err
	}
	innerRoot, exists, err := c.innerRoot(ctx, p, root, outer)
	if err != nil {
		return contentid.ID{}, err
	}
	if !exists {
		innerRoot = indextree.EmptyTreeID()
	}
	newInnerRoot, err := c.Second.Add(ctx, p, innerRoot, inner, leaf)
	if err != nil {
		return contentid.ID{}, err
	}
	outerLeaf := indextree.Leaf{Kind: indextree.LeafTreeRoot, ID: newInnerRoot}
	if exists {
		return c.First.Replace(ctx, p, root, outer, outerLeaf)
	}
	return c.First.Add(ctx, p, root, outer, outerLeaf)
}

func (c *Composite) Replace(ctx context.Context, p content.Provider, root contentid.ID, key []byte, leaf indextree.Leaf) (contentid.ID, error) {
	outer, inner, err := Decompose(key)
	if err != nil {
		return contentid.ID{}, err
	}
	innerRoot, exists, err := c.innerRoot(ctx, p, root, outer)
	if err != nil {
		return contentid.ID{}, err
	}
	if !exists {
		return contentid.ID{}, ferr.New(ferr.CodeLeafNotFound, "index key does not exist")
	}
	newInnerRoot, err := c.Second.Replace(ctx, p, innerRoot, inner, leaf)
	if err != nil {
		return contentid.ID{}, err
	}
	return c.First.Replace(ctx, p, root, outer, indextree.Leaf{Kind: indextree.LeafTreeRoot, ID: newInnerRoot})
}

func (c *Composite) Remove(ctx context.Context, p content.Provider, root contentid.ID, key []byte) (contentid.ID, *indextree.Leaf, error) {
	outer, inner, err := Decompose(key)
	if err != nil {
		return contentid.ID{}, nil, err
	}
	innerRoot, exists, err := c.innerRoot(ctx, p, root, outer)
	if err != nil {
		return contentid.ID{}, nil, err
	}
	if !exists {
		return contentid.ID{}, nil, ferr.New(ferr.CodeLeafNotFound, "index key does not exist")
	}
	newInnerRoot, removed, err := c.Second.Remove(ctx, p, innerRoot, inner)
	if err != nil {
		return contentid.ID{}, nil, err
	}
	if newInnerRoot == indextree.EmptyTreeID() {
		newRoot, _, err := c.First.Remove(ctx, p, root, outer)
		return newRoot, removed, err
	}
	newRoot, err := c.First.Replace(ctx, p, root, outer, indextree.Leaf{Kind: indextree.LeafTreeRoot, ID: newInnerRoot})
	return newRoot, removed, err
}

func (c *Composite) EnumerateLeaves(ctx context.Context, p content.Provider, root contentid.ID, yield func([]byte, indextree.Leaf) (bool, error)) error {
	return c.First.EnumerateLeaves(ctx, p, root, func(outer []byte, outerLeaf indextree.Leaf) (bool, error) {
		if outerLeaf.Kind != indextree.LeafTreeRoot {
			return false, ferr.New(ferr.CodeCorruptedTree, "found a resource leaf where a nested tree-root was expected")
		}
		cont := true
		var yieldErr error
		err := c.Second.EnumerateLeaves(ctx, p, outerLeaf.ID, func(inner []byte, leaf indextree.Leaf) (bool, error) {
			cont, yieldErr = yield(Compose(outer, inner), leaf)
			return cont, yieldErr
		})
		if err != nil {
			return false, err
		}
		return cont, yieldErr
	})
}
