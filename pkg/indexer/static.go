package indexer

import (
	"context"

	"github.com/forgecore/forge/internal/content"
	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
	"github.com/forgecore/forge/internal/indextree"
)

// Static is a fixed-width-key indexer (spec 4.3.1). Keys are Width bytes,
// interpreted big-endian; the tree fans out one byte per level by
// default, bounded by Width levels of depth.
type Static struct {
	Width int
}

// NewStatic returns a static indexer for W-byte keys.
func NewStatic(width int) *Static { return &Static{Width: width} }

func (s *Static) validate(key []byte) error {
	if len(key) != s.Width {
		return ferr.New(ferr.CodeInvalidIndexKey, "static index key has the wrong width")
	}
	return nil
}

func (s *Static) fragments(key []byte) [][]byte {
	frags := make([][]byte, len(key))
	for i, b := range key {
		frags[i] = []byte{b}
	}
	return frags
}

func (s *Static) Get(ctx context.Context, p content.Provider, root contentid.ID, key []byte) (*indextree.Leaf, bool, error) {
	if err := s.validate(key); err != nil {
		return nil, false, err
	}
	return indextree.Walk(ctx, p, root, s.fragments(key))
}

func (s *Static) Add(ctx context.Context, p content.Provider, root contentid.ID, key []byte, leaf indextree.Leaf) (contentid.ID, error) {
	if err := s.validate(key); err != nil {
		return contentid.ID{}, err
	}
	return indextree.Mutate(ctx, p, root, s.fragments(key), &leaf, indextree.ModeAdd)
}

func (s *Static) Replace(ctx context.Context, p content.Provider, root contentid.ID, key []byte, leaf indextree.Leaf) (contentid.ID, error) {
	if err := s.validate(key); err != nil {
		return contentid.ID{}, err
	}
	return indextree.Mutate(ctx, p, root, s.fragments(key), &leaf, indextree.ModeReplace)
}

func (s *Static) Remove(ctx context.Context, p content.Provider, root contentid.ID, key []byte) (contentid.ID, *indextree.Leaf, error) {
	if err := s.validate(key); err != nil {
		return contentid.ID{}, nil, err
	}
	return indextree.Remove(ctx, p, root, s.fragments(key), false)
}

func (s *Static) EnumerateLeaves(ctx context.Context, p content.Provider, root contentid.ID, yield func([]byte, indextree.Leaf) (bool, error)) error {
	join := func(frags [][]byte) []byte {
		out := make([]byte, 0, len(frags))
		for _, f := range frags {
			out = append(out, f...)
		}
		return out
	}
	return indextree.Enumerate(ctx, p, root, join, func(e indextree.LeafEntry) (bool, error) {
		return yield(e.Key, e.Leaf)
	})
}
