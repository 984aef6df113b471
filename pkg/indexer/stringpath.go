package indexer

import (
	"bytes"
	"context"

	"github.com/forgecore/forge/internal/content"
	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
	"github.com/forgecore/forge/internal/indextree"
)

// StringPath is a UTF-8 path-segment indexer (spec 4.3.2). Keys must begin
// with Separator; a trailing Separator is stripped before splitting so
// "/a/b" and "/a/b/" address the same leaf. Each path segment becomes one
// tree level.
type StringPath struct {
	Separator         byte
	KeepEmptyBranches bool
}

// NewStringPath returns a string-path indexer splitting on sep (typically
// '/').
func NewStringPath(sep byte) *StringPath {
	return &StringPath{Separator: sep}
}

func (s *StringPath) canonicalize(key []byte) ([]byte, error) {
	if len(key) == 0 || key[0] != s.Separator {
		return nil, ferr.New(ferr.CodeInvalidIndexKey, "string-path key must begin with the separator")
	}
	key = key[1:]
	if len(key) > 0 && key[len(key)-1] == s.Separator {
		key = key[:len(key)-1]
	}
	return key, nil
}

func (s *StringPath) fragments(key []byte) [][]byte {
	if len(key) == 0 {
		return nil
	}
	return bytes.Split(key, []byte{s.Separator})
}

func (s *StringPath) Get(ctx context.Context, p content.Provider, root contentid.ID, key []byte) (*indextree.Leaf, bool, error) {
	canon, err := s.canonicalize(key)
	if err != nil {
		return nil, false, err
	}
	return indextree.Walk(ctx, p, root, s.fragments(canon))
}

func (s *StringPath) Add(ctx context.Context, p content.Provider, root contentid.ID, key []byte, leaf indextree.Leaf) (contentid.ID, error) {
	canon, err := s.canonicalize(key)
	if err != nil {
		return contentid.ID{}, err
	}
	return indextree.Mutate(ctx, p, root, s.fragments(canon), &leaf, indextree.ModeAdd)
}

func (s *StringPath) Replace(ctx context.Context, p content.Provider, root contentid.ID, key []byte, leaf indextree.Leaf) (contentid.ID, error) {
	canon, err := s.canonicalize(key)
	if err != nil {
		return contentid.ID{}, err
	}
	return indextree.Mutate(ctx, p, root, s.fragments(canon), &leaf, indextree.ModeReplace)
}

func (s *StringPath) Remove(ctx context.Context, p content.Provider, root contentid.ID, key []byte) (contentid.ID, *indextree.Leaf, error) {
	canon, err := s.canonicalize(key)
	if err != nil {
		return contentid.ID{}, nil, err
	}
	return indextree.Remove(ctx, p, root, s.fragments(canon), s.KeepEmptyBranches)
}

func (s *StringPath) EnumerateLeaves(ctx context.Context, p content.Provider, root contentid.ID, yield func([]byte, indextree.Leaf) (bool, error)) error {
	join := func(frags [][]byte) []byte {
		out := make([]byte, 0, len(frags)+1)
		out = append(out, s.Separator)
		for i, f := range frags {
			if i > 0 {
				out = append(out, s.Separator)
			}
			out = append(out, f...)
		}
		return out
	}
	return indextree.Enumerate(ctx, p, root, join, func(e indextree.LeafEntry) (bool, error) {
		return yield(e.Key, e.Leaf)
	})
}
