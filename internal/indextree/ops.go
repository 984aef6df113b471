package indextree

import (
	"context"

	"github.com/forgecore/forge/internal/content"
	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
)

// leafSize returns the size contribution of a leaf for total_size
// bookkeeping: a Resource leaf counts its identifier's declared data size;
// a TreeRoot leaf counts the aggregate size of the sub-tree it points to
// (recomputed from the sub-tree's own total_size field so no rescan is
// needed, per spec 4.7).
func leafSize(ctx context.Context, p content.Provider, l *Leaf) (uint64, error) {
	if l.Kind == LeafResource {
		return l.ID.DataSize(), nil
	}
	sub, err := ReadTree(ctx, p, l.ID)
	if err != nil {
		return 0, err
	}
	return sub.TotalSize, nil
}

// Walk locates the leaf reached by following fragments from root. Returns
// (leaf, true, nil) on success, (nil, false, nil) if not found, or an
// error (ferr.CodeCorruptedTree) if a Resource leaf is encountered
// mid-path.
func Walk(ctx context.Context, p content.Provider, root contentid.ID, fragments [][]byte) (*Leaf, bool, error) {
	cur := root
	for i, frag := range fragments {
		node, err := ReadTree(ctx, p, cur)
		if err != nil {
			return nil, false, err
		}
		if node.IsLeaf() {
			if node.Leaf.Kind == LeafResource {
				return nil, false, ferr.New(ferr.CodeCorruptedTree,
					"found a resource leaf where a branch was expected mid-path")
			}
			// TreeRoot leaf reached before fragments are exhausted: not
			// expected for single-indexer walks; treat as corruption.
			return nil, false, ferr.New(ferr.CodeCorruptedTree, "unexpected tree-root leaf mid-path")
		}
		var next contentid.ID
		found := false
		for _, c := range node.Children {
			if string(c.Fragment) == string(frag) {
				next = c.Child
				found = true
				break
			}
		}
		if !found {
			return nil, false, nil
		}
		if i == len(fragments)-1 {
			leafNode, err := ReadTree(ctx, p, next)
			if err != nil {
				return nil, false, err
			}
			if !leafNode.IsLeaf() {
				return nil, false, ferr.New(ferr.CodeCorruptedTree, "expected leaf node at end of path")
			}
			return leafNode.Leaf, true, nil
		}
		cur = next
	}
	return nil, false, nil
}

// MutateMode selects Add/Replace semantics for Mutate.
type MutateMode int

const (
	ModeAdd MutateMode = iota
	ModeReplace
)

// Mutate inserts or replaces the leaf reached by fragments, copying the
// spine from root to leaf and returning a new root (spec: "persistent
// tree operations that copy the spine... returning a new root").
func Mutate(ctx context.Context, p content.Provider, root contentid.ID, fragments [][]byte, leaf *Leaf, mode MutateMode) (contentid.ID, error) {
	newRoot, _, err := mutate(ctx, p, root, fragments, leaf, mode)
	return newRoot, err
}

func mutate(ctx context.Context, p content.Provider, cur contentid.ID, fragments [][]byte, leaf *Leaf, mode MutateMode) (contentid.ID, uint64, error) {
	node, err := ReadTree(ctx, p, cur)
	if err != nil {
		return contentid.ID{}, 0, err
	}

	if len(fragments) == 0 {
		// cur is (or should become) the leaf itself.
		if node.IsLeaf() {
			if mode == ModeAdd {
				return contentid.ID{}, 0, ferr.New(ferr.CodeLeafAlreadyExists, "index key already exists")
			}
		} else if mode == ModeReplace {
			return contentid.ID{}, 0, ferr.New(ferr.CodeLeafNotFound, "index key does not exist")
		}
		size, err := leafSize(ctx, p, leaf)
		if err != nil {
			return contentid.ID{}, 0, err
		}
		id, err := WriteTree(ctx, p, &Node{Leaf: leaf, Count: 1, TotalSize: size})
		return id, size, err
	}

	if node.IsLeaf() {
		return contentid.ID{}, 0, ferr.New(ferr.CodeCorruptedTree, "found a leaf where a branch was expected")
	}

	frag := fragments[0]
	var childID contentid.ID
	childIdx := -1
	for i, c := range node.Children {
		if string(c.Fragment) == string(frag) {
			childID = c.Child
			childIdx = i
			break
		}
	}

	var oldChildSize, oldChildCount uint64
	if childIdx < 0 {
		if mode == ModeReplace {
			return contentid.ID{}, 0, ferr.New(ferr.CodeLeafNotFound, "index key does not exist")
		}
		childID = EmptyTreeID()
	} else {
		oldChildNode, err := ReadTree(ctx, p, childID)
		if err != nil {
			return contentid.ID{}, 0, err
		}
		oldChildSize = oldChildNode.TotalSize
		oldChildCount = oldChildNode.Count
		if oldChildNode.IsLeaf() {
			oldChildSize, err = leafSize(ctx, p, oldChildNode.Leaf)
			if err != nil {
				return contentid.ID{}, 0, err
			}
			oldChildCount = 1
		}
	}

	newChildID, newLeafSize, err := mutate(ctx, p, childID, fragments[1:], leaf, mode)
	if err != nil {
		return contentid.ID{}, 0, err
	}
	newChildNode, err := ReadTree(ctx, p, newChildID)
	if err != nil {
		return contentid.ID{}, 0, err
	}
	newChildCount := newChildNode.Count
	newChildSize := newChildNode.TotalSize
	if newChildNode.IsLeaf() {
		newChildCount = 1
		newChildSize = newLeafSize
	}

	children := append([]Child(nil), node.Children...)
	if childIdx < 0 {
		children = append(children, Child{Fragment: frag, Child: newChildID})
		SortChildren(children)
	} else {
		children[childIdx] = Child{Fragment: frag, Child: newChildID}
	}

	newCount := node.Count - oldChildCount + newChildCount
	newTotal := node.TotalSize - oldChildSize + newChildSize

	id, err := WriteTree(ctx, p, &Node{Children: children, Count: newCount, TotalSize: newTotal})
	return id, newTotal, err
}

// Remove deletes the leaf reached by fragments, pruning empty branches up
// the spine unless keepEmptyBranches is set (spec 4.3.2). Returns the new
// root and the removed leaf.
func Remove(ctx context.Context, p content.Provider, root contentid.ID, fragments [][]byte, keepEmptyBranches bool) (contentid.ID, *Leaf, error) {
	newRoot, removed, _, _, err := remove(ctx, p, root, fragments, keepEmptyBranches)
	return newRoot, removed, err
}

func remove(ctx context.Context, p content.Provider, cur contentid.ID, fragments [][]byte, keepEmptyBranches bool) (contentid.ID, *Leaf, uint64, uint64, error) {
	node, err := ReadTree(ctx, p, cur)
	if err != nil {
		return contentid.ID{}, nil, 0, 0, err
	}

	if len(fragments) == 0 {
		if !node.IsLeaf() {
			return contentid.ID{}, nil, 0, 0, ferr.New(ferr.CodeLeafNotFound, "index key does not exist")
		}
		return EmptyTreeID(), node.Leaf, 0, 0, nil
	}

	if node.IsLeaf() {
		return contentid.ID{}, nil, 0, 0, ferr.New(ferr.CodeLeafNotFound, "index key does not exist")
	}

	frag := fragments[0]
	childIdx := -1
	var childID contentid.ID
	for i, c := range node.Children {
		if string(c.Fragment) == string(frag) {
			childID = c.Child
			childIdx = i
			break
		}
	}
	if childIdx < 0 {
		return contentid.ID{}, nil, 0, 0, ferr.New(ferr.CodeLeafNotFound, "index key does not exist")
	}

	oldChildNode, err := ReadTree(ctx, p, childID)
	if err != nil {
		return contentid.ID{}, nil, 0, 0, err
	}
	oldChildCount := oldChildNode.Count
	oldChildSize := oldChildNode.TotalSize
	if oldChildNode.IsLeaf() {
		oldChildCount = 1
		oldChildSize, err = leafSize(ctx, p, oldChildNode.Leaf)
		if err != nil {
			return contentid.ID{}, nil, 0, 0, err
		}
	}

	newChildID, removedLeaf, _, _, err := remove(ctx, p, childID, fragments[1:], keepEmptyBranches)
	if err != nil {
		return contentid.ID{}, nil, 0, 0, err
	}

	children := append([]Child(nil), node.Children...)
	var newChildCount, newChildSize uint64
	if newChildID == EmptyTreeID() && !keepEmptyBranches {
		children = append(children[:childIdx], children[childIdx+1:]...)
	} else {
		newChildNode, err := ReadTree(ctx, p, newChildID)
		if err != nil {
			return contentid.ID{}, nil, 0, 0, err
		}
		newChildCount = newChildNode.Count
		newChildSize = newChildNode.TotalSize
		children[childIdx] = Child{Fragment: frag, Child: newChildID}
	}

	newCount := node.Count - oldChildCount + newChildCount
	newTotal := node.TotalSize - oldChildSize + newChildSize

	if len(children) == 0 {
		return EmptyTreeID(), removedLeaf, newCount, newTotal, nil
	}
	id, err := WriteTree(ctx, p, &Node{Children: children, Count: newCount, TotalSize: newTotal})
	return id, removedLeaf, newCount, newTotal, err
}

// LeafEntry is one enumerated (key, leaf) pair, with the key reassembled
// from the fragments walked to reach it.
type LeafEntry struct {
	Key  []byte
	Leaf Leaf
}

// Enumerate lazily walks root in the indexer's natural (sorted-fragment)
// order, invoking yield for each leaf reached. join composes the
// accumulated fragment path into an application-level key (e.g. joining
// path segments with '/', or concatenating fixed-width bytes).
func Enumerate(ctx context.Context, p content.Provider, root contentid.ID, join func([][]byte) []byte, yield func(LeafEntry) (bool, error)) error {
	return enumerate(ctx, p, root, nil, join, yield)
}

func enumerate(ctx context.Context, p content.Provider, cur contentid.ID, path [][]byte, join func([][]byte) []byte, yield func(LeafEntry) (bool, error)) error {
	node, err := ReadTree(ctx, p, cur)
	if err != nil {
		return err
	}
	if node.IsLeaf() {
		cont, err := yield(LeafEntry{Key: join(path), Leaf: *node.Leaf})
		if err != nil || !cont {
			return err
		}
		return nil
	}
	children := append([]Child(nil), node.Children...)
	SortChildren(children)
	for _, c := range children {
		if err := enumerate(ctx, p, c.Child, append(path, c.Fragment), join, yield); err != nil {
			return err
		}
	}
	return nil
}
