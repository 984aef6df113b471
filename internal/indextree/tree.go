// Package indextree implements the persistent immutable index tree node
// (spec component C4): branches holding ordered (key_fragment, child)
// pairs, and leaves pointing either at a resource identifier or an
// embedded sub-tree root, with exact count/total_size bookkeeping
// maintained on every mutation.
package indextree

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/forgecore/forge/internal/content"
	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
)

// LeafKind distinguishes a terminal resource pointer from an embedded
// sub-tree root (spec section 3: Resource vs TreeRoot).
type LeafKind int

const (
	LeafResource LeafKind = iota
	LeafTreeRoot
)

// Leaf is either a Resource(identifier) or a TreeRoot(identifier).
type Leaf struct {
	Kind LeafKind
	ID   contentid.ID
}

// Child is one (key_fragment, child) pair of a Branch.
type Child struct {
	Fragment []byte
	Child    contentid.ID
}

// Node is an index tree node: either a Branch (Children set, Leaf is the
// zero value) or a Leaf (Leaf set, Children nil).
type Node struct {
	Children  []Child
	Leaf      *Leaf
	Count     uint64
	TotalSize uint64
}

// IsLeaf reports whether this node is a leaf rather than a branch.
func (n *Node) IsLeaf() bool { return n.Leaf != nil }

// wireNode is the JSON encoding of Node stored through the content
// provider (spec: "trees are stored through the content provider").
type wireNode struct {
	Children  []wireChild `json:"children,omitempty"`
	LeafKind  *int        `json:"leaf_kind,omitempty"`
	LeafID    string      `json:"leaf_id,omitempty"`
	Count     uint64      `json:"count"`
	TotalSize uint64      `json:"total_size"`
}

type wireChild struct {
	Fragment string `json:"fragment"`
	Child    string `json:"child"`
}

func encode(n *Node) ([]byte, error) {
	w := wireNode{Count: n.Count, TotalSize: n.TotalSize}
	if n.IsLeaf() {
		kind := int(n.Leaf.Kind)
		w.LeafKind = &kind
		w.LeafID = n.Leaf.ID.String()
	} else {
		for _, c := range n.Children {
			w.Children = append(w.Children, wireChild{
				Fragment: string(c.Fragment),
				Child:    c.Child.String(),
			})
		}
	}
	return json.Marshal(w)
}

func decode(data []byte) (*Node, error) {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, ferr.Wrap(ferr.CodeCorruptedTree, "decode index tree node", err)
	}
	n := &Node{Count: w.Count, TotalSize: w.TotalSize}
	if w.LeafKind != nil {
		id, err := contentid.Parse(w.LeafID)
		if err != nil {
			return nil, ferr.Wrap(ferr.CodeCorruptedTree, "decode leaf identifier", err)
		}
		n.Leaf = &Leaf{Kind: LeafKind(*w.LeafKind), ID: id}
		return n, nil
	}
	for _, c := range w.Children {
		id, err := contentid.Parse(c.Child)
		if err != nil {
			return nil, ferr.Wrap(ferr.CodeCorruptedTree, "decode child identifier", err)
		}
		n.Children = append(n.Children, Child{Fragment: []byte(c.Fragment), Child: id})
	}
	return n, nil
}

var emptyTreeID contentid.ID

func init() {
	// One canonical empty-tree identifier shared across every indexer
	// (spec section 9, Open Question, resolved: preserve this invariant).
	// Computed once from the canonical empty-branch encoding.
	empty := &Node{}
	data, err := encode(empty)
	if err != nil {
		panic("indextree: failed to encode canonical empty tree: " + err.Error())
	}
	emptyTreeID = contentid.NewFromData(data)
}

// EmptyTreeID returns the stable, canonical empty-tree identifier.
func EmptyTreeID() contentid.ID { return emptyTreeID }

// ReadTree loads the node stored at id.
func ReadTree(ctx context.Context, p content.Provider, id contentid.ID) (*Node, error) {
	if id == EmptyTreeID() {
		return &Node{}, nil
	}
	r, err := p.GetContentReader(ctx, id)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, ferr.Wrap(ferr.CodeCorruptedTree, "read index tree node", err)
	}
	return decode(buf.Bytes())
}

// WriteTree persists n and returns its new content identifier.
func WriteTree(ctx context.Context, p content.Provider, n *Node) (contentid.ID, error) {
	data, err := encode(n)
	if err != nil {
		return contentid.ID{}, err
	}
	id := contentid.NewFromData(data)
	if id == EmptyTreeID() {
		return id, nil
	}
	exists, err := p.Exists(ctx, id)
	if err != nil {
		return contentid.ID{}, err
	}
	if exists {
		return id, nil // content-addressed: identical node already stored
	}
	if err := content.WriteAndCommit(ctx, p, id, data); err != nil {
		return contentid.ID{}, err
	}
	return id, nil
}

// Unwrite hints that id is no longer reachable.
func Unwrite(ctx context.Context, p content.Provider, id contentid.ID) error {
	if id == EmptyTreeID() {
		return nil
	}
	return p.Unwrite(ctx, id)
}

// SortChildren sorts a branch's children by fragment, the ordering
// discipline every indexer must preserve (spec section 3).
func SortChildren(children []Child) {
	sort.Slice(children, func(i, j int) bool {
		return bytes.Compare(children[i].Fragment, children[j].Fragment) < 0
	})
}
