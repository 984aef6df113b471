package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecore/forge/internal/content"
	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/indextree"
	"github.com/forgecore/forge/pkg/indexer"
)

// TestScenarioEmptyTreeInvariant: start with root = empty_tree_id(). The
// empty tree has zero leaves and zero count under any provider.
func TestScenarioEmptyTreeInvariant(t *testing.T) {
	ctx := context.Background()
	p := content.NewMemoryProvider()
	root := indextree.EmptyTreeID()

	node, err := indextree.ReadTree(ctx, p, root)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), node.Count)

	var leaves []indextree.LeafEntry
	err = indextree.Enumerate(ctx, p, root, func(parts [][]byte) []byte {
		var joined []byte
		for _, part := range parts {
			joined = append(joined, part...)
		}
		return joined
	}, func(e indextree.LeafEntry) (bool, error) {
		leaves = append(leaves, e)
		return true, nil
	})
	require.NoError(t, err)
	assert.Empty(t, leaves)
}

// TestScenarioStaticIndexerRoundTrip: a 4-byte-key static indexer holding
// (0x00000001, Resource(id("a"))) and (0x00000002, Resource(id("b"))).
func TestScenarioStaticIndexerRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := content.NewMemoryProvider()
	s := indexer.NewStatic(4)
	root := indextree.EmptyTreeID()

	idA := contentid.NewFromData([]byte("a"))
	idB := contentid.NewFromData([]byte("b"))

	root, err := s.Add(ctx, p, root, []byte{0x00, 0x00, 0x00, 0x01}, indextree.Leaf{Kind: indextree.LeafResource, ID: idA})
	require.NoError(t, err)
	root, err = s.Add(ctx, p, root, []byte{0x00, 0x00, 0x00, 0x02}, indextree.Leaf{Kind: indextree.LeafResource, ID: idB})
	require.NoError(t, err)

	got, ok, err := s.Get(ctx, p, root, []byte{0x00, 0x00, 0x00, 0x01})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, idA, got.ID)

	node, err := indextree.ReadTree(ctx, p, root)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), node.Count)
	assert.Equal(t, uint64(2), node.TotalSize) // len("a") + len("b")
}

// TestScenarioStringPathAddReplaceRemove walks the literal fruits/vegetables
// sequence: four inserts, one replace, then removal of all four, leaving
// only the empty-tree identifier referenced.
func TestScenarioStringPathAddReplaceRemove(t *testing.T) {
	ctx := context.Background()
	p := content.NewMemoryProvider()
	s := indexer.NewStringPath('/')
	root := indextree.EmptyTreeID()

	entries := []struct {
		path    string
		payload string
	}{
		{"/fruits/apple.txt", "apple"},
		{"/fruits/pear.txt", "pear"},
		{"/fruits/banana.txt", "banana"},
		{"/vegetables/tomato.txt", "tomato"},
	}

	var err error
	for _, e := range entries {
		id := contentid.NewFromData([]byte(e.payload))
		root, err = s.Add(ctx, p, root, []byte(e.path), indextree.Leaf{Kind: indextree.LeafResource, ID: id})
		require.NoError(t, err)
	}

	node, err := indextree.ReadTree(ctx, p, root)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), node.Count)
	assert.Equal(t, uint64(21), node.TotalSize) // 5+4+6+6

	errID := contentid.NewFromData([]byte("ERROR"))
	root, err = s.Replace(ctx, p, root, []byte("/vegetables/tomato.txt"), indextree.Leaf{Kind: indextree.LeafResource, ID: errID})
	require.NoError(t, err)

	node, err = indextree.ReadTree(ctx, p, root)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), node.TotalSize) // 5+4+6+5

	root, _, err = s.Remove(ctx, p, root, []byte("/vegetables/tomato.txt"))
	require.NoError(t, err)

	node, err = indextree.ReadTree(ctx, p, root)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), node.Count)
	assert.Equal(t, uint64(15), node.TotalSize) // 5+4+6

	for _, path := range []string{"/fruits/apple.txt", "/fruits/pear.txt", "/fruits/banana.txt"} {
		root, _, err = s.Remove(ctx, p, root, []byte(path))
		require.NoError(t, err)
	}

	assert.Equal(t, indextree.EmptyTreeID(), root, "removing every entry must collapse back to the canonical empty-tree identifier")
}

// TestScenarioCompositeIndexer: Composite(Static(4), StringPath) keyed by
// (0x00000004, "/foo/bar"), replaced in place, then enumerated.
func TestScenarioCompositeIndexer(t *testing.T) {
	ctx := context.Background()
	p := content.NewMemoryProvider()
	c := indexer.NewComposite(indexer.NewStatic(4), indexer.NewStringPath('/'))
	root := indextree.EmptyTreeID()

	key := indexer.Compose([]byte{0x00, 0x00, 0x00, 0x04}, []byte("/foo/bar"))

	idHello := contentid.NewFromData([]byte("hello"))
	root, err := c.Add(ctx, p, root, key, indextree.Leaf{Kind: indextree.LeafResource, ID: idHello})
	require.NoError(t, err)

	got, ok, err := c.Get(ctx, p, root, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, idHello, got.ID)

	idUpdated := contentid.NewFromData([]byte("hello-updated"))
	root, err = c.Replace(ctx, p, root, key, indextree.Leaf{Kind: indextree.LeafResource, ID: idUpdated})
	require.NoError(t, err)

	got, ok, err = c.Get(ctx, p, root, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, idUpdated, got.ID)

	var keys [][]byte
	err = c.EnumerateLeaves(ctx, p, root, func(k []byte, _ indextree.Leaf) (bool, error) {
		keys = append(keys, append([]byte(nil), k...))
		return true, nil
	})
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}
