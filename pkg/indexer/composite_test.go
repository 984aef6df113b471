package indexer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecore/forge/internal/content"
	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
	"github.com/forgecore/forge/internal/indextree"
)

func TestComposeDecomposeRoundTrip(t *testing.T) {
	outer, inner := []byte("project-a"), []byte{0x01, 0x02}
	gotOuter, gotInner, err := Decompose(Compose(outer, inner))
	require.NoError(t, err)
	assert.Equal(t, outer, gotOuter)
	assert.Equal(t, inner, gotInner)
}

func TestCompositeAddGetAcrossOuterKeys(t *testing.T) {
	ctx := context.Background()
	p := content.NewMemoryProvider()
	c := NewComposite(NewStringPath('/'), NewStatic(1))
	root := indextree.EmptyTreeID()

	idA := contentid.NewFromData([]byte("a-payload"))
	idB := contentid.NewFromData([]byte("b-payload"))

	var err error
	root, err = c.Add(ctx, p, root, Compose([]byte("/proj-a"), []byte{0x01}), indextree.Leaf{Kind: indextree.LeafResource, ID: idA})
	require.NoError(t, err)
	root, err = c.Add(ctx, p, root, Compose([]byte("/proj-b"), []byte{0x01}), indextree.Leaf{Kind: indextree.LeafResource, ID: idB})
	require.NoError(t, err)

	got, ok, err := c.Get(ctx, p, root, Compose([]byte("/proj-a"), []byte{0x01}))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, idA, got.ID)

	got, ok, err = c.Get(ctx, p, root, Compose([]byte("/proj-b"), []byte{0x01}))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, idB, got.ID)
}

func TestCompositeRemoveLastInnerKeyPrunesOuter(t *testing.T) {
	ctx := context.Background()
	p := content.NewMemoryProvider()
	c := NewComposite(NewStringPath('/'), NewStatic(1))
	root := indextree.EmptyTreeID()

	id := contentid.NewFromData([]byte("only"))
	root, err := c.Add(ctx, p, root, Compose([]byte("/proj-a"), []byte{0x01}), indextree.Leaf{Kind: indextree.LeafResource, ID: id})
	require.NoError(t, err)

	root, removed, err := c.Remove(ctx, p, root, Compose([]byte("/proj-a"), []byte{0x01}))
	require.NoError(t, err)
	assert.Equal(t, id, removed.ID)
	assert.Equal(t, indextree.EmptyTreeID(), root)

	_, ok, err := c.Get(ctx, p, root, Compose([]byte("/proj-a"), []byte{0x01}))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompositeEnumerateLexicographicOrder(t *testing.T) {
	ctx := context.Background()
	p := content.NewMemoryProvider()
	c := NewComposite(NewStringPath('/'), NewStatic(1))
	root := indextree.EmptyTreeID()

	entries := []struct {
		outer string
		inner byte
	}{
		{"/proj-b", 0x02},
		{"/proj-a", 0x01},
		{"/proj-a", 0x00},
	}
	for _, e := range entries {
		id := contentid.NewFromData([]byte{e.inner})
		var err error
		root, err = c.Add(ctx, p, root, Compose([]byte(e.outer), []byte{e.inner}), indextree.Leaf{Kind: indextree.LeafResource, ID: id})
		require.NoError(t, err)
	}

	var outers []string
	err := c.EnumerateLeaves(ctx, p, root, func(key []byte, _ indextree.Leaf) (bool, error) {
		outer, _, derr := Decompose(key)
		if derr != nil {
			return false, derr
		}
		outers = append(outers, string(outer))
		return true, nil
	})
	require.NoError(t, err)
	require.Len(t, outers, 3)
	assert.Equal(t, []string{"/proj-a", "/proj-a", "/proj-b"}, outers)
}

func TestCompositeCorruptionOnResourceLeafWhereTreeRootExpected(t *testing.T) {
	ctx := context.Background()
	p := content.NewMemoryProvider()
	outerIdx := NewStringPath('/')
	c := NewComposite(outerIdx, NewStatic(1))
	root := indextree.EmptyTreeID()

	id := contentid.NewFromData([]byte("not-a-tree-root"))
	root, err := outerIdx.Add(ctx, p, root, []byte("/proj-a"), indextree.Leaf{Kind: indextree.LeafResource, ID: id})
	require.NoError(t, err)

	_, _, err = c.Get(ctx, p, root, Compose([]byte("/proj-a"), []byte{0x00}))
	require.Error(t, err)
	assert.True(t, ferr.Is(err, ferr.CodeCorruptedTree))
}
