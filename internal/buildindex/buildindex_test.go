package buildindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
)

func hashPtr(v uint64) *uint64 { return &v }

func TestCreateNewThenOpenVersionMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "build.db")

	bi, err := CreateNew(ctx, path, "/project", "v1")
	require.NoError(t, err)
	require.NoError(t, bi.Close())

	_, err = Open(ctx, path, "v2")
	require.Error(t, err)
	assert.True(t, ferr.Is(err, ferr.CodeVersionMismatch))

	reopened, err := Open(ctx, path, "v1")
	require.NoError(t, err)
	defer reopened.Close()
}

func TestOpenOrCreateFallsBackToCreateNew(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "build.db")

	bi, err := OpenOrCreate(ctx, path, "/project", "v1")
	require.NoError(t, err)
	defer bi.Close()

	again, err := OpenOrCreate(ctx, path, "/project", "v1")
	require.NoError(t, err)
	defer again.Close()
}

func TestUpdateResourceIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "build.db")
	bi, err := CreateNew(ctx, path, "/project", "v1")
	require.NoError(t, err)
	defer bi.Close()

	a := NewResourcePathID(Step{Type: "material", Name: "a"})

	changed, err := bi.UpdateResource(ctx, a, hashPtr(1), nil)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = bi.UpdateResource(ctx, a, hashPtr(1), nil)
	require.NoError(t, err)
	assert.False(t, changed, "second identical update should be a no-op")

	changed, err = bi.UpdateResource(ctx, a, hashPtr(2), nil)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestComputeSourceHashDetectsCycle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "build.db")
	bi, err := CreateNew(ctx, path, "/project", "v1")
	require.NoError(t, err)
	defer bi.Close()

	a := NewResourcePathID(Step{Type: "material", Name: "a"})
	b := NewResourcePathID(Step{Type: "material", Name: "b"})

	_, err = bi.UpdateResource(ctx, a, hashPtr(1), []ResourcePathID{b})
	require.NoError(t, err)
	_, err = bi.UpdateResource(ctx, b, hashPtr(2), []ResourcePathID{a})
	require.NoError(t, err)

	_, err = bi.ComputeSourceHash(ctx, a)
	require.Error(t, err)
	assert.True(t, ferr.Is(err, ferr.CodeCorruptedTree))
}

func TestEvaluationOrderLeavesFirstDeterministic(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "build.db")
	bi, err := CreateNew(ctx, path, "/project", "v1")
	require.NoError(t, err)
	defer bi.Close()

	leafA := NewResourcePathID(Step{Type: "texture", Name: "a"})
	leafB := NewResourcePathID(Step{Type: "texture", Name: "b"})
	target := NewResourcePathID(Step{Type: "material", Name: "m"}, Step{Type: "runtime_material", Name: "m"})

	_, err = bi.UpdateResource(ctx, leafA, hashPtr(1), nil)
	require.NoError(t, err)
	_, err = bi.UpdateResource(ctx, leafB, hashPtr(2), nil)
	require.NoError(t, err)
	_, err = bi.UpdateResource(ctx, target, nil, []ResourcePathID{leafB, leafA})
	require.NoError(t, err)

	order, err := bi.EvaluationOrder(ctx, target)
	require.NoError(t, err)
	require.Len(t, order, 3)
	assert.Equal(t, leafA.String(), order[0].String())
	assert.Equal(t, leafB.String(), order[1].String())
	assert.Equal(t, target.String(), order[2].String())
}

func TestFindCompiledCacheHitMiss(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "build.db")
	bi, err := CreateNew(ctx, path, "/project", "v1")
	require.NoError(t, err)
	defer bi.Close()

	target := NewResourcePathID(Step{Type: "material", Name: "m"}, Step{Type: "runtime_material", Name: "m"})

	_, _, ok, err := bi.FindCompiled(ctx, target, 42, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	outID := contentid.NewFromData([]byte("compiled-output"))
	outputs := []CompiledResourceInfo{{Path: target, Identifier: outID}}
	require.NoError(t, bi.InsertCompiled(ctx, target, 42, 7, outputs, nil))

	gotOutputs, _, ok, err := bi.FindCompiled(ctx, target, 42, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, gotOutputs, 1)
	assert.Equal(t, outID, gotOutputs[0].Identifier)

	_, _, ok, err = bi.FindCompiled(ctx, target, 42, 8)
	require.NoError(t, err)
	assert.False(t, ok, "different source_hash must miss")
}

func TestFindDependenciesUnknownNode(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "build.db")
	bi, err := CreateNew(ctx, path, "/project", "v1")
	require.NoError(t, err)
	defer bi.Close()

	_, ok, err := bi.FindDependencies(ctx, NewResourcePathID(Step{Type: "texture", Name: "missing"}))
	require.NoError(t, err)
	assert.False(t, ok)
}
