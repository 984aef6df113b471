package alias

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
)

func TestMemoryProviderRegisterResolve(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	id := contentid.NewFromData([]byte("hello"))

	require.NoError(t, p.RegisterAlias(ctx, "assets", "hero.png", id))

	got, err := p.ResolveAlias(ctx, "assets", "hero.png")
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestMemoryProviderOverwriteIsLastWriterWins(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	first := contentid.NewFromData([]byte("first"))
	second := contentid.NewFromData([]byte("second"))

	require.NoError(t, p.RegisterAlias(ctx, "ks", "k", first))
	require.NoError(t, p.RegisterAlias(ctx, "ks", "k", second))

	got, err := p.ResolveAlias(ctx, "ks", "k")
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestMemoryProviderCaseSensitiveKeySpace(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	id := contentid.NewFromData([]byte("x"))
	require.NoError(t, p.RegisterAlias(ctx, "KeySpace", "k", id))

	_, err := p.ResolveAlias(ctx, "keyspace", "k")
	require.Error(t, err)
	assert.True(t, ferr.Is(err, ferr.CodeAliasNotFound))
}

func TestMemoryProviderNotFound(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	_, err := p.ResolveAlias(ctx, "ks", "missing")
	require.Error(t, err)
	assert.True(t, ferr.Is(err, ferr.CodeAliasNotFound))
}
