package content

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
)

func TestMemoryProviderWriteRead(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	data := []byte(strings.Repeat("z", contentid.InlineThreshold+10))
	id := contentid.NewFromData(data)

	require.NoError(t, WriteAndCommit(ctx, p, id, data))

	r, err := p.GetContentReader(ctx, id)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, OriginMemory, r.Origin)
}

func TestMemoryProviderNotFound(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	id := contentid.NewFromData([]byte(strings.Repeat("q", 100)))
	_, err := p.GetContentReader(ctx, id)
	require.Error(t, err)
	assert.True(t, ferr.Is(err, ferr.CodeHashRefNotFound))
}

func TestMemoryProviderAlreadyExists(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	data := []byte(strings.Repeat("a", 100))
	id := contentid.NewFromData(data)
	require.NoError(t, WriteAndCommit(ctx, p, id, data))
	err := WriteAndCommit(ctx, p, id, data)
	require.Error(t, err)
	assert.True(t, ferr.Is(err, ferr.CodeHashRefAlreadyExists))
}

func TestMemoryProviderUnexpectedHashRef(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	data := []byte(strings.Repeat("a", 100))
	id := contentid.NewFromData(data)
	w, err := p.GetContentWriter(ctx, id)
	require.NoError(t, err)
	_, _ = w.Write([]byte(strings.Repeat("b", 100)))
	err = w.Close()
	require.Error(t, err)
	assert.True(t, ferr.Is(err, ferr.CodeUnexpectedHashRef))
}

func TestMemoryProviderInlineNoRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	id := contentid.NewFromData([]byte("tiny"))
	r, err := p.GetContentReader(ctx, id)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "tiny", string(got))
}

func TestMemoryProviderUnwriteRefcount(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	data := []byte(strings.Repeat("c", 100))
	id := contentid.NewFromData(data)
	require.NoError(t, WriteAndCommit(ctx, p, id, data))

	require.NoError(t, p.Unwrite(ctx, id))
	_, err := p.GetContentReader(ctx, id)
	require.Error(t, err)
}

func TestGetContentReadersPartialFailure(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	okData := []byte(strings.Repeat("d", 100))
	okID := contentid.NewFromData(okData)
	require.NoError(t, WriteAndCommit(ctx, p, okID, okData))

	missingID := contentid.NewFromData([]byte(strings.Repeat("e", 100)))

	results := GetContentReaders(ctx, p, []contentid.ID{okID, missingID})
	require.NoError(t, results[okID].Err)
	require.Error(t, results[missingID].Err)
}
