package content

import (
	"context"
	"io"
	"log/slog"

	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
)

// CachingProvider wraps a remote and a local provider (spec 4.2: "caching
// composition"). Reads try local first; on a local miss it opens a remote
// reader and a local writer and tee-reads between them. Writes fan out to
// both; local-write errors are logged but non-fatal.
//
// Grounded on original_source/crates/lgn-content-store/src/providers/cache.rs:
// local-miss falls back to remote + tee; any other local error (not just
// not-found) also falls back to remote-only, logged, without caching.
type CachingProvider struct {
	Remote Provider
	Local  Provider

	// TeeBufferSize bounds, in bytes, the backlog the tee-read's draining
	// goroutine may accumulate (internal/config's
	// ContentStoreConfig.TeeBufferSize). Non-positive falls back to
	// defaultTeeBufferSize.
	TeeBufferSize int
}

// NewCachingProvider composes remote and local into one Provider.
// teeBufferSize bounds the buffered channel a cache-miss read's tee uses
// to forward bytes to the local writer without blocking the consumer on
// the local write path beyond that budget.
func NewCachingProvider(remote, local Provider, teeBufferSize int) *CachingProvider {
	return &CachingProvider{Remote: remote, Local: local, TeeBufferSize: teeBufferSize}
}

func (c *CachingProvider) GetContentReader(ctx context.Context, id contentid.ID) (*Reader, error) {
	if id.IsInline() {
		return c.Local.GetContentReader(ctx, id)
	}

	localReader, err := c.Local.GetContentReader(ctx, id)
	switch {
	case err == nil:
		return localReader, nil
	case ferr.Is(err, ferr.CodeHashRefNotFound):
		// fall through to remote fetch + cache population
	default:
		// Any other local error: fall back to remote-only, logged,
		// without attempting to cache (cache.rs's non-NotFound branch).
		slog.Warn("caching provider: local read failed, falling back to remote",
			slog.String("error", err.Error()))
		return c.Remote.GetContentReader(ctx, id)
	}

	remoteReader, err := c.Remote.GetContentReader(ctx, id)
	if err != nil {
		return nil, err
	}

	localWriter, werr := c.Local.GetContentWriter(ctx, id)
	if werr != nil {
		if ferr.Is(werr, ferr.CodeHashRefAlreadyExists) {
			// Raced with another cacher; just serve the remote read.
			return remoteReader, nil
		}
		slog.Warn("caching provider: could not open local writer, serving remote-only",
			slog.String("error", werr.Error()))
		return remoteReader, nil
	}

	tee := newTeeReader(remoteReader.ReadCloser, localWriter, c.TeeBufferSize)
	return &Reader{ReadCloser: tee, Origin: remoteReader.Origin}, nil
}

func (c *CachingProvider) Exists(ctx context.Context, id contentid.ID) (bool, error) {
	ok, err := c.Local.Exists(ctx, id)
	if err == nil && ok {
		return true, nil
	}
	return c.Remote.Exists(ctx, id)
}

func (c *CachingProvider) GetContentWriter(ctx context.Context, id contentid.ID) (io.WriteCloser, error) {
	remoteWriter, err := c.Remote.GetContentWriter(ctx, id)
	if err != nil {
		return nil, err
	}
	localWriter, lerr := c.Local.GetContentWriter(ctx, id)
	if lerr != nil {
		slog.Warn("caching provider: could not open local writer for fan-out write, remote-only",
			slog.String("error", lerr.Error()))
		return remoteWriter, nil
	}
	return &fanOutWriter{remote: remoteWriter, local: localWriter}, nil
}

func (c *CachingProvider) Unwrite(ctx context.Context, id contentid.ID) error {
	_ = c.Local.Unwrite(ctx, id)
	return c.Remote.Unwrite(ctx, id)
}

type fanOutWriter struct {
	remote io.WriteCloser
	local  io.WriteCloser
}

func (w *fanOutWriter) Write(p []byte) (int, error) {
	n, err := w.remote.Write(p)
	if err != nil {
		return n, err
	}
	if _, lerr := w.local.Write(p); lerr != nil {
		slog.Warn("caching provider: local write failed during fan-out, continuing remote-only",
			slog.String("error", lerr.Error()))
	}
	return n, nil
}

func (w *fanOutWriter) Close() error {
	err := w.remote.Close()
	if lerr := w.local.Close(); lerr != nil {
		slog.Warn("caching provider: local commit failed during fan-out, continuing remote-only",
			slog.String("error", lerr.Error()))
	}
	return err
}
