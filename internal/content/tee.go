package content

import (
	"io"
	"log/slog"
	"sync"
)

// teeChunkSize is the unit teeReader buffers chunks in; it sizes the
// bounded channel's capacity from a configured byte budget.
const teeChunkSize = 4096

// defaultTeeBufferSize is used when a CachingProvider is constructed with
// a non-positive buffer size.
const defaultTeeBufferSize = 32 * 1024

// teeReader implements the tee-read algorithm (spec 4.2): bytes pulled by
// the consumer from an upstream reader are simultaneously forwarded to a
// local writer, populating the cache, without corrupting the local store
// if the consumer stops reading early.
//
// Forwarding runs on a separate goroutine draining a channel of chunks
// bounded by bufferSize bytes (internal/config's
// ContentStoreConfig.TeeBufferSize): a consumer reading faster than the
// local write path fills that channel and is then only blocked on its own
// send, not on the local write completing, up to the configured budget.
//
// The local writer only commits its bytes on its own Close (spec section
// 5: "identifier commit happens only on shutdown"), so a cancelled read
// never leaves a partially-written blob live under its final identifier.
type teeReader struct {
	upstream io.ReadCloser
	local    io.WriteCloser

	chunks chan []byte
	done   chan struct{}
	once   sync.Once
}

// newTeeReader returns a reader that, as it is read, forwards every chunk
// to local on a draining goroutine. local is closed once the consumer
// reaches EOF (or closes early); its own hash check then either commits
// the cache entry or fails harmlessly, exactly as a direct write would.
// bufferSize bounds the draining goroutine's backlog in bytes; a
// non-positive value falls back to defaultTeeBufferSize.
func newTeeReader(upstream io.ReadCloser, local io.WriteCloser, bufferSize int) *teeReader {
	if bufferSize <= 0 {
		bufferSize = defaultTeeBufferSize
	}
	capacity := bufferSize / teeChunkSize
	if capacity < 1 {
		capacity = 1
	}

	t := &teeReader{
		upstream: upstream,
		local:    local,
		chunks:   make(chan []byte, capacity),
		done:     make(chan struct{}),
	}
	go t.drain()
	return t
}

// drain owns the local writer exclusively: it is the only goroutine that
// writes to or closes it.
func (t *teeReader) drain() {
	defer close(t.done)

	var failed bool
	for chunk := range t.chunks {
		if failed {
			continue
		}
		if _, err := t.local.Write(chunk); err != nil {
			failed = true
			slog.Warn("caching provider: local write failed, continuing remote-only",
				slog.String("error", err.Error()))
		}
	}
	if err := t.local.Close(); err != nil && !failed {
		slog.Warn("caching provider: local commit failed, continuing remote-only",
			slog.String("error", err.Error()))
	}
}

func (t *teeReader) Read(p []byte) (int, error) {
	n, err := t.upstream.Read(p)
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, p[:n])
		t.chunks <- chunk
	}
	if err == io.EOF {
		t.finish()
	}
	return n, err
}

// finish closes the chunk channel (letting drain flush and close local)
// and waits for it to exit. Safe to call more than once.
func (t *teeReader) finish() {
	t.once.Do(func() { close(t.chunks) })
	<-t.done
}

// Close closes the upstream reader. If EOF was never reached (consumer
// dropped the reader mid-stream), finish still runs: the local writer is
// closed with an incomplete body, its hash check fails, and the partial
// write is discarded harmlessly rather than leaking the temp file/handle.
func (t *teeReader) Close() error {
	t.finish()
	return t.upstream.Close()
}
