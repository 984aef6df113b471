package content

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
)

// DefaultUploadBufferSize is the bounded duplex buffer size for HTTP
// uploads (spec section 5: "default 2 MiB").
const DefaultUploadBufferSize = 2 << 20

// HTTPPresignedProvider is the HTTP-presigned-URL content backend: reads
// and writes are issued against URLs handed out by a remote resolver
// (typically the gRPC backend's GetContentWriter/GetContentReader RPCs).
type HTTPPresignedProvider struct {
	Client           *http.Client
	ResolveReadURL   func(ctx context.Context, id contentid.ID) (string, error)
	ResolveWriteURL  func(ctx context.Context, id contentid.ID) (string, error)
	UploadBufferSize int
}

func (p *HTTPPresignedProvider) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}

func (p *HTTPPresignedProvider) bufferSize() int {
	if p.UploadBufferSize > 0 {
		return p.UploadBufferSize
	}
	return DefaultUploadBufferSize
}

func (p *HTTPPresignedProvider) GetContentReader(ctx context.Context, id contentid.ID) (*Reader, error) {
	if inline, ok := id.InlineData(); ok {
		return &Reader{ReadCloser: io.NopCloser(newBytesReader(inline)), Origin: OriginRemote}, nil
	}

	url, err := p.ResolveReadURL(ctx, id)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, ferr.Transport("build HTTP read request", err)
	}
	resp, err := p.client().Do(req)
	if err != nil {
		return nil, ferr.Transport("HTTP read request failed", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, errNotFound(id)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, ferr.Transport(fmt.Sprintf("HTTP read returned status %d", resp.StatusCode), nil)
	}
	return &Reader{ReadCloser: resp.Body, Origin: OriginRemote}, nil
}

func (p *HTTPPresignedProvider) Exists(ctx context.Context, id contentid.ID) (bool, error) {
	if id.IsInline() {
		return true, nil
	}
	url, err := p.ResolveReadURL(ctx, id)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, ferr.Transport("build HTTP HEAD request", err)
	}
	resp, err := p.client().Do(req)
	if err != nil {
		return false, ferr.Transport("HTTP HEAD request failed", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// GetContentWriter implements the HTTP upload algorithm (spec 4.2): a
// bounded duplex pipe hands its reader half to the HTTP client as a
// streaming body with Content-Length set to id.DataSize(); the writer half
// is returned to the caller. Close awaits the HTTP response; a non-2xx
// status becomes an upload error. If the HTTP round trip completes before
// the caller closes the writer, that is itself an error (server closed
// early).
func (p *HTTPPresignedProvider) GetContentWriter(ctx context.Context, id contentid.ID) (io.WriteCloser, error) {
	if id.IsInline() {
		return &memoryWriter{id: id}, nil
	}

	url, err := p.ResolveWriteURL(ctx, id)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	bw := newBoundedWriter(pw, p.bufferSize())

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, pr)
	if err != nil {
		return nil, ferr.Transport("build HTTP write request", err)
	}
	req.ContentLength = int64(id.DataSize())

	done := make(chan error, 1)
	go func() {
		resp, err := p.client().Do(req)
		if err != nil {
			done <- ferr.Transport("HTTP upload request failed", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			done <- ferr.Transport(fmt.Sprintf("HTTP upload returned status %d", resp.StatusCode), nil)
			return
		}
		done <- nil
	}()

	return &httpUploadWriter{id: id, bw: bw, pw: pw, done: done}, nil
}

func (p *HTTPPresignedProvider) Unwrite(ctx context.Context, id contentid.ID) error {
	// The HTTP-presigned backend has no delete endpoint in this contract;
	// treated as a no-op hint (spec: "a hint, not a guarantee").
	return nil
}

type httpUploadWriter struct {
	id   contentid.ID
	bw   *boundedWriter
	pw   *io.PipeWriter
	done chan error
}

func (w *httpUploadWriter) Write(p []byte) (int, error) {
	select {
	case err := <-w.done:
		// The HTTP round trip finished before we finished writing: the
		// server closed early. That is an error (spec 4.2).
		if err == nil {
			err = ferr.Transport("HTTP upload server closed connection early", nil)
		}
		return 0, err
	default:
	}
	return w.bw.Write(p)
}

func (w *httpUploadWriter) Close() error {
	if err := w.bw.Flush(); err != nil {
		_ = w.pw.CloseWithError(err)
		<-w.done
		return err
	}
	_ = w.pw.Close()
	return <-w.done
}
