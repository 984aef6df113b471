// Package content implements the content provider (spec component C2):
// read/write of opaque byte blobs keyed by a contentid.ID, with pluggable
// backends (memory, local filesystem, gRPC-remote, HTTP-presigned-URL, and
// a caching composition of the two).
package content

import (
	"context"
	"io"

	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
)

// Origin describes where a reader's bytes actually came from, for
// diagnostics (spec 4.2: "the returned stream reports its origin").
type Origin string

const (
	OriginMemory Origin = "memory"
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Reader is a content stream annotated with its origin.
type Reader struct {
	io.ReadCloser
	Origin Origin
}

// ReadResult is one entry of a batched read (spec 3.1 supplement:
// get_content_readers partial success).
type ReadResult struct {
	Reader *Reader
	Err    error
}

// Provider is the capability set every content backend implements.
type Provider interface {
	// GetContentReader streams the bytes of id. Fails with a
	// ferr.CodeHashRefNotFound error if absent; transport errors surface
	// as ferr.CategoryTransport.
	GetContentReader(ctx context.Context, id contentid.ID) (*Reader, error)

	// GetContentWriter returns a stream that commits bytes under id when
	// closed. A hash mismatch at close time fails with
	// ferr.CodeUnexpectedHashRef. If id already exists, fails with
	// ferr.CodeHashRefAlreadyExists.
	GetContentWriter(ctx context.Context, id contentid.ID) (io.WriteCloser, error)

	// Exists reports whether id is already stored.
	Exists(ctx context.Context, id contentid.ID) (bool, error)

	// Unwrite is a reference-count hint that content under id is no
	// longer needed; it is a hint, not a guarantee (spec section 3).
	Unwrite(ctx context.Context, id contentid.ID) error
}

// GetContentReaders batches reads across ids, isolating each id's error
// (spec 3.1 supplement): each read runs on its own goroutine reporting
// onto a shared channel, deliberately not an errgroup, since errgroup's
// first-error-cancels-the-group behavior would abort sibling reads on one
// Transport failure instead of isolating it per id.
func GetContentReaders(ctx context.Context, p Provider, ids []contentid.ID) map[contentid.ID]ReadResult {
	results := make(map[contentid.ID]ReadResult, len(ids))
	type entry struct {
		id     contentid.ID
		reader *Reader
		err    error
	}
	out := make(chan entry, len(ids))
	for _, id := range ids {
		go func(id contentid.ID) {
			r, err := p.GetContentReader(ctx, id)
			out <- entry{id: id, reader: r, err: err}
		}(id)
	}
	for range ids {
		e := <-out
		results[e.id] = ReadResult{Reader: e.reader, Err: e.err}
	}
	return results
}

// WriteAndCommit is a convenience helper: obtain a writer for id, write
// data, and close it, surfacing any commit-time hash mismatch.
func WriteAndCommit(ctx context.Context, p Provider, id contentid.ID, data []byte) error {
	w, err := p.GetContentWriter(ctx, id)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// errNotFound builds the canonical "content not found" error.
func errNotFound(id contentid.ID) error {
	return ferr.NotFound(ferr.CodeHashRefNotFound, "content not found: "+id.String())
}

func errAlreadyExists(id contentid.ID) error {
	e := ferr.New(ferr.CodeHashRefAlreadyExists, "content already exists: "+id.String())
	e.Category = ferr.CategoryAlreadyExists
	return e
}

func errUnexpectedHashRef(expected, actual contentid.ID) error {
	e := ferr.New(ferr.CodeUnexpectedHashRef, "written bytes do not match declared identifier")
	e.WithDetail("expected", expected.String())
	e.WithDetail("actual", actual.String())
	return e
}
