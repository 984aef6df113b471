package content

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
)

// RetryConfig configures the exponential backoff applied to Transport
// errors. Grounded on internal/embed/retry.go's DownloadWithRetry,
// generalized from model downloads to any content-provider transport call.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns the teacher's default backoff schedule.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryTransport wraps a Provider, retrying operations that fail with a
// Transport-category error. NotFound/AlreadyExists/Corruption errors are
// never retried (spec section 7: "transport errors are transient... caller
// may retry").
type RetryTransport struct {
	Inner  Provider
	Config RetryConfig
}

// NewRetryTransport wraps inner with the default retry schedule.
func NewRetryTransport(inner Provider) *RetryTransport {
	return &RetryTransport{Inner: inner, Config: DefaultRetryConfig()}
}

// Retry runs fn, retrying with exponential backoff while it returns a
// retryable error. Exported so other subprocess/transport callers (e.g.
// internal/compiler's compiler invocations) can reuse the same backoff loop
// instead of re-deriving it.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	return withRetry(ctx, cfg, fn)
}

func withRetry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !ferr.IsRetryable(err) {
			return zero, err
		}
		lastErr = err
		if attempt >= cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return zero, ferr.Transport(fmt.Sprintf("failed after %d retries", cfg.MaxRetries), lastErr)
}

func (r *RetryTransport) GetContentReader(ctx context.Context, id contentid.ID) (*Reader, error) {
	return withRetry(ctx, r.Config, func() (*Reader, error) {
		return r.Inner.GetContentReader(ctx, id)
	})
}

func (r *RetryTransport) GetContentWriter(ctx context.Context, id contentid.ID) (io.WriteCloser, error) {
	return withRetry(ctx, r.Config, func() (io.WriteCloser, error) {
		return r.Inner.GetContentWriter(ctx, id)
	})
}

func (r *RetryTransport) Exists(ctx context.Context, id contentid.ID) (bool, error) {
	return withRetry(ctx, r.Config, func() (bool, error) {
		return r.Inner.Exists(ctx, id)
	})
}

func (r *RetryTransport) Unwrite(ctx context.Context, id contentid.ID) error {
	_, err := withRetry(ctx, r.Config, func() (struct{}, error) {
		return struct{}{}, r.Inner.Unwrite(ctx, id)
	})
	return err
}
