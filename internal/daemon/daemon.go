package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/forgecore/forge/internal/alias"
	"github.com/forgecore/forge/internal/config"
	"github.com/forgecore/forge/internal/content"
	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
	"github.com/forgecore/forge/internal/rpcwire"
)

// Daemon is the long-running content-store process: it owns a
// content.Provider and alias.Provider pair, serves them over a Unix
// socket via Server, and tracks its own PID file for daemon start/stop/
// status commands.
type Daemon struct {
	cfg Config

	content content.Provider
	aliases alias.Provider
	driver  string

	// inlineThreshold is storeCfg.InlineThreshold: the inline-content
	// cutoff WriteContent uses when minting identifiers for client-
	// submitted bytes, so the configured threshold actually governs
	// what this daemon's content store inlines.
	inlineThreshold int

	server  *Server
	pidFile *PIDFile

	mu      sync.Mutex
	started time.Time
}

// Option configures a Daemon at construction time.
type Option func(*Daemon)

// WithContentProvider overrides the content.Provider the daemon serves,
// bypassing config-driven construction. Used by tests to inject an
// in-memory provider.
func WithContentProvider(p content.Provider, driverName string) Option {
	return func(d *Daemon) {
		d.content = p
		d.driver = driverName
	}
}

// WithAliasProvider overrides the alias.Provider the daemon serves.
func WithAliasProvider(p alias.Provider) Option {
	return func(d *Daemon) {
		d.aliases = p
	}
}

// NewDaemon validates cfg and builds a Daemon. The content provider
// defaults to what content.NewProviderFromConfig builds from storeCfg; the
// alias provider defaults to memory for a "memory" store and to a local
// filesystem store under storeCfg.LocalDir/aliases otherwise; pass
// WithContentProvider/WithAliasProvider to override (tests do this to
// avoid touching disk).
func NewDaemon(cfg Config, storeCfg config.ContentStoreConfig, opts ...Option) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	server, err := NewServer(cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}

	d := &Daemon{
		cfg:             cfg,
		server:          server,
		pidFile:         NewPIDFile(cfg.PIDPath),
		driver:          string(storeCfg.Provider),
		inlineThreshold: storeCfg.InlineThreshold,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.content == nil {
		p, err := content.NewProviderFromConfig(storeCfg)
		if err != nil {
			return nil, fmt.Errorf("build content provider: %w", err)
		}
		d.content = p
	}

	if d.aliases == nil {
		if storeCfg.Provider == config.ContentStoreMemory {
			d.aliases = alias.NewMemoryProvider()
		} else {
			aliasDir := filepath.Join(storeCfg.LocalDir, "aliases")
			p, err := alias.NewLocalFSProvider(aliasDir)
			if err != nil {
				return nil, fmt.Errorf("build alias provider: %w", err)
			}
			d.aliases = p
		}
	}

	d.server.SetHandler(d)

	return d, nil
}

// Start runs the daemon until ctx is cancelled: writes the PID file,
// cleans it up on exit, and blocks serving the content-store RPC surface.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.pidFile.Write(); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	defer func() {
		if err := d.pidFile.Remove(); err != nil {
			slog.Warn("failed to remove PID file", slog.String("error", err.Error()))
		}
	}()

	d.mu.Lock()
	d.started = time.Now()
	d.mu.Unlock()

	slog.Info("content-store daemon starting",
		slog.String("socket", d.cfg.SocketPath),
		slog.String("driver", d.driver))

	return d.server.ListenAndServe(ctx)
}

// Close stops the server and releases the PID file immediately, for
// callers managing their own lifecycle instead of cancelling Start's ctx.
func (d *Daemon) Close() error {
	err := d.server.Close()
	if rmErr := d.pidFile.Remove(); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

// ContentDriver reports the configured content-store backend name, for
// status reporting.
func (d *Daemon) ContentDriver() string {
	return d.driver
}

// ReadContent implements RequestHandler.
func (d *Daemon) ReadContent(ctx context.Context, params ReadContentParams) (ReadContentResult, error) {
	id, err := contentid.Parse(params.ID)
	if err != nil {
		return ReadContentResult{}, err
	}

	reader, err := d.content.GetContentReader(ctx, id)
	if err != nil {
		if ferr.GetCategory(err) == ferr.CategoryNotFound {
			return ReadContentResult{Found: false}, nil
		}
		return ReadContentResult{}, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return ReadContentResult{}, fmt.Errorf("read content body: %w", err)
	}

	return ReadContentResult{
		Found:  true,
		Origin: rpcwire.Origin{Kind: string(reader.Origin)},
		Bytes:  data,
	}, nil
}

// WriteContent implements RequestHandler.
func (d *Daemon) WriteContent(ctx context.Context, params WriteContentParams) (WriteContentResult, error) {
	id := contentid.NewFromDataWithThreshold(params.Data, d.inlineThreshold)

	if id.IsInline() {
		return WriteContentResult{ID: id.String()}, nil
	}

	if err := content.WriteAndCommit(ctx, d.content, id, params.Data); err != nil {
		return WriteContentResult{}, err
	}

	return WriteContentResult{ID: id.String()}, nil
}

// GetContentWriter implements RequestHandler. The in-process daemon never
// hands back a presigned URL of its own; that variant exists for a remote
// gRPC content-store service fronting object storage, not this local one.
func (d *Daemon) GetContentWriter(ctx context.Context, params GetContentWriterParams) (GetContentWriterResult, error) {
	id, err := contentid.Parse(params.ID)
	if err != nil {
		return GetContentWriterResult{}, err
	}

	exists, err := d.content.Exists(ctx, id)
	if err != nil {
		return GetContentWriterResult{}, err
	}
	if exists {
		return GetContentWriterResult{AlreadyExists: true}, nil
	}

	return GetContentWriterResult{InlineOK: true}, nil
}

// RegisterAlias implements RequestHandler.
func (d *Daemon) RegisterAlias(ctx context.Context, params RegisterAliasParams) error {
	id, err := contentid.Parse(params.ID)
	if err != nil {
		return err
	}
	return d.aliases.RegisterAlias(ctx, params.KeySpace, params.Key, id)
}

// ResolveAlias implements RequestHandler.
func (d *Daemon) ResolveAlias(ctx context.Context, params ResolveAliasParams) (ResolveAliasResult, error) {
	id, err := d.aliases.ResolveAlias(ctx, params.KeySpace, params.Key)
	if err != nil {
		return ResolveAliasResult{Found: false}, nil
	}
	return ResolveAliasResult{Found: true, ID: id.String()}, nil
}
