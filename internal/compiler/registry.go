package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/forgecore/forge/internal/ferr"
)

// discoveryCacheSize bounds the LRU cache of info probes; a project rarely
// has more than a few dozen distinct compiler executables on its search
// paths.
const discoveryCacheSize = 256

// discoveryKey identifies a cached info probe: a compiler binary only needs
// re-probing once its mtime changes.
type discoveryKey struct {
	path  string
	mtime int64
}

// Entry is one discovered compiler: its executable path and declared info.
type Entry struct {
	Path string
	Info Info
}

// Registry discovers compiler executables across a set of search paths and
// keeps the first match per transform, per section 4.5's discovery rule.
// Grounded on internal/embed/factory.go's pluggable-backend-with-discovery
// pattern (teacher), generalized from picking one embedder to cataloguing
// many compilers.
type Registry struct {
	coreVersion string
	newCmd      newCmdFunc

	discoveryCache *lru.Cache[discoveryKey, Info]

	mu      sync.RWMutex
	byTrans map[string]Entry

	hashGroup singleflight.Group
}

// NewRegistry creates an empty registry; call Discover to populate it.
func NewRegistry(coreVersion string) *Registry {
	cache, _ := lru.New[discoveryKey, Info](discoveryCacheSize)
	return &Registry{
		coreVersion:    coreVersion,
		newCmd:         defaultNewCmd,
		discoveryCache: cache,
		byTrans:        make(map[string]Entry),
	}
}

// Discover scans each directory in searchPaths for candidate executables,
// runs "info" on each, and keeps the first one per transform whose
// build_version matches the registry's core version. Candidates whose info
// probe fails or whose build_version mismatches are skipped, not fatal.
func (r *Registry) Discover(ctx context.Context, searchPaths []string) error {
	for _, dir := range searchPaths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return ferr.Wrap(ferr.CodeTransportError, "scanning compiler search path "+dir, err)
		}
		for _, de := range entries {
			if de.IsDir() {
				continue
			}
			path := filepath.Join(dir, de.Name())
			info, ok, err := r.probe(ctx, path)
			if err != nil {
				continue
			}
			if !ok || info.BuildVersion != r.coreVersion {
				continue
			}
			r.mu.Lock()
			if _, exists := r.byTrans[info.Transform]; !exists {
				r.byTrans[info.Transform] = Entry{Path: path, Info: info}
			}
			r.mu.Unlock()
		}
	}
	return nil
}

// probe runs "info" on path, caching the result by (path, mtime) so a
// repeated Discover call over an unchanged compiler set never re-spawns it.
func (r *Registry) probe(ctx context.Context, path string) (Info, bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Info{}, false, err
	}
	if fi.IsDir() || fi.Mode()&0o111 == 0 {
		return Info{}, false, nil
	}

	key := discoveryKey{path: path, mtime: fi.ModTime().UnixNano()}
	if cached, ok := r.discoveryCache.Get(key); ok {
		return cached, true, nil
	}

	ictx, cancel := context.WithTimeout(ctx, infoTimeout)
	defer cancel()

	var info Info
	if err := runJSON(ictx, r.newCmd, path, []string{"info"}, &info); err != nil {
		return Info{}, false, err
	}
	r.discoveryCache.Add(key, info)
	return info, true, nil
}

// Lookup returns the discovered compiler for transform, or
// ferr.CodeCompilerNotFound if none was discovered.
func (r *Registry) Lookup(transform string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byTrans[transform]
	if !ok {
		return Entry{}, ferr.NotFound(ferr.CodeCompilerNotFound, "no compiler discovered for transform "+transform)
	}
	return e, nil
}

// Transforms lists every transform with a discovered compiler.
func (r *Registry) Transforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byTrans))
	for t := range r.byTrans {
		out = append(out, t)
	}
	return out
}

// CompilerHash queries transform's compiler for its compiler_hash_list under
// (target, platform, locale). Concurrent calls for the same
// (transform, target, platform, locale) collapse into a single subprocess
// invocation via singleflight, per section 4.5.
func (r *Registry) CompilerHash(ctx context.Context, transform, target, platform, locale string) ([]uint64, error) {
	entry, err := r.Lookup(transform)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s\x00%s\x00%s\x00%s", transform, target, platform, locale)
	v, err, _ := r.hashGroup.Do(key, func() (any, error) {
		args := []string{"compiler-hash", "--target", target, "--platform", platform, "--locale", locale, "--transform", transform}
		resp, err := invokeWithRetry(ctx, r.newCmd, entry.Path, args, func() *compilerHashResponse {
			return &compilerHashResponse{}
		})
		if err != nil {
			return nil, err
		}
		hashes := make([]uint64, len(resp.CompilerHashList))
		for i, pair := range resp.CompilerHashList {
			hashes[i] = pair.Hash
		}
		return hashes, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]uint64), nil
}

// Compile invokes transform's compiler with req, returning its declared
// outputs and cross-references.
func (r *Registry) Compile(ctx context.Context, transform string, req CompileRequest) ([]CompiledResource, []ResourceReference, error) {
	entry, err := r.Lookup(transform)
	if err != nil {
		return nil, nil, err
	}
	if entry.Info.Transform != transform {
		return nil, nil, ferr.New(ferr.CodeInvalidTransform,
			fmt.Sprintf("compiler at %s declares transform %q, wanted %q", entry.Path, entry.Info.Transform, transform))
	}

	args := []string{"compile", req.PathID}
	for _, d := range req.SrcDeps {
		args = append(args, "--src-deps", d)
	}
	for _, d := range req.DerDeps {
		args = append(args, "--der-deps", d)
	}
	args = append(args,
		"--offline-manifest-id", req.OfflineManifestID,
		"--target", req.Target,
		"--platform", req.Platform,
		"--locale", req.Locale,
	)

	resp, err := invokeWithRetry(ctx, r.newCmd, entry.Path, args, func() *compileResponse {
		return &compileResponse{}
	})
	if err != nil {
		return nil, nil, err
	}
	return resp.CompiledResources, resp.ResourceReferences, nil
}
