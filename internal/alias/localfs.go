package alias

import (
	"context"
	"os"
	"path/filepath"

	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
)

// LocalFSProvider persists aliases as one file per (key_space, key) under
// a root directory, using atomic temp-file+rename writes (teacher idiom,
// internal/session/storage.go).
type LocalFSProvider struct {
	root string
}

// NewLocalFSProvider returns a provider rooted at dir.
func NewLocalFSProvider(dir string) (*LocalFSProvider, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ferr.Wrap(ferr.CodeIntegrityFailure, "create alias store directory", err)
	}
	return &LocalFSProvider{root: dir}, nil
}

func (p *LocalFSProvider) pathFor(keySpace, key string) string {
	return filepath.Join(p.root, keySpace, key+".alias")
}

func (p *LocalFSProvider) RegisterAlias(_ context.Context, keySpace, key string, id contentid.ID) error {
	path := p.pathFor(keySpace, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ferr.Wrap(ferr.CodeIntegrityFailure, "create alias key-space directory", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(id.String()), 0o644); err != nil {
		return ferr.Wrap(ferr.CodeIntegrityFailure, "write alias file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return ferr.Wrap(ferr.CodeIntegrityFailure, "commit alias file", err)
	}
	return nil
}

func (p *LocalFSProvider) ResolveAlias(_ context.Context, keySpace, key string) (contentid.ID, error) {
	data, err := os.ReadFile(p.pathFor(keySpace, key))
	if os.IsNotExist(err) {
		return contentid.ID{}, ferr.NotFound(ferr.CodeAliasNotFound, "alias not found: "+keySpace+"/"+key)
	}
	if err != nil {
		return contentid.ID{}, ferr.Wrap(ferr.CodeIntegrityFailure, "read alias file", err)
	}
	return contentid.Parse(string(data))
}
