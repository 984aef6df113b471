// Package alias implements the alias provider (spec component C3): a
// mutable mapping (key_space, key) -> content identifier, layered over
// otherwise-immutable content. Alias key spaces and keys are treated
// byte-literally — case is never normalized (spec section 9, Open
// Question, resolved: preserve byte-literal comparison).
package alias

import (
	"context"
	"sync"

	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
)

// Provider is the capability set every alias backend implements.
// Pluggable-backend shape mirrors internal/content.Provider, grounded on
// the same factory/backend pattern as internal/embed/factory.go (teacher).
type Provider interface {
	// RegisterAlias maps (ks, key) to id. A second call with the same key
	// overwrites the previous mapping (last-writer-wins, spec section 3).
	RegisterAlias(ctx context.Context, keySpace, key string, id contentid.ID) error

	// ResolveAlias looks up (ks, key). Absence is ferr.CodeAliasNotFound.
	ResolveAlias(ctx context.Context, keySpace, key string) (contentid.ID, error)
}

type aliasKey struct {
	keySpace string
	key      string
}

// MemoryProvider is a process-local alias provider backed by a map.
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[aliasKey]contentid.ID
}

// NewMemoryProvider returns an empty in-memory alias provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[aliasKey]contentid.ID)}
}

func (m *MemoryProvider) RegisterAlias(_ context.Context, keySpace, key string, id contentid.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[aliasKey{keySpace, key}] = id
	return nil
}

func (m *MemoryProvider) ResolveAlias(_ context.Context, keySpace, key string) (contentid.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.data[aliasKey{keySpace, key}]
	if !ok {
		return contentid.ID{}, ferr.NotFound(ferr.CodeAliasNotFound,
			"alias not found: "+keySpace+"/"+key)
	}
	return id, nil
}
