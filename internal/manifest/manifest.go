// Package manifest persists the mapping from compiled resource paths to
// content identifiers that a runtime loads to locate resources. Grounded on
// internal/session/storage.go's SaveSession/LoadSession atomic temp-file +
// rename pattern (teacher), retargeted at the compiled_resources schema and
// composed with a gofrs/flock advisory lock for the duration of a merge.
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"

	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
)

// Entry is one compiled resource's path and content identifier.
type Entry struct {
	Path       string      `json:"path"`
	Identifier contentid.ID `json:"identifier"`
}

// Manifest is the persisted `{compiled_resources: [...]}` document.
type Manifest struct {
	CompiledResources []Entry `json:"compiled_resources"`
}

type wireEntry struct {
	Path       string `json:"path"`
	Identifier string `json:"identifier"`
}

type wireManifest struct {
	CompiledResources []wireEntry `json:"compiled_resources"`
}

func (m Manifest) MarshalJSON() ([]byte, error) {
	w := wireManifest{CompiledResources: make([]wireEntry, len(m.CompiledResources))}
	for i, e := range m.CompiledResources {
		w.CompiledResources[i] = wireEntry{Path: e.Path, Identifier: e.Identifier.String()}
	}
	return json.Marshal(w)
}

func (m *Manifest) UnmarshalJSON(data []byte) error {
	var w wireManifest
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	entries := make([]Entry, len(w.CompiledResources))
	for i, we := range w.CompiledResources {
		id, err := contentid.Parse(we.Identifier)
		if err != nil {
			return err
		}
		entries[i] = Entry{Path: we.Path, Identifier: id}
	}
	m.CompiledResources = entries
	return nil
}

// sortByPath sorts entries by path, the on-disk canonical order (section 6:
// "Persistent JSON: ..., sorted by path").
func (m *Manifest) sortByPath() {
	sort.Slice(m.CompiledResources, func(i, j int) bool {
		return m.CompiledResources[i].Path < m.CompiledResources[j].Path
	})
}

// Merge replaces or appends each of additions by path equality, matching
// "Replacement of an entry is by path equality."
func (m *Manifest) Merge(additions []Entry) {
	byPath := make(map[string]int, len(m.CompiledResources))
	for i, e := range m.CompiledResources {
		byPath[e.Path] = i
	}
	for _, add := range additions {
		if idx, ok := byPath[add.Path]; ok {
			m.CompiledResources[idx] = add
			continue
		}
		byPath[add.Path] = len(m.CompiledResources)
		m.CompiledResources = append(m.CompiledResources, add)
	}
	m.sortByPath()
}

// Load reads and parses the manifest at path. A missing file is not an
// error: the compile call creates an empty manifest when none exists.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Manifest{}, nil
	}
	if err != nil {
		return Manifest{}, ferr.Wrap(ferr.CodeInvalidManifest, "reading manifest "+path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, ferr.Wrap(ferr.CodeInvalidManifest, "parsing manifest "+path, err)
	}
	return m, nil
}

// Save writes m to path atomically via a temp-file-then-rename, matching
// the teacher's SaveSession pattern.
func Save(path string, m Manifest) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ferr.Wrap(ferr.CodeInvalidManifest, "creating manifest directory", err)
		}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return ferr.Wrap(ferr.CodeInvalidManifest, "marshalling manifest", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return ferr.Wrap(ferr.CodeInvalidManifest, "writing manifest temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return ferr.Wrap(ferr.CodeInvalidManifest, "renaming manifest into place", err)
	}
	return nil
}

// MergeInto loads the manifest at path (or starts empty), merges additions
// into it, and saves it back — all under path+".lock" so concurrent compile
// calls serialize their writes (section 5: "The runtime manifest is guarded
// by a file lock for the duration of a compile call").
func MergeInto(path string, additions []Entry) (Manifest, error) {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return Manifest{}, ferr.Wrap(ferr.CodeAssetStoreError, "locking manifest "+path, err)
	}
	defer lock.Unlock()

	m, err := Load(path)
	if err != nil {
		return Manifest{}, err
	}
	m.Merge(additions)
	if err := Save(path, m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
