package buildengine

import (
	"context"
	"encoding/json"
	"os"

	"github.com/forgecore/forge/internal/buildindex"
	"github.com/forgecore/forge/internal/ferr"
)

// Project is the source of truth for offline resources: their declared
// content hash and declared dependency edges. databuild.rs's source_pull
// drives this off a `legion_resources::Project` (a crate outside the
// retrieval pack); only its call shape (resource_list/resource_info/exists)
// is grounded here — the concrete file-backed implementation below is
// original to this package.
type Project interface {
	ResourceList(ctx context.Context) ([]buildindex.ResourcePathID, error)
	ResourceInfo(ctx context.Context, id buildindex.ResourcePathID) (resourceHash uint64, deps []buildindex.ResourcePathID, err error)
	Exists(ctx context.Context, id buildindex.ResourcePathID) (bool, error)
}

type fileProjectEntry struct {
	Path         string   `json:"path"`
	ResourceHash uint64   `json:"resource_hash"`
	Deps         []string `json:"deps"`
}

type fileProjectDoc struct {
	Resources []fileProjectEntry `json:"resources"`
}

// FileProject is a Project backed by a single JSON index file: a flat list
// of (path, resource_hash, deps) records describing every offline resource.
type FileProject struct {
	byPath map[string]fileProjectEntry
	order  []buildindex.ResourcePathID
}

// LoadFileProject reads path (the projectIndexPath a build index was opened
// against) and parses it into a FileProject.
func LoadFileProject(path string) (*FileProject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ferr.Wrap(ferr.CodeCorruptedTree, "reading project index "+path, err)
	}
	var doc fileProjectDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, ferr.Wrap(ferr.CodeCorruptedTree, "parsing project index "+path, err)
	}

	fp := &FileProject{byPath: make(map[string]fileProjectEntry, len(doc.Resources))}
	for _, e := range doc.Resources {
		fp.byPath[e.Path] = e
		id, err := buildindex.ParseResourcePathID(e.Path)
		if err != nil {
			return nil, err
		}
		fp.order = append(fp.order, id)
	}
	return fp, nil
}

func (fp *FileProject) ResourceList(ctx context.Context) ([]buildindex.ResourcePathID, error) {
	return fp.order, nil
}

func (fp *FileProject) ResourceInfo(ctx context.Context, id buildindex.ResourcePathID) (uint64, []buildindex.ResourcePathID, error) {
	e, ok := fp.byPath[id.String()]
	if !ok {
		return 0, nil, ferr.NotFound(ferr.CodeResourceNotFound, "unknown project resource "+id.String())
	}
	deps := make([]buildindex.ResourcePathID, len(e.Deps))
	for i, d := range e.Deps {
		parsed, err := buildindex.ParseResourcePathID(d)
		if err != nil {
			return 0, nil, err
		}
		deps[i] = parsed
	}
	return e.ResourceHash, deps, nil
}

func (fp *FileProject) Exists(ctx context.Context, id buildindex.ResourcePathID) (bool, error) {
	_, ok := fp.byPath[id.String()]
	return ok, nil
}
