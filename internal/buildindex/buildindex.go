package buildindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // pure-Go driver, no cgo

	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
)

const schema = `
CREATE TABLE IF NOT EXISTS resources (
	path_id TEXT PRIMARY KEY,
	resource_hash INTEGER,
	deps TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS compiled (
	path_id TEXT NOT NULL,
	context_hash INTEGER NOT NULL,
	source_hash INTEGER NOT NULL,
	outputs TEXT NOT NULL,
	"references" TEXT NOT NULL,
	PRIMARY KEY (path_id, context_hash, source_hash)
);
CREATE TABLE IF NOT EXISTS meta (
	version TEXT NOT NULL,
	project_index_path TEXT NOT NULL
);
`

// BuildIndex is the persistent build-graph database: resources(path_id,
// resource_hash, deps), compiled((path_id, context_hash, source_hash) ->
// outputs, references), and a single meta row recording the core version
// this index was created against.
//
// Guarded by an in-process mutex plus a cross-process gofrs/flock advisory
// lock on "<path>.lock" (section 5: "the build index is guarded by a
// single writer lock; readers may be concurrent" — SQLite's own WAL mode
// provides the concurrent readers).
type BuildIndex struct {
	mu      sync.Mutex
	db      *sql.DB
	lock    *flock.Flock
	version string
}

func openDB(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ferr.Wrap(ferr.CodeCorruptedTree, "open build index database", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// CreateNew initializes a fresh database bound to projectIndexPath and
// version at path, overwriting nothing but failing if a build index
// already exists there.
func CreateNew(ctx context.Context, path, projectIndexPath, version string) (*BuildIndex, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, ferr.New(ferr.CodeHashRefAlreadyExists, "build index already exists at "+path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ferr.Wrap(ferr.CodeAssetStoreError, "create build index directory", err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, ferr.Wrap(ferr.CodeCorruptedTree, "create build index schema", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO meta (version, project_index_path) VALUES (?, ?)`, version, projectIndexPath); err != nil {
		db.Close()
		return nil, ferr.Wrap(ferr.CodeCorruptedTree, "write build index meta row", err)
	}

	return &BuildIndex{db: db, lock: flock.New(path + ".lock"), version: version}, nil
}

// Open opens an existing build index at path, rejecting it if its stored
// version does not match version.
func Open(ctx context.Context, path, version string) (*BuildIndex, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ferr.New(ferr.CodeResourceNotFound, "no build index at "+path)
		}
		return nil, ferr.Wrap(ferr.CodeAssetStoreError, "stat build index", err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	var storedVersion string
	err = db.QueryRowContext(ctx, `SELECT version FROM meta LIMIT 1`).Scan(&storedVersion)
	if err != nil {
		db.Close()
		return nil, ferr.Wrap(ferr.CodeCorruptedTree, "read build index meta row", err)
	}
	if storedVersion != version {
		db.Close()
		return nil, ferr.New(ferr.CodeVersionMismatch,
			"build index was created with core version "+storedVersion+", running version is "+version)
	}

	return &BuildIndex{db: db, lock: flock.New(path + ".lock"), version: version}, nil
}

// OpenOrCreate opens the build index at path, falling back to CreateNew
// when none exists (section 3.1 supplement, mirroring the original's
// open_or_create convenience constructor).
func OpenOrCreate(ctx context.Context, path, projectIndexPath, version string) (*BuildIndex, error) {
	bi, err := Open(ctx, path, version)
	if err == nil {
		return bi, nil
	}
	if !ferr.Is(err, ferr.CodeResourceNotFound) {
		return nil, err
	}
	return CreateNew(ctx, path, projectIndexPath, version)
}

// Close releases the underlying database handle.
func (b *BuildIndex) Close() error {
	return b.db.Close()
}

func encodeDeps(deps []ResourcePathID) string {
	raw := make([]string, len(deps))
	for i, d := range deps {
		raw[i] = d.String()
	}
	data, _ := json.Marshal(raw)
	return string(data)
}

func decodeDeps(s string) ([]ResourcePathID, error) {
	var raw []string
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, ferr.Wrap(ferr.CodeCorruptedTree, "decode dependency list", err)
	}
	deps := make([]ResourcePathID, len(raw))
	for i, r := range raw {
		d, err := ParseResourcePathID(r)
		if err != nil {
			return nil, err
		}
		deps[i] = d
	}
	return deps, nil
}

// UpdateResource idempotently upserts a graph node's (resource_hash, deps);
// changed reports whether the stored row differed from what was written.
func (b *BuildIndex) UpdateResource(ctx context.Context, pathID ResourcePathID, resourceHash *uint64, deps []ResourcePathID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.lock.Lock(); err != nil {
		return false, ferr.Wrap(ferr.CodeAssetStoreError, "acquire build index writer lock", err)
	}
	defer b.lock.Unlock()

	newDeps := encodeDeps(deps)
	var oldHash sql.NullInt64
	var oldDeps string
	err := b.db.QueryRowContext(ctx, `SELECT resource_hash, deps FROM resources WHERE path_id = ?`, pathID.String()).Scan(&oldHash, &oldDeps)
	switch {
	case err == sql.ErrNoRows:
		if _, err := b.db.ExecContext(ctx, `INSERT INTO resources (path_id, resource_hash, deps) VALUES (?, ?, ?)`,
			pathID.String(), nullableHash(resourceHash), newDeps); err != nil {
			return false, ferr.Wrap(ferr.CodeCorruptedTree, "insert resource row", err)
		}
		return true, nil
	case err != nil:
		return false, ferr.Wrap(ferr.CodeCorruptedTree, "read resource row", err)
	}

	unchanged := oldDeps == newDeps && nullInt64Equal(oldHash, resourceHash)
	if unchanged {
		return false, nil
	}
	if _, err := b.db.ExecContext(ctx, `UPDATE resources SET resource_hash = ?, deps = ? WHERE path_id = ?`,
		nullableHash(resourceHash), newDeps, pathID.String()); err != nil {
		return false, ferr.Wrap(ferr.CodeCorruptedTree, "update resource row", err)
	}
	return true, nil
}

func nullableHash(h *uint64) any {
	if h == nil {
		return nil
	}
	return int64(*h)
}

func nullInt64Equal(stored sql.NullInt64, h *uint64) bool {
	if h == nil {
		return !stored.Valid
	}
	return stored.Valid && uint64(stored.Int64) == *h
}

type resourceRow struct {
	hash *uint64
	deps []ResourcePathID
}

func (b *BuildIndex) readResource(ctx context.Context, pathID ResourcePathID) (*resourceRow, error) {
	var hash sql.NullInt64
	var depsRaw string
	err := b.db.QueryRowContext(ctx, `SELECT resource_hash, deps FROM resources WHERE path_id = ?`, pathID.String()).Scan(&hash, &depsRaw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ferr.Wrap(ferr.CodeCorruptedTree, "read resource row", err)
	}
	deps, err := decodeDeps(depsRaw)
	if err != nil {
		return nil, err
	}
	row := &resourceRow{deps: deps}
	if hash.Valid {
		h := uint64(hash.Int64)
		row.hash = &h
	}
	return row, nil
}

// ComputeSourceHash recursively combines pathID's own resource_hash with
// the source hashes of its direct dependencies. A dependency cycle fails
// with ferr.CodeCorruptedTree.
func (b *BuildIndex) ComputeSourceHash(ctx context.Context, pathID ResourcePathID) (uint64, error) {
	return b.computeSourceHash(ctx, pathID, map[string]bool{})
}

func (b *BuildIndex) computeSourceHash(ctx context.Context, pathID ResourcePathID, visiting map[string]bool) (uint64, error) {
	key := pathID.String()
	if visiting[key] {
		return 0, ferr.New(ferr.CodeCorruptedTree, "dependency cycle detected at "+key)
	}
	visiting[key] = true
	defer delete(visiting, key)

	row, err := b.readResource(ctx, pathID)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, ferr.New(ferr.CodeResourceNotFound, "no build index entry for "+key)
	}

	values := []uint64{0}
	if row.hash != nil {
		values[0] = *row.hash
	}
	for _, dep := range row.deps {
		depHash, err := b.computeSourceHash(ctx, dep, visiting)
		if err != nil {
			return 0, err
		}
		values = append(values, depHash)
	}
	return combineHash(values...), nil
}

// EvaluationOrder returns the transitive closure of target in dependency
// order (leaves first), with ties among independently ready nodes broken
// by lexicographic ResourcePathID order.
func (b *BuildIndex) EvaluationOrder(ctx context.Context, target ResourcePathID) ([]ResourcePathID, error) {
	var order []ResourcePathID
	visited := map[string]bool{}
	visiting := map[string]bool{}

	var visit func(p ResourcePathID) error
	visit = func(p ResourcePathID) error {
		key := p.String()
		if visited[key] {
			return nil
		}
		if visiting[key] {
			return ferr.New(ferr.CodeCorruptedTree, "dependency cycle detected at "+key)
		}
		visiting[key] = true

		row, err := b.readResource(ctx, p)
		if err != nil {
			return err
		}
		if row == nil {
			return ferr.New(ferr.CodeResourceNotFound, "no build index entry for "+key)
		}
		deps := append([]ResourcePathID(nil), row.deps...)
		sort.Slice(deps, func(i, j int) bool { return deps[i].Less(deps[j]) })
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}

		delete(visiting, key)
		visited[key] = true
		order = append(order, p)
		return nil
	}

	if err := visit(target); err != nil {
		return nil, err
	}
	return order, nil
}

// FindDependencies returns target's declared dependency list, or ok=false
// if target has no build index entry.
func (b *BuildIndex) FindDependencies(ctx context.Context, pathID ResourcePathID) ([]ResourcePathID, bool, error) {
	row, err := b.readResource(ctx, pathID)
	if err != nil {
		return nil, false, err
	}
	if row == nil {
		return nil, false, nil
	}
	return row.deps, true, nil
}

// FindCompiled looks up the cached compile outputs for
// (pathID, contextHash, sourceHash); ok=false means no cached entry, not an
// error.
func (b *BuildIndex) FindCompiled(ctx context.Context, pathID ResourcePathID, contextHash, sourceHash uint64) ([]CompiledResourceInfo, []CompiledResourceReference, bool, error) {
	var outputsRaw, refsRaw string
	err := b.db.QueryRowContext(ctx,
		`SELECT outputs, "references" FROM compiled WHERE path_id = ? AND context_hash = ? AND source_hash = ?`,
		pathID.String(), int64(contextHash), int64(sourceHash)).Scan(&outputsRaw, &refsRaw)
	if err == sql.ErrNoRows {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, ferr.Wrap(ferr.CodeCorruptedTree, "read compiled cache row", err)
	}

	outputs, err := decodeOutputs(outputsRaw)
	if err != nil {
		return nil, nil, false, err
	}
	refs, err := decodeReferences(refsRaw)
	if err != nil {
		return nil, nil, false, err
	}
	return outputs, refs, true, nil
}

// InsertCompiled records the compile outputs and references for
// (pathID, contextHash, sourceHash), superseding any prior entry for the
// same key.
func (b *BuildIndex) InsertCompiled(ctx context.Context, pathID ResourcePathID, contextHash, sourceHash uint64, resources []CompiledResourceInfo, refs []CompiledResourceReference) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.lock.Lock(); err != nil {
		return ferr.Wrap(ferr.CodeAssetStoreError, "acquire build index writer lock", err)
	}
	defer b.lock.Unlock()

	outputsRaw, err := encodeOutputs(resources)
	if err != nil {
		return err
	}
	refsRaw, err := encodeReferences(refs)
	if err != nil {
		return err
	}

	_, err = b.db.ExecContext(ctx,
		`INSERT INTO compiled (path_id, context_hash, source_hash, outputs, "references") VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path_id, context_hash, source_hash) DO UPDATE SET outputs = excluded.outputs, "references" = excluded."references"`,
		pathID.String(), int64(contextHash), int64(sourceHash), outputsRaw, refsRaw)
	if err != nil {
		return ferr.Wrap(ferr.CodeCorruptedTree, "insert compiled cache row", err)
	}
	return nil
}

func encodeOutputs(resources []CompiledResourceInfo) (string, error) {
	wire := make([]wireCompiledResourceInfo, len(resources))
	for i, r := range resources {
		wire[i] = wireCompiledResourceInfo{Path: r.Path.String(), Identifier: r.Identifier.String()}
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return "", ferr.Wrap(ferr.CodeCorruptedTree, "encode compiled outputs", err)
	}
	return string(data), nil
}

func decodeOutputs(raw string) ([]CompiledResourceInfo, error) {
	var wire []wireCompiledResourceInfo
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, ferr.Wrap(ferr.CodeCorruptedTree, "decode compiled outputs", err)
	}
	out := make([]CompiledResourceInfo, len(wire))
	for i, w := range wire {
		path, err := ParseResourcePathID(w.Path)
		if err != nil {
			return nil, err
		}
		id, err := contentid.Parse(w.Identifier)
		if err != nil {
			return nil, err
		}
		out[i] = CompiledResourceInfo{Path: path, Identifier: id}
	}
	return out, nil
}

func encodeReferences(refs []CompiledResourceReference) (string, error) {
	wire := make([]wireCompiledResourceReference, len(refs))
	for i, r := range refs {
		wire[i] = wireCompiledResourceReference{From: r.From.String(), To: r.To.String()}
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return "", ferr.Wrap(ferr.CodeCorruptedTree, "encode compiled references", err)
	}
	return string(data), nil
}

func decodeReferences(raw string) ([]CompiledResourceReference, error) {
	var wire []wireCompiledResourceReference
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, ferr.Wrap(ferr.CodeCorruptedTree, "decode compiled references", err)
	}
	out := make([]CompiledResourceReference, len(wire))
	for i, w := range wire {
		from, err := ParseResourcePathID(w.From)
		if err != nil {
			return nil, err
		}
		to, err := ParseResourcePathID(w.To)
		if err != nil {
			return nil, err
		}
		out[i] = CompiledResourceReference{From: from, To: to}
	}
	return out, nil
}
