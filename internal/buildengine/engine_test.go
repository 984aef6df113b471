package buildengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecore/forge/internal/buildindex"
	"github.com/forgecore/forge/internal/compiler"
	"github.com/forgecore/forge/internal/content"
	"github.com/forgecore/forge/internal/contentid"
)

// testProject is a minimal in-memory Project for exercising SourcePull and
// Compile without a file-backed project index.
type testProject struct {
	hash map[string]uint64
	deps map[string][]buildindex.ResourcePathID
}

func newTestProject() *testProject {
	return &testProject{hash: map[string]uint64{}, deps: map[string][]buildindex.ResourcePathID{}}
}

func (p *testProject) set(id buildindex.ResourcePathID, hash uint64) {
	p.hash[id.String()] = hash
}

func (p *testProject) ResourceList(ctx context.Context) ([]buildindex.ResourcePathID, error) {
	var out []buildindex.ResourcePathID
	for k := range p.hash {
		id, err := buildindex.ParseResourcePathID(k)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (p *testProject) ResourceInfo(ctx context.Context, id buildindex.ResourcePathID) (uint64, []buildindex.ResourcePathID, error) {
	return p.hash[id.String()], p.deps[id.String()], nil
}

func (p *testProject) Exists(ctx context.Context, id buildindex.ResourcePathID) (bool, error) {
	_, ok := p.hash[id.String()]
	return ok, nil
}

// writeFakeCompiler drops an executable shell script answering info,
// compiler-hash and compile, counting invocations via a sidecar counter
// file so tests can assert exactly how many times the compiler ran.
func writeFakeCompiler(t *testing.T, dir, transform, counterPath string) string {
	t.Helper()
	script := `#!/bin/sh
case "$1" in
  info)
    echo '{"build_version":"v1","code_version":"1","data_version":"1","transform":"` + transform + `"}'
    ;;
  compiler-hash)
    echo '{"compiler_hash_list":[["` + transform + `",42]]}'
    ;;
  compile)
    echo -n x >> "` + counterPath + `"
    echo '{"compiled_resources":[{"path":"'"$2"'","identifier":"C:aGk"}],"resource_references":[]}'
    ;;
esac
`
	path := filepath.Join(dir, "fake-compiler")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestEngine(t *testing.T, project Project) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()

	compilerDir := filepath.Join(dir, "compilers")
	require.NoError(t, os.MkdirAll(compilerDir, 0o755))
	counterPath := filepath.Join(dir, "invocations")
	writeFakeCompiler(t, compilerDir, "material-runtime_material", counterPath)

	reg := compiler.NewRegistry("v1")
	require.NoError(t, reg.Discover(context.Background(), []string{compilerDir}))

	bi, err := buildindex.CreateNew(context.Background(), filepath.Join(dir, "index.db"), "project.json", "v1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bi.Close() })

	store := content.NewMemoryProvider()
	engine := NewEngine(project, bi, reg, store, "v1", contentid.InlineThreshold)
	return engine, counterPath
}

func invocationCount(t *testing.T, counterPath string) int {
	t.Helper()
	data, err := os.ReadFile(counterPath)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return len(data)
}

func materialPaths() (source, derived buildindex.ResourcePathID) {
	source = buildindex.NewResourcePathID(buildindex.Step{Type: "material", Name: "a"})
	derived = buildindex.NewResourcePathID(
		buildindex.Step{Type: "material", Name: "a"},
		buildindex.Step{Type: "runtime_material", Name: "a"},
	)
	return
}

func TestSourcePullRegistersResourcesAndReturnsChangedCount(t *testing.T) {
	source, _ := materialPaths()
	project := newTestProject()
	project.set(source, 1)

	engine, _ := newTestEngine(t, project)

	n, err := engine.SourcePull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = engine.SourcePull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "re-pulling unchanged resources should report no changes")
}

func TestCompileRejectsUnknownSourceResource(t *testing.T) {
	_, derived := materialPaths()
	project := newTestProject()
	engine, _ := newTestEngine(t, project)

	_, err := engine.Compile(context.Background(), derived, Environment{Target: "game", Platform: "linux", Locale: "en"}, filepath.Join(t.TempDir(), "manifest.json"))
	require.Error(t, err)
}

func TestCompileCachesAcrossRunsAndInvalidatesOnSourceChange(t *testing.T) {
	source, derived := materialPaths()
	project := newTestProject()
	project.set(source, 1)

	engine, counterPath := newTestEngine(t, project)
	env := Environment{Target: "game", Platform: "linux", Locale: "en"}
	manifestPath := filepath.Join(t.TempDir(), "manifest.json")

	require.NoError(t, func() error { _, err := engine.SourcePull(context.Background()); return err }())

	report, err := engine.Compile(context.Background(), derived, env, manifestPath)
	require.NoError(t, err)
	require.Len(t, report.Stats, 1)
	assert.False(t, report.Stats[0].FromCache)
	n0 := invocationCount(t, counterPath)
	assert.Equal(t, 1, n0)

	firstIdentifier := report.Manifest.CompiledResources[0].Identifier

	// Re-build without changing anything: must hit the cache, no new
	// compiler invocation, same resulting identifier.
	report, err = engine.Compile(context.Background(), derived, env, manifestPath)
	require.NoError(t, err)
	require.Len(t, report.Stats, 1)
	assert.True(t, report.Stats[0].FromCache)
	assert.Equal(t, n0, invocationCount(t, counterPath))
	assert.Equal(t, firstIdentifier, report.Manifest.CompiledResources[0].Identifier)

	// Change the source resource's hash and re-pull: the cached entry's
	// source_hash no longer matches, so compiling again must invoke the
	// compiler exactly once more.
	project.set(source, 2)
	_, err = engine.SourcePull(context.Background())
	require.NoError(t, err)

	report, err = engine.Compile(context.Background(), derived, env, manifestPath)
	require.NoError(t, err)
	require.Len(t, report.Stats, 1)
	assert.False(t, report.Stats[0].FromCache)
	assert.Equal(t, n0+1, invocationCount(t, counterPath))
}

func TestCompileRegistersTopLevelTargetWithoutPriorSourcePull(t *testing.T) {
	source, derived := materialPaths()
	project := newTestProject()
	project.set(source, 1)

	engine, _ := newTestEngine(t, project)
	env := Environment{Target: "game", Platform: "linux", Locale: "en"}

	// Compile is handed derived directly as a top-level target: nothing
	// declared it as a dependency, so Compile must register its chain
	// itself rather than requiring a prior SourcePull to have seen it.
	_, err := engine.BuildIndex.UpdateResource(context.Background(), source, uintptrHash(1), nil)
	require.NoError(t, err)

	report, err := engine.Compile(context.Background(), derived, env, filepath.Join(t.TempDir(), "manifest.json"))
	require.NoError(t, err)
	require.Len(t, report.Manifest.CompiledResources, 1)
}

func uintptrHash(v uint64) *uint64 { return &v }
