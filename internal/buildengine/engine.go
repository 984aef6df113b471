// Package buildengine orchestrates compilation: source-pull from a
// project, evaluation-order computation, per-node hashing, compile-or-cache
// decision, output linking, and manifest persistence (spec component C8).
// Grounded on the teacher's internal/index coordinator/runner
// (coordinator.go, runner.go) generalized from "index a codebase" to
// "compile a resource graph", and on original_source's databuild.rs for
// the exact compile/compile_node/compile_path/source_pull algorithm.
package buildengine

import (
	"context"
	"sort"
	"time"

	"github.com/forgecore/forge/internal/buildindex"
	"github.com/forgecore/forge/internal/compiler"
	"github.com/forgecore/forge/internal/content"
	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
	"github.com/forgecore/forge/internal/manifest"
)

// Environment names the (target, platform, locale) compilation context a
// compile call runs under.
type Environment struct {
	Target   string
	Platform string
	Locale   string
}

// Engine drives SourcePull and Compile over a project, build index,
// compiler registry, and content store.
type Engine struct {
	Project     Project
	BuildIndex  *buildindex.BuildIndex
	Compilers   *compiler.Registry
	Content     content.Provider
	CoreVersion string

	// InlineThreshold is the inline-content cutoff (internal/config's
	// ContentStoreConfig.InlineThreshold) used when Link mints identifiers
	// for composed asset files, so the configured threshold governs every
	// identifier this engine writes, not just the ones contentid.NewFromData
	// would mint under its package default.
	InlineThreshold int
}

// NewEngine assembles an Engine from its collaborators. inlineThreshold is
// the configured inline-content cutoff content identifiers minted by this
// engine's Link step should use.
func NewEngine(project Project, bi *buildindex.BuildIndex, compilers *compiler.Registry, store content.Provider, coreVersion string, inlineThreshold int) *Engine {
	return &Engine{Project: project, BuildIndex: bi, Compilers: compilers, Content: store, CoreVersion: coreVersion, InlineThreshold: inlineThreshold}
}

// SourcePull enumerates the project's resources, recording each one's
// (resource_hash, deps) in the build index, and — for every dependency that
// names a derived node — also registering an edge to its direct dependency
// so derived chains are reachable. Returns the count of changed rows.
func (e *Engine) SourcePull(ctx context.Context) (int, error) {
	resources, err := e.Project.ResourceList(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, id := range resources {
		hash, deps, err := e.Project.ResourceInfo(ctx, id)
		if err != nil {
			return changed, err
		}
		did, err := e.BuildIndex.UpdateResource(ctx, id, &hash, deps)
		if err != nil {
			return changed, err
		}
		if did {
			changed++
		}

		for _, dep := range deps {
			parent, ok := dep.Parent()
			if !ok {
				continue
			}
			did, err := e.BuildIndex.UpdateResource(ctx, dep, nil, []buildindex.ResourcePathID{parent})
			if err != nil {
				return changed, err
			}
			if did {
				changed++
			}
		}
	}
	return changed, nil
}

// ensureChainRegistered walks path's derived ancestry and registers any node
// that SourcePull never reached because nothing declared it as a dependency
// (the usual case for a top-level compile target handed straight to Compile
// rather than discovered through another resource's deps). Each missing node
// is given the same auto-edge SourcePull gives a "dependency that names a
// derived node": deps = [its own direct dependency].
func (e *Engine) ensureChainRegistered(ctx context.Context, path buildindex.ResourcePathID) error {
	if !path.IsDerived() {
		return nil
	}
	parent, ok := path.Parent()
	if !ok {
		return nil
	}
	if err := e.ensureChainRegistered(ctx, parent); err != nil {
		return err
	}
	if _, found, err := e.BuildIndex.FindDependencies(ctx, path); err != nil {
		return err
	} else if found {
		return nil
	}
	_, err := e.BuildIndex.UpdateResource(ctx, path, nil, []buildindex.ResourcePathID{parent})
	return err
}

// Compile drives the full compilation of compilePath under env, merging
// results into the persistent manifest at manifestPath (section 4.6).
func (e *Engine) Compile(ctx context.Context, compilePath buildindex.ResourcePathID, env Environment, manifestPath string) (*BuildReport, error) {
	source := compilePath.SourceResource()
	exists, err := e.Project.Exists(ctx, source)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ferr.NotFound(ferr.CodeResourceNotFound, "source resource does not exist: "+source.String())
	}

	if err := e.ensureChainRegistered(ctx, compilePath); err != nil {
		return nil, err
	}

	ordered, err := e.BuildIndex.EvaluationOrder(ctx, compilePath)
	if err != nil {
		return nil, err
	}

	transformHashes, err := e.resolveCompilerHashes(ctx, ordered, env)
	if err != nil {
		return nil, err
	}

	var (
		accumulatedDerivedDeps []buildindex.CompiledResourceInfo
		allResources           []buildindex.CompiledResourceInfo
		allRefs                []buildindex.CompiledResourceReference
		stats                  []CompileStat
	)

	for _, n := range ordered {
		parent, ok := n.Parent()
		if !ok {
			continue // source node: nothing to compile
		}

		from, to, hasTransform := n.LastTransform()
		if !hasTransform {
			continue
		}
		transform := from + "-" + to
		compilerHash, ok := transformHashes[transform]
		if !ok {
			return nil, ferr.NotFound(ferr.CodeCompilerNotFound, "no compiler resolved for transform "+transform)
		}

		ctxHash := contextHash(transform, compilerHash, e.CoreVersion)
		srcHash, err := e.BuildIndex.ComputeSourceHash(ctx, n)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		resources, refs, fromCache, err := e.compileNode(ctx, n, parent, transform, env, ctxHash, srcHash, accumulatedDerivedDeps)
		if err != nil {
			return nil, err
		}
		elapsed := time.Since(start)

		for range resources {
			stats = append(stats, CompileStat{Path: n, Duration: elapsed, FromCache: fromCache})
		}
		accumulatedDerivedDeps = append(accumulatedDerivedDeps, resources...)
		allResources = append(allResources, resources...)
		allRefs = append(allRefs, refs...)
	}

	linked, err := Link(ctx, e.Content, e.InlineThreshold, allResources, allRefs)
	if err != nil {
		return nil, err
	}

	entries := make([]manifest.Entry, len(linked))
	for i, l := range linked {
		entries[i] = manifest.Entry{Path: l.Path.String(), Identifier: l.Identifier}
	}

	merged, err := manifest.MergeInto(manifestPath, entries)
	if err != nil {
		return nil, err
	}

	return &BuildReport{Manifest: merged, Stats: stats}, nil
}

// resolveCompilerHashes collects the unique transforms among ordered's
// derived nodes and resolves each to a single compiler_hash, querying each
// transform's compiler exactly once.
func (e *Engine) resolveCompilerHashes(ctx context.Context, ordered []buildindex.ResourcePathID, env Environment) (map[string]uint64, error) {
	seen := make(map[string]bool)
	var transforms []string
	for _, n := range ordered {
		if !n.IsDerived() {
			continue
		}
		from, to, ok := n.LastTransform()
		if !ok {
			continue
		}
		transform := from + "-" + to
		if seen[transform] {
			continue
		}
		seen[transform] = true
		transforms = append(transforms, transform)
	}
	sort.Strings(transforms)

	hashes := make(map[string]uint64, len(transforms))
	for _, t := range transforms {
		hashList, err := e.Compilers.CompilerHash(ctx, t, env.Target, env.Platform, env.Locale)
		if err != nil {
			return nil, err
		}
		if len(hashList) == 0 {
			return nil, ferr.New(ferr.CodeCompilationFailed, "compiler for transform "+t+" returned an empty compiler_hash_list")
		}
		hashes[t] = hashList[0]
	}
	return hashes, nil
}

// compileNode resolves a cache hit or, on miss, invokes the compiler for n,
// recording the result in the build index.
func (e *Engine) compileNode(
	ctx context.Context,
	n, directDependency buildindex.ResourcePathID,
	transform string,
	env Environment,
	ctxHash, srcHash uint64,
	accumulatedDerivedDeps []buildindex.CompiledResourceInfo,
) ([]buildindex.CompiledResourceInfo, []buildindex.CompiledResourceReference, bool, error) {
	if cached, refs, ok, err := e.BuildIndex.FindCompiled(ctx, n, ctxHash, srcHash); err != nil {
		return nil, nil, false, err
	} else if ok {
		return cached, refs, true, nil
	}

	deps, _, err := e.BuildIndex.FindDependencies(ctx, directDependency)
	if err != nil {
		return nil, nil, false, err
	}

	srcDeps := make([]string, len(deps))
	for i, d := range deps {
		srcDeps[i] = d.String()
	}
	derDeps := make([]string, len(accumulatedDerivedDeps))
	for i, d := range accumulatedDerivedDeps {
		derDeps[i] = d.Identifier.String()
	}

	outputs, refs, err := e.Compilers.Compile(ctx, transform, compiler.CompileRequest{
		PathID:            n.String(),
		SrcDeps:           srcDeps,
		DerDeps:           derDeps,
		OfflineManifestID: n.String(),
		Target:            env.Target,
		Platform:          env.Platform,
		Locale:            env.Locale,
	})
	if err != nil {
		return nil, nil, false, err
	}

	resources := make([]buildindex.CompiledResourceInfo, len(outputs))
	for i, o := range outputs {
		path, err := buildindex.ParseResourcePathID(o.Path)
		if err != nil {
			return nil, nil, false, err
		}
		id, err := contentid.Parse(o.Identifier)
		if err != nil {
			return nil, nil, false, err
		}
		resources[i] = buildindex.CompiledResourceInfo{Path: path, Identifier: id}
	}

	references := make([]buildindex.CompiledResourceReference, len(refs))
	for i, r := range refs {
		from, err := buildindex.ParseResourcePathID(r.From)
		if err != nil {
			return nil, nil, false, err
		}
		to, err := buildindex.ParseResourcePathID(r.To)
		if err != nil {
			return nil, nil, false, err
		}
		references[i] = buildindex.CompiledResourceReference{From: from, To: to}
	}

	if err := e.BuildIndex.InsertCompiled(ctx, n, ctxHash, srcHash, resources, references); err != nil {
		return nil, nil, false, err
	}
	return resources, references, false, nil
}
