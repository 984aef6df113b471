package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/forgecore/forge/internal/buildengine"
	"github.com/forgecore/forge/internal/buildindex"
	"github.com/forgecore/forge/internal/compiler"
	"github.com/forgecore/forge/internal/config"
	"github.com/forgecore/forge/internal/content"
	"github.com/forgecore/forge/pkg/version"
)

// resolvePath joins rel onto root unless rel is already absolute.
func resolvePath(root, rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(root, rel)
}

// openEngine assembles a buildengine.Engine for the project rooted at
// root: it loads the layered config, opens (or creates) the build index,
// discovers compilers on the configured search paths, constructs the
// content provider, and loads the project's resource index. The returned
// close function releases the build index's SQLite handle.
func openEngine(ctx context.Context, root string) (*buildengine.Engine, func() error, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	coreVersion := version.CoreVersion()
	if cfg.Core.VersionOverride != "" {
		coreVersion = cfg.Core.VersionOverride
	}

	projectIndexPath := resolvePath(root, cfg.BuildIndex.ProjectIndexPath)
	buildIndexPath := resolvePath(root, cfg.BuildIndex.Path)

	bi, err := buildindex.OpenOrCreate(ctx, buildIndexPath, projectIndexPath, coreVersion)
	if err != nil {
		return nil, nil, fmt.Errorf("open build index: %w", err)
	}

	registry := compiler.NewRegistry(coreVersion)
	if err := registry.Discover(ctx, cfg.Compilers.SearchPaths); err != nil {
		_ = bi.Close()
		return nil, nil, fmt.Errorf("discover compilers: %w", err)
	}

	store, err := content.NewProviderFromConfig(cfg.ContentStore)
	if err != nil {
		_ = bi.Close()
		return nil, nil, fmt.Errorf("build content provider: %w", err)
	}

	project, err := buildengine.LoadFileProject(projectIndexPath)
	if err != nil {
		_ = bi.Close()
		return nil, nil, fmt.Errorf("load project index %s: %w", projectIndexPath, err)
	}

	engine := buildengine.NewEngine(project, bi, registry, store, coreVersion, cfg.ContentStore.InlineThreshold)
	return engine, bi.Close, nil
}
