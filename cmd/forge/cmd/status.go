package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgecore/forge/internal/compiler"
	"github.com/forgecore/forge/internal/config"
	"github.com/forgecore/forge/internal/daemon"
	"github.com/forgecore/forge/internal/output"
	"github.com/forgecore/forge/pkg/version"
)

type statusInfo struct {
	Root             string   `json:"root"`
	ContentProvider  string   `json:"content_provider"`
	BuildIndexPath   string   `json:"build_index_path"`
	CoreVersion      string   `json:"core_version"`
	CompilerSearch   []string `json:"compiler_search_paths"`
	Transforms       []string `json:"discovered_transforms"`
	DaemonRunning    bool     `json:"daemon_running"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool
	var root string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show effective configuration and discovered compilers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, root, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&root, "root", "", "Project root (defaults to the discovered project root)")
	return cmd
}

func runStatus(cmd *cobra.Command, root string, jsonOutput bool) error {
	if root == "" {
		root = projectRootOrCwd()
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	coreVersion := version.CoreVersion()
	if cfg.Core.VersionOverride != "" {
		coreVersion = cfg.Core.VersionOverride
	}

	registry := compiler.NewRegistry(coreVersion)
	ctx := cmd.Context()
	_ = registry.Discover(ctx, cfg.Compilers.SearchPaths)

	info := statusInfo{
		Root:            root,
		ContentProvider: string(cfg.ContentStore.Provider),
		BuildIndexPath:  resolvePath(root, cfg.BuildIndex.Path),
		CoreVersion:     coreVersion,
		CompilerSearch:  cfg.Compilers.SearchPaths,
		Transforms:      registry.Transforms(),
		DaemonRunning:   daemon.NewClient(daemon.DefaultConfig()).IsRunning(),
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("", "Project root:      %s", info.Root)
	out.Statusf("", "Content provider:  %s", info.ContentProvider)
	out.Statusf("", "Build index:       %s", info.BuildIndexPath)
	out.Statusf("", "Core version:      %s", info.CoreVersion)
	out.Statusf("", "Compiler paths:    %s", joinPaths(info.CompilerSearch))
	out.Statusf("", "Transforms found:  %d", len(info.Transforms))
	out.Statusf("", "Daemon running:    %t", info.DaemonRunning)
	return nil
}
