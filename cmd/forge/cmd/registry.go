package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgecore/forge/internal/compiler"
	"github.com/forgecore/forge/internal/config"
	"github.com/forgecore/forge/internal/output"
	"github.com/forgecore/forge/pkg/version"
)

func newRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect discovered compilers",
	}
	cmd.AddCommand(newRegistryListCmd())
	return cmd
}

func newRegistryListCmd() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every transform with a discovered compiler",
		Long: `Probe every executable on the configured compiler search paths (info
subcommand), keeping the first match per transform, and print the
resulting transform -> compiler table.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRegistryList(cmd, root)
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "Project root (defaults to the discovered project root)")
	return cmd
}

func runRegistryList(cmd *cobra.Command, root string) error {
	out := output.New(cmd.OutOrStdout())

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
	if err := registry.Discover(ctx, cfg.Compilers.SearchPaths); err != nil {
		return fmt.Errorf("discover compilers: %w", err)
	}

	transforms := registry.Transforms()
	if len(transforms) == 0 {
		out.Status("", "No compilers discovered on: "+joinPaths(cfg.Compilers.SearchPaths))
		return nil
	}

	for _, t := range transforms {
		entry, err := registry.Lookup(t)
		if err != nil {
			return err
		}
		out.Statusf("", "%-24s %s  (build=%s code=%s data=%s)",
			t, entry.Path, entry.Info.BuildVersion, entry.Info.CodeVersion, entry.Info.DataVersion)
	}
	return nil
}

func joinPaths(paths []string) string {
	result := ""
	for i, p := range paths {
		if i > 0 {
			result += ", "
		}
		result += p
	}
	return result
}
