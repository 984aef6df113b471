package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgecore/forge/internal/output"
)

func newSourcePullCmd() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "source-pull",
		Short: "Record the project's resources and dependency edges into the build index",
		Long: `Enumerate the project's resource index (project.json), recording each
resource's declared content hash and dependency edges in the build index.
Re-running after an edit only touches rows whose hash or deps actually
changed, so it is safe to run on every build.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSourcePull(cmd, root)
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "Project root (defaults to the discovered project root)")
	return cmd
}

func runSourcePull(cmd *cobra.Command, root string) error {
	out := output.New(cmd.OutOrStdout())

	if root == "" {
		root = projectRootOrCwd()
	}

	ctx := cmd.Context()
	engine, closeEngine, err := openEngine(ctx, root)
	if err != nil {
		return err
	}
	defer func() { _ = closeEngine() }()

	changed, err := engine.SourcePull(ctx)
	if err != nil {
		return fmt.Errorf("source pull: %w", err)
	}

	out.Successf("Source pull complete: %d resource(s) changed", changed)
	return nil
}
