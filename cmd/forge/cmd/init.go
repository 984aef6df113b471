package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forgecore/forge/configs"
	"github.com/forgecore/forge/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a project for forge",
		Long: `Create .forge.yaml in the current directory and an empty
project.json resource index, the minimum a project needs before
'forge source-pull' has anything to enumerate.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing project files")
	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	forgeYAML := filepath.Join(cwd, ".forge.yaml")
	if !force {
		if _, err := os.Stat(forgeYAML); err == nil {
			out.Warning(".forge.yaml already exists")
			out.Status("", "Use --force to overwrite")
			return nil
		}
	}
	if err := os.WriteFile(forgeYAML, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write .forge.yaml: %w", err)
	}
	out.Success("Created .forge.yaml")

	projectJSON := filepath.Join(cwd, "project.json")
	if _, err := os.Stat(projectJSON); os.IsNotExist(err) || force {
		if err := os.WriteFile(projectJSON, []byte(`{"resources":[]}`+"\n"), 0o644); err != nil {
			return fmt.Errorf("failed to write project.json: %w", err)
		}
		out.Success("Created project.json")
	}

	out.Newline()
	out.Status("", "Next: add resources to project.json, then run 'forge source-pull'")
	return nil
}
