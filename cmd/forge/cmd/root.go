// Package cmd provides the CLI commands for forge.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgecore/forge/internal/ferr"
	"github.com/forgecore/forge/internal/logging"
	"github.com/forgecore/forge/internal/profiling"
	"github.com/forgecore/forge/pkg/version"
)

// Profiling flags, mirroring the lifecycle the daemon and batch subcommands
// both run under.
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

// Debug logging flag.
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the forge CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forge",
		Short: "Content-addressed build engine",
		Long: `forge compiles source resources into content-addressed, deduplicated
build outputs: it pulls a project's resources, computes an evaluation
order over transform chains, invokes external compilers, and persists
results in a manifest mapping each resource path to its content identifier.

Run 'forge source-pull' then 'forge compile' in a project directory
to get started.`,
		Version:           version.Short(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: startProfilingAndLogging,
		PersistentPostRunE: stopProfilingAndLogging,
	}

	cmd.SetVersionTemplate("forge version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.forge/logs/")

	cmd.AddCommand(newSourcePullCmd())
	cmd.AddCommand(newCompileCmd())
	cmd.AddCommand(newRegistryCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts debug logging and CPU/trace profiling if
// the corresponding flags were set.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error

	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Debug("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	}

	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
	}

	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
			}
			return fmt.Errorf("failed to start trace: %w", err)
		}
	}

	return nil
}

// stopProfilingAndLogging stops profiling and logging, writing a heap
// profile first if requested.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command, printing a one-line error summary plus a
// suggestion hint when the failing error carries one (section 7).
func Execute() error {
	err := NewRootCmd().Execute()
	if err == nil {
		return nil
	}

	fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())

	var fe *ferr.Error
	if errors.As(err, &fe) && fe.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "hint: %s\n", fe.Suggestion)
	}

	return err
}
