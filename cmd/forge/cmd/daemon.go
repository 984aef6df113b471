package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgecore/forge/internal/config"
	"github.com/forgecore/forge/internal/daemon"
	"github.com/forgecore/forge/internal/logging"
	"github.com/forgecore/forge/internal/output"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background content-store daemon",
		Long: `The daemon keeps a content.Provider and alias.Provider wired up in
memory and serves ReadContent/WriteContent/GetContentWriter/RegisterAlias/
ResolveAlias over a Unix socket, so CLI invocations don't have to reopen
backend connections (and, for a remote gRPC backend, re-dial) on every
call.

Examples:
  forge daemon start
  forge daemon start -f
  forge daemon status
  forge daemon stop`,
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())
	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the background daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStart(cmd.Context(), cmd, foreground)
		},
	}
	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (don't daemonize)")
	return cmd
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStop(cmd)
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStatus(cmd.Context(), cmd, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runDaemonStart(ctx context.Context, cmd *cobra.Command, foreground bool) error {
	out := output.New(cmd.OutOrStdout())
	cfg := daemon.DefaultConfig()

	client := daemon.NewClient(cfg)
	if client.IsRunning() {
		out.Status("", "Daemon is already running")
		return nil
	}

	if foreground {
		logCfg := logging.DefaultConfig()
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
		if logger, cleanup, err := logging.Setup(logCfg); err == nil {
			slog.SetDefault(logger)
			defer cleanup()
		}

		storeCfg, err := loadContentStoreConfig()
		if err != nil {
			return err
		}

		out.Status("", "Starting daemon in foreground...")
		out.Statusf("", "Socket: %s", cfg.SocketPath)
		out.Status("", "Press Ctrl+C to stop")

		d, err := daemon.NewDaemon(cfg, storeCfg)
		if err != nil {
			return fmt.Errorf("create daemon: %w", err)
		}
		return d.Start(ctx)
	}

	out.Status("", "Starting daemon in background...")

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("get executable path: %w", err)
	}

	bgCmd := exec.Command(execPath, "daemon", "start", "--foreground")
	bgCmd.Stdout = nil
	bgCmd.Stderr = nil
	bgCmd.Stdin = nil
	bgCmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := bgCmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- bgCmd.Wait() }()

	for i := 0; i < 20; i++ {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("daemon process exited unexpectedly: %w", err)
			}
			return fmt.Errorf("daemon process exited unexpectedly with code 0")
		default:
		}

		time.Sleep(100 * time.Millisecond)
		if client.IsRunning() {
			out.Successf("Daemon started (pid: %d)", bgCmd.Process.Pid)
			return nil
		}
	}

	return fmt.Errorf("daemon failed to start within timeout")
}

func runDaemonStop(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())
	cfg := daemon.DefaultConfig()

	pidFile := daemon.NewPIDFile(cfg.PIDPath)
	if !pidFile.IsRunning() {
		out.Status("", "Daemon is not running")
		return nil
	}

	pid, err := pidFile.Read()
	if err != nil {
		return fmt.Errorf("read PID: %w", err)
	}

	if err := pidFile.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("stop daemon: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !pidFile.IsRunning() {
			out.Successf("Daemon stopped (was pid: %d)", pid)
			return nil
		}
	}

	out.Status("", "Daemon not responding, sending SIGKILL...")
	if err := pidFile.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("kill daemon: %w", err)
	}
	out.Success("Daemon killed")
	return nil
}

func runDaemonStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())
	cfg := daemon.DefaultConfig()

	client := daemon.NewClient(cfg)
	if !client.IsRunning() {
		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(daemon.StatusResult{Running: false})
		}
		out.Status("", "Daemon is not running")
		out.Status("", "Run 'forge daemon start' to start it")
		return nil
	}

	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	out.Status("", "Daemon is running")
	out.Statusf("", "  PID:            %d", status.PID)
	out.Statusf("", "  Uptime:         %s", status.Uptime)
	out.Statusf("", "  Content driver: %s", status.ContentDriver)
	out.Statusf("", "  Socket:         %s", cfg.SocketPath)
	return nil
}

// loadContentStoreConfig loads the content-store section of the layered
// config for the discovered project root, falling back to the current
// directory if none is found (a daemon need not sit inside a project).
func loadContentStoreConfig() (config.ContentStoreConfig, error) {
	root := projectRootOrCwd()
	cfg, err := config.Load(root)
	if err != nil {
		return config.ContentStoreConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg.ContentStore, nil
}
