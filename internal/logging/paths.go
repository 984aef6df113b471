package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.forge/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".forge", "logs")
	}
	return filepath.Join(home, ".forge", "logs")
}

// DefaultLogPath returns the CLI's default log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "cli.log")
}

// DaemonLogPath returns the content-store daemon's log path.
func DaemonLogPath() string {
	return filepath.Join(DefaultLogDir(), "daemon.log")
}

// LogSource represents the source of logs to view.
type LogSource string

const (
	// LogSourceCLI is the one-shot CLI process's own logs (default).
	LogSourceCLI LogSource = "cli"
	// LogSourceDaemon is the long-running content-store daemon's logs.
	LogSourceDaemon LogSource = "daemon"
	// LogSourceAll combines all log sources.
	LogSourceAll LogSource = "all"
)

// FindLogFile attempts to find the log file for viewing.
// Priority:
// 1. Explicit path (if provided)
// 2. ~/.forge/logs/cli.log (global)
//
// Returns an error if no log file is found.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	globalPath := DefaultLogPath()
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath, nil
	}

	return "", fmt.Errorf("no log file found. Process may not have run with --debug yet.\nExpected at: %s", globalPath)
}

// FindLogFileBySource finds log files based on the source type.
// Returns a list of log file paths that exist.
func FindLogFileBySource(source LogSource, explicit string) ([]string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return []string{explicit}, nil
		}
		return nil, fmt.Errorf("log file not found: %s", explicit)
	}

	var paths []string
	var checked []string

	switch source {
	case LogSourceCLI:
		cliPath := DefaultLogPath()
		checked = append(checked, cliPath)
		if _, err := os.Stat(cliPath); err == nil {
			paths = append(paths, cliPath)
		}

	case LogSourceDaemon:
		daemonPath := DaemonLogPath()
		checked = append(checked, daemonPath)
		if _, err := os.Stat(daemonPath); err == nil {
			paths = append(paths, daemonPath)
		}

	case LogSourceAll:
		cliPath := DefaultLogPath()
		daemonPath := DaemonLogPath()
		checked = append(checked, cliPath, daemonPath)

		if _, err := os.Stat(cliPath); err == nil {
			paths = append(paths, cliPath)
		}
		if _, err := os.Stat(daemonPath); err == nil {
			paths = append(paths, daemonPath)
		}

	default:
		return nil, fmt.Errorf("unknown log source: %s (use: cli, daemon, all)", source)
	}

	if len(paths) == 0 {
		hint := getLogHint(source)
		return nil, fmt.Errorf("no log files found for source '%s'.\nChecked: %v\n\n%s", source, checked, hint)
	}

	return paths, nil
}

// ParseLogSource parses a string into a LogSource.
func ParseLogSource(s string) LogSource {
	switch s {
	case "daemon":
		return LogSourceDaemon
	case "all":
		return LogSourceAll
	default:
		return LogSourceCLI
	}
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	dir := DefaultLogDir()
	return os.MkdirAll(dir, 0o755)
}

// getLogHint returns a helpful message on how to generate logs for the given source.
func getLogHint(source LogSource) string {
	switch source {
	case LogSourceCLI:
		return "To generate CLI logs:\n  forge --debug compile <target>"
	case LogSourceDaemon:
		return "To generate daemon logs:\n  forge --debug daemon start"
	case LogSourceAll:
		return "To generate logs:\n  CLI:    forge --debug compile <target>\n  Daemon: forge --debug daemon start"
	default:
		return ""
	}
}
