package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"os/exec"
	"time"

	"github.com/forgecore/forge/internal/content"
	"github.com/forgecore/forge/internal/ferr"
)

// infoTimeout bounds a single "info" discovery probe (section 4.5: "5s
// timeout via context.Context").
const infoTimeout = 5 * time.Second

// newCmd builds the subprocess for a compiler invocation. A field rather
// than a bare exec.CommandContext call so tests can substitute a fake
// compiler without touching PATH.
type newCmdFunc func(ctx context.Context, path string, args ...string) *exec.Cmd

func defaultNewCmd(ctx context.Context, path string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Cancel = func() error { return cmd.Process.Kill() }
	return cmd
}

// runJSON invokes path with args, feeding stdin nothing, and decodes its
// stdout as JSON into out. Per the protocol contract compilers must not
// write anything to stdout except their JSON response; stderr is carried
// along for diagnostics on failure.
func runJSON(ctx context.Context, newCmd newCmdFunc, path string, args []string, out any) error {
	cmd := newCmd(ctx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ferr.Cancelled(ctx.Err())
		}
		if _, ok := err.(*exec.ExitError); ok {
			return ferr.CompilationError(path+" "+joinArgs(args)+" exited non-zero", stderr.String())
		}
		return ferr.Wrap(ferr.CodeCompilationFailed, "failed to run "+path, err)
	}

	if err := json.Unmarshal(stdout.Bytes(), out); err != nil {
		return ferr.Wrap(ferr.CodeCompilationFailed, "malformed compiler output from "+path, err).
			WithDetail("stdout", stdout.String())
	}
	return nil
}

func joinArgs(args []string) string {
	s := ""
	for i, a := range args {
		if i > 0 {
			s += " "
		}
		s += a
	}
	return s
}

// invokeWithRetry wraps runJSON with the content package's exponential
// backoff loop (internal/content/retry.go), treating process spawn failures
// (exec.ErrNotFound, transient fork/exec errors) as retryable transport
// errors and everything else as terminal.
func invokeWithRetry[T any](ctx context.Context, newCmd newCmdFunc, path string, args []string, decode func() T) (T, error) {
	cfg := content.DefaultRetryConfig()
	return content.Retry(ctx, cfg, func() (T, error) {
		out := decode()
		err := runJSON(ctx, newCmd, path, args, out)
		if err != nil {
			return out, classifySpawnError(err)
		}
		return out, nil
	})
}

// classifySpawnError upgrades a bare exec "file not found"/"not executable"
// failure into a retryable Transport error; everything else (a compiler's
// own non-zero exit, malformed JSON) stays terminal so a broken compiler is
// not retried into a slow failure.
func classifySpawnError(err error) error {
	var fe *ferr.Error
	if e, ok := err.(*ferr.Error); ok {
		fe = e
	}
	if fe == nil || fe.Cause == nil {
		return err
	}
	switch fe.Cause.(type) {
	case *exec.Error, *fs.PathError:
		return ferr.Transport(fe.Message, fe.Cause)
	default:
		return err
	}
}
