package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgecore/forge/internal/buildengine"
	"github.com/forgecore/forge/internal/buildindex"
	"github.com/forgecore/forge/internal/output"
	"github.com/forgecore/forge/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var (
		root     string
		target   string
		platform string
		locale   string
		manifestPath string
	)

	cmd := &cobra.Command{
		Use:   "watch [resource-path...]",
		Short: "Watch the project tree and recompile on change",
		Long: `Watch starts a recursive file-system watcher over the project root.
Every debounced batch of changes triggers a source-pull, refreshing the
build index's view of resource hashes and dependency edges. If one or
more resource paths are given, each is recompiled after every source-pull
so its manifest entry stays current as files change underneath it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args, root, target, platform, locale, manifestPath)
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Project root (defaults to the discovered project root)")
	cmd.Flags().StringVar(&target, "target", "", "Compilation target")
	cmd.Flags().StringVar(&platform, "platform", "", "Compilation platform")
	cmd.Flags().StringVar(&locale, "locale", "", "Compilation locale")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Manifest file path (defaults to manifest.json under the project root)")
	return cmd
}

func runWatch(cmd *cobra.Command, pathArgs []string, root, target, platform, locale, manifestPath string) error {
	out := output.New(cmd.OutOrStdout())

	if root == "" {
		root = projectRootOrCwd()
	}
	if manifestPath == "" {
		manifestPath = resolvePath(root, "manifest.json")
	}

	var watchPaths []buildindex.ResourcePathID
	for _, a := range pathArgs {
		id, err := buildindex.ParseResourcePathID(a)
		if err != nil {
			return fmt.Errorf("invalid resource path %q: %w", a, err)
		}
		watchPaths = append(watchPaths, id)
	}

	ctx := cmd.Context()
	engine, closeEngine, err := openEngine(ctx, root)
	if err != nil {
		return err
	}
	defer func() { _ = closeEngine() }()

	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	if err := w.Start(ctx, root); err != nil {
		return fmt.Errorf("start watcher (%s): %w", w.WatcherType(), err)
	}

	env := buildengine.Environment{Target: target, Platform: platform, Locale: locale}

	out.Statusf("", "Watching %s (%s)...", root, w.WatcherType())
	out.Status("", "Press Ctrl+C to stop")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			out.Errorf("watcher: %v", err)
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			runWatchCycle(ctx, out, engine, batch, watchPaths, env, manifestPath)
		}
	}
}

func runWatchCycle(ctx context.Context, out *output.Writer, engine *buildengine.Engine, batch []watcher.FileEvent, watchPaths []buildindex.ResourcePathID, env buildengine.Environment, manifestPath string) {
	out.Statusf("", "Detected %d change(s), running source-pull...", len(batch))

	changed, err := engine.SourcePull(ctx)
	if err != nil {
		out.Errorf("source-pull: %v", err)
		return
	}
	out.Successf("Source pull complete: %d resource(s) changed", changed)

	for _, p := range watchPaths {
		report, err := engine.Compile(ctx, p, env, manifestPath)
		if err != nil {
			out.Errorf("compile %s: %v", p.String(), err)
			continue
		}
		out.Successf("Compiled %s: %d node(s)", p.String(), len(report.Stats))
	}
}
