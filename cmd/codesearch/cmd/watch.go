package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codesearch-core/codesearch/internal/config"
	"github.com/codesearch-core/codesearch/internal/embed"
	"github.com/codesearch-core/codesearch/internal/index"
	"github.com/codesearch-core/codesearch/internal/output"
	"github.com/codesearch-core/codesearch/internal/store"
	"github.com/codesearch-core/codesearch/internal/ui"
	"github.com/codesearch-core/codesearch/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch a directory and keep the index up to date",
		Long: `Watch a directory for file changes and incrementally reindex
affected files as they're created, modified, moved, or deleted.

Changes are debounced and coalesced before triggering a reindex, so a burst
of saves from an editor or a branch switch produces one reindex pass rather
than one per file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runWatch(ctx, cmd, path, debounce)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "Debounce window for coalescing file events")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, path string, debounce time.Duration) error {
	out := output.New(cmd.OutOrStdout())

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}
	dataDir := filepath.Join(root, ".codesearch")

	metadataPath := filepath.Join(dataDir, "metadata.db")
	if !fileExists(metadataPath) {
		return fmt.Errorf("no index found. Run 'codesearch index' first")
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to open metadata: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	bm25BasePath := filepath.Join(dataDir, "bm25")
	bm25, err := store.NewBM25IndexWithBackend(bm25BasePath, store.DefaultBM25Config(), cfg.Search.BM25Backend)
	if err != nil {
		return fmt.Errorf("failed to open BM25 index: %w", err)
	}
	defer func() { _ = bm25.Close() }()

	embedCtx, embedCancel := context.WithTimeout(ctx, 15*time.Second)
	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	embedder, err := embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model)
	embedCancel()
	if err != nil {
		return fmt.Errorf("embedder initialization failed: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	vectorCfg := store.DefaultVectorStoreConfig(embedder.Dimensions())
	vector, err := store.NewHNSWStore(vectorCfg)
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	defer func() { _ = vector.Close() }()

	if vectorPath := filepath.Join(dataDir, "vectors.hnsw"); fileExists(vectorPath) {
		_ = vector.Load(vectorPath)
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(), ui.WithForcePlain(true), ui.WithProjectDir(root)))

	runner, err := index.NewRunner(index.RunnerDependencies{
		Renderer: renderer,
		Config:   cfg,
		Metadata: metadata,
		BM25:     bm25,
		Vector:   vector,
		Embedder: embedder,
	})
	if err != nil {
		return fmt.Errorf("failed to create index runner: %w", err)
	}
	defer func() { _ = runner.Close() }()

	watchOpts := watcher.DefaultOptions()
	watchOpts.DebounceWindow = debounce

	w, err := watcher.NewHybridWatcher(watchOpts)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	if err := w.Start(ctx, root); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	out.Status("", fmt.Sprintf("Watching %s (%s watcher, debounce %s)", root, w.WatcherType(), debounce))
	out.Status("", "Press Ctrl+C to stop")

	for {
		select {
		case <-ctx.Done():
			out.Newline()
			out.Status("", "Stopping watcher")
			return nil
		case events, ok := <-w.Events():
			if !ok {
				return nil
			}
			out.Statusf("", "Detected %d change(s), reindexing...", len(events))
			result, err := runner.Run(ctx, index.RunnerConfig{RootDir: root, DataDir: dataDir})
			if err != nil {
				out.Errorf("reindex failed: %v", err)
				slog.Error("watch_reindex_failed", slog.String("error", err.Error()))
				continue
			}
			out.Successf("Reindexed %d files, %d chunks (%s)", result.Files, result.Chunks, result.Duration.Round(time.Millisecond))
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			out.Warning(err.Error())
			slog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}
