package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codesearch-core/codesearch/internal/config"
	"github.com/codesearch-core/codesearch/internal/embed"
	"github.com/codesearch-core/codesearch/internal/index"
	"github.com/codesearch-core/codesearch/internal/store"
	"github.com/codesearch-core/codesearch/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var (
		noProgress bool
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for hybrid search",
		Long: `Scan a directory, chunk its files, embed the chunks, and build the
BM25 and vector indices that back search.

Indexing is incremental: files whose content hash and embedding models are
unchanged since the last run are skipped. Use --force to discard the
existing index and rebuild from scratch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(ctx, cmd, path, noProgress, force)
		},
	}

	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable progress output")
	cmd.Flags().BoolVar(&force, "force", false, "Clear existing index data and rebuild from scratch")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, noProgress, force bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}
	dataDir := filepath.Join(root, ".codesearch")

	if force {
		if err := clearIndexData(dataDir); err != nil {
			return fmt.Errorf("failed to clear index data: %w", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Cleared existing index data, starting fresh")
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	uiCfg := ui.NewConfig(cmd.OutOrStdout(), ui.WithForcePlain(true), ui.WithProjectDir(root))
	if !noProgress {
		uiCfg.ForcePlain = !ui.IsTTY(cmd.OutOrStdout())
	}
	renderer := ui.NewRenderer(uiCfg)
	_ = renderer.Start(ctx)
	defer func() { _ = renderer.Stop() }()

	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to create metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	bm25BasePath := filepath.Join(dataDir, "bm25")
	bm25, err := store.NewBM25IndexWithBackend(bm25BasePath, store.DefaultBM25Config(), cfg.Search.BM25Backend)
	if err != nil {
		return fmt.Errorf("failed to create BM25 index: %w", err)
	}
	defer func() { _ = bm25.Close() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

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

	_, err = runner.Run(ctx, index.RunnerConfig{
		RootDir: root,
		DataDir: dataDir,
	})
	return err
}

// clearIndexData removes all index-related files from the data directory.
func clearIndexData(dataDir string) error {
	paths := []string{
		filepath.Join(dataDir, "metadata.db"),
		filepath.Join(dataDir, "metadata.db-shm"),
		filepath.Join(dataDir, "metadata.db-wal"),
		filepath.Join(dataDir, "bm25.bleve"),
		filepath.Join(dataDir, "bm25.db"),
		filepath.Join(dataDir, "bm25.db-wal"),
		filepath.Join(dataDir, "bm25.db-shm"),
		filepath.Join(dataDir, "vectors.hnsw"),
		filepath.Join(dataDir, "manifest.json"),
	}

	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
