package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/codesearch-core/codesearch/internal/config"
	"github.com/codesearch-core/codesearch/internal/embed"
	"github.com/codesearch-core/codesearch/internal/errors"
	"github.com/codesearch-core/codesearch/internal/index"
	"github.com/codesearch-core/codesearch/internal/output"
	"github.com/codesearch-core/codesearch/internal/store"
)

func newDoctorCmd() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check index consistency and provider availability",
		Long: `Verify that the metadata, BM25, and vector stores agree on which
chunks exist, and that the configured embedding provider is reachable.

Exits non-zero when a problem is found, so it can be used in scripts:
  3 - embedding provider unavailable
  4 - data inconsistency between stores`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context(), cmd, repair)
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Attempt to repair detected inconsistencies")

	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command, repair bool) error {
	out := output.New(cmd.OutOrStdout())

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	dataDir := filepath.Join(root, ".codesearch")

	metadataPath := filepath.Join(dataDir, "metadata.db")
	if !fileExists(metadataPath) {
		return errors.CollectionNotFoundError(fmt.Sprintf("no index found in %s; run 'codesearch index' first", root), nil)
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	bm25BasePath := filepath.Join(dataDir, "bm25")
	bm25, err := store.NewBM25IndexWithBackend(bm25BasePath, store.DefaultBM25Config(), cfg.Search.BM25Backend)
	if err != nil {
		return fmt.Errorf("failed to open BM25 index: %w", err)
	}
	defer func() { _ = bm25.Close() }()

	embedCtx, embedCancel := context.WithTimeout(ctx, 5*time.Second)
	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	embedder, embedErr := embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model)
	embedCancel()

	out.Status("", "Provider check:")
	if embedErr != nil {
		out.Warningf("  embedder %q unavailable: %v", cfg.Embeddings.Provider, embedErr)
	} else {
		out.Successf("  embedder %q ready (%d dimensions)", cfg.Embeddings.Provider, embedder.Dimensions())
		defer func() { _ = embedder.Close() }()
	}
	out.Newline()

	vectorDims := cfg.Embeddings.Dimensions
	if embedder != nil {
		vectorDims = embedder.Dimensions()
	}
	if vectorDims <= 0 {
		vectorDims = 768
	}
	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(vectorDims))
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	defer func() { _ = vector.Close() }()
	if vectorPath := filepath.Join(dataDir, "vectors.hnsw"); fileExists(vectorPath) {
		_ = vector.Load(vectorPath)
	}

	checker := index.NewConsistencyChecker(metadata, bm25, vector)
	result, err := checker.Check(ctx)
	if err != nil {
		return fmt.Errorf("consistency check failed: %w", err)
	}

	out.Statusf("", "Consistency check: %d chunks verified in %s", result.Checked, result.Duration.Round(time.Millisecond))
	if len(result.Inconsistencies) == 0 {
		out.Success("  no inconsistencies found")
		if embedErr != nil {
			return errors.ProviderUnavailableError(fmt.Sprintf("embedding provider unavailable: %v", embedErr), embedErr)
		}
		return nil
	}

	for _, issue := range result.Inconsistencies {
		out.Warningf("  %s: %s (%s)", issue.Type, issue.ChunkID, issue.Details)
	}

	if repair {
		out.Newline()
		out.Status("", "Repairing...")
		if err := checker.Repair(ctx, result.Inconsistencies); err != nil {
			return fmt.Errorf("repair failed: %w", err)
		}
		out.Success("Repair complete (re-run doctor to verify)")
		return nil
	}

	return errors.PersistenceError(fmt.Sprintf("%d inconsistencies found; re-run with --repair", len(result.Inconsistencies)), nil)
}
