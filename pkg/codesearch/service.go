// Package codesearch is the public library entrypoint: it wires the
// provider/DI stack (internal/container, internal/providers,
// internal/filterdsl) behind the single FindCode operation external
// collaborators (an RPC façade, a CLI command, a test) call into. The
// operator CLI in cmd/codesearch talks to internal/search.Engine directly
// for backward-compatible RRF-based search; this package implements the
// retrieval pipeline's literal min-max weighted-sum law instead, so the
// two call paths intentionally diverge in fusion semantics (see
// DESIGN.md).
package codesearch

import (
	"context"
	"path/filepath"

	"github.com/codesearch-core/codesearch/internal/config"
	"github.com/codesearch-core/codesearch/internal/container"
	"github.com/codesearch-core/codesearch/internal/embed"
	coreerrors "github.com/codesearch-core/codesearch/internal/errors"
	"github.com/codesearch-core/codesearch/internal/manifest"
	"github.com/codesearch-core/codesearch/internal/providers"
	"github.com/codesearch-core/codesearch/internal/search"
	"github.com/codesearch-core/codesearch/internal/store"
)

// Service holds the resolved provider instances FindCode operates over,
// plus the manifest used for the pipeline's filesystem-liveness check. One
// Service serves one project collection.
type Service struct {
	container *container.Container

	vectorStore providers.VectorStoreProvider
	embedding   providers.EmbeddingProvider
	sparse      providers.SparseEmbeddingProvider
	reranker    providers.RerankingProvider

	manifest manifest.Manifest

	fusion     *search.WeightedSumFusion
	projectRoot string

	rerankTopK      int
	overFetchFactor int
}

// Options configures Open beyond what cfg already carries; zero value
// picks every spec default (alpha 0.5, over-fetch factor 3, rerank top 50).
type Options struct {
	Alpha           float64
	OverFetchFactor int
	RerankTopK      int
}

// Open builds a Service for the project rooted at projectRoot, registering
// factories for every capability the DI container exposes and running
// their startup probes. The dense embedder, the BM25+HNSW hybrid vector
// store, and (when configured) a hashed-bag-of-words sparse provider are
// always registered; a reranker is registered only when one is configured
// and reachable is left to the caller to decide (no reranker is wired by
// default, since the teacher's stack ships no production cross-encoder).
func Open(ctx context.Context, cfg *config.Config, projectRoot string, opts Options) (*Service, error) {
	if opts.OverFetchFactor <= 0 {
		opts.OverFetchFactor = 3
	}
	if opts.RerankTopK <= 0 {
		opts.RerankTopK = 50
	}

	dataDir := filepath.Join(projectRoot, ".codesearch")
	c := container.New()

	if err := c.RegisterEmbedding("dense", func(_ map[string]any) (providers.EmbeddingProvider, error) {
		provider := embed.ParseProvider(cfg.Embeddings.Provider)
		inner, err := embed.NewEmbedder(ctx, provider, cfg.Embeddings.Model)
		if err != nil {
			return nil, err
		}
		return providers.NewEmbeddingProvider(cfg.Embeddings.Provider, inner), nil
	}); err != nil {
		return nil, err
	}

	if err := c.RegisterVectorStore("hybrid", func(_ map[string]any) (providers.VectorStoreProvider, error) {
		dims := cfg.Embeddings.Dimensions
		if dims <= 0 {
			dims = 768
		}
		dense, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dims))
		if err != nil {
			return nil, err
		}
		vectorPath := filepath.Join(dataDir, "vectors.hnsw")
		_ = dense.Load(vectorPath) // absent on a fresh project: empty store is valid

		sparse, err := store.NewBM25IndexWithBackend(filepath.Join(dataDir, "bm25"), store.DefaultBM25Config(), cfg.Search.BM25Backend)
		if err != nil {
			return nil, err
		}

		payloadPath := filepath.Join(dataDir, "vector_payload.json")
		return providers.NewHybridVectorStore(filepath.Base(projectRoot), dense, sparse, payloadPath), nil
	}); err != nil {
		return nil, err
	}

	if err := c.RegisterSparse("hashed-bow", func(_ map[string]any) (providers.SparseEmbeddingProvider, error) {
		dims := cfg.Embeddings.Dimensions
		if dims <= 0 {
			dims = 1 << 18
		}
		return providers.NewHashedBagOfWordsProvider(dims), nil
	}); err != nil {
		return nil, err
	}

	embedding, err := c.ResolveEmbedding("dense", nil)
	if err != nil {
		return nil, coreerrors.ProviderUnavailableError("resolving dense embedding provider", err)
	}

	vectorStore, err := c.ResolveVectorStore("hybrid", nil)
	if err != nil {
		return nil, coreerrors.PersistenceError("resolving hybrid vector store", err)
	}

	denseDim := cfg.Embeddings.Dimensions
	if denseDim <= 0 {
		denseDim = embedding.Capabilities().Dim
	}
	if err := vectorStore.EnsureClient(ctx, providers.CollectionMetadata{
		ProviderName: cfg.Embeddings.Provider,
		DenseDim:     denseDim,
	}); err != nil {
		return nil, err
	}

	var sparseProvider providers.SparseEmbeddingProvider
	if cfg.Search.BM25Weight > 0 {
		sparseProvider, err = c.ResolveSparse("hashed-bow", nil)
		if err != nil {
			return nil, coreerrors.ProviderUnavailableError("resolving sparse embedding provider", err)
		}
	}

	c.AddStartupProbe("dense-embedding", func(probeCtx context.Context) error {
		if _, err := embedding.EmbedQuery(probeCtx, "startup probe", providers.EmbedOptions{InputType: "query"}); err != nil {
			return err
		}
		return nil
	})
	if err := c.Startup(ctx); err != nil {
		return nil, coreerrors.ProviderUnavailableError("provider startup probe failed", err)
	}

	m := manifest.NewJSONManifest(filepath.Join(dataDir, "manifest.json"), projectRoot)
	if err := m.Load(ctx); err != nil {
		return nil, coreerrors.PersistenceError("loading manifest", err)
	}

	alpha := opts.Alpha
	if alpha == 0 {
		alpha = search.DefaultFusionAlpha
	}

	return &Service{
		container:       c,
		vectorStore:     vectorStore,
		embedding:       embedding,
		sparse:          sparseProvider,
		manifest:        m,
		fusion:          search.NewWeightedSumFusion(alpha),
		projectRoot:     projectRoot,
		rerankTopK:      opts.RerankTopK,
		overFetchFactor: opts.OverFetchFactor,
	}, nil
}

// WithReranker attaches a reranking provider built from the given
// search.Reranker, registering it through the container so Close/Shutdown
// still accounts for it.
func (s *Service) WithReranker(providerName, modelName string, inner search.Reranker) error {
	if err := s.container.RegisterReranking(providerName, func(_ map[string]any) (providers.RerankingProvider, error) {
		return providers.NewRerankingProvider(providerName, modelName, inner), nil
	}); err != nil {
		return err
	}
	reranker, err := s.container.ResolveReranking(providerName, nil)
	if err != nil {
		return err
	}
	s.reranker = reranker
	return nil
}

// Close shuts down every provider the container built, in reverse build
// order.
func (s *Service) Close() error {
	return s.container.Shutdown()
}
