// Package providers defines the capability interfaces the retrieval core
// uses to talk to embedding, reranking, and vector-store backends. Each
// interface is implemented independently per backend (no shared base class);
// cross-cutting behavior like circuit breaking and retry is composed over a
// provider value rather than inherited.
package providers

import (
	"context"
	"time"
)

// Capabilities describes what a provider supports, reported once at
// registration time and re-checked by the indexer before every upsert.
type Capabilities struct {
	Model          string
	Dim            int
	MaxInput       int
	SupportsSparse bool
}

// EmbedOptions carries per-call parameters that differentiate query
// embedding from document embedding, for providers whose models behave
// differently for the two (e.g. an asymmetric dual-encoder).
type EmbedOptions struct {
	// InputType is "query" or "document". Providers that do not
	// differentiate may ignore it.
	InputType string
}

// EmbeddingProvider generates dense vector embeddings for text.
type EmbeddingProvider interface {
	// EmbedDocuments embeds a batch of chunk texts for storage.
	EmbedDocuments(ctx context.Context, texts []string, opts EmbedOptions) ([][]float32, error)

	// EmbedQuery embeds a single query string for search.
	EmbedQuery(ctx context.Context, text string, opts EmbedOptions) ([]float32, error)

	// Capabilities reports the provider's declared model, dimension, and
	// input limit.
	Capabilities() Capabilities

	// ProviderName identifies the backend implementation (e.g. "http", "static").
	ProviderName() string

	// ModelName identifies the specific model in use.
	ModelName() string

	// Close releases provider resources.
	Close() error
}

// SparseVector is an index-value pair list, typically from a BM25-like or
// learned-sparse model. Indices need not be sorted; callers that require an
// ordering sort defensively.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// SparseEmbeddingProvider generates sparse vector embeddings for text.
type SparseEmbeddingProvider interface {
	EmbedDocuments(ctx context.Context, texts []string, opts EmbedOptions) ([]SparseVector, error)
	EmbedQuery(ctx context.Context, text string, opts EmbedOptions) (SparseVector, error)
	Capabilities() Capabilities
	ProviderName() string
	ModelName() string
	Close() error
}

// RerankedDoc is one scored document returned by a reranker, referencing
// the original index into the documents slice passed to Rerank.
type RerankedDoc struct {
	Index int
	Score float64
}

// RerankingProvider re-scores a shortlist of documents against a query.
// Optional: the retrieval pipeline degrades gracefully when none is
// configured.
type RerankingProvider interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankedDoc, error)
	ProviderName() string
	ModelName() string
	Close() error
}

// Vectors carries the named vectors attached to a single point: "dense" and
// optionally "sparse". At least one must be present.
type Vectors struct {
	Dense  []float32
	Sparse *SparseVector
}

// VectorPoint is one unit of storage in the vector store: an id, its
// vectors, and an opaque payload carried alongside for filtering and
// provenance.
type VectorPoint struct {
	ID      string
	Vectors Vectors
	Payload map[string]any
}

// QueryVectors carries the embedded forms of a query, dense and/or sparse,
// for a single hybrid search call.
type QueryVectors struct {
	Dense  []float32
	Sparse *SparseVector
}

// SearchHit is one result returned from a single-modality vector search,
// before fusion.
type SearchHit struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// CollectionMetadata is the immutable record written once per collection and
// compared against current configuration on every reopen.
type CollectionMetadata struct {
	ProviderName   string
	SchemaVersion  string
	CreatedAt      time.Time
	DenseDim       int
	SparsePresent  bool
	ProjectName    string
}

// VectorStoreProvider stores and retrieves VectorPoints for one project
// collection, keyed by name.
type VectorStoreProvider interface {
	// ListCollections reports the collections known to this store.
	ListCollections(ctx context.Context) ([]string, error)

	// EnsureClient establishes (or verifies) the backend connection and
	// collection, reading CollectionMetadata and comparing it to the
	// caller's expectations.
	EnsureClient(ctx context.Context, expected CollectionMetadata) error

	// Search performs a single-modality nearest-neighbor search restricted
	// by an already-translated backend filter (opaque to this interface;
	// see internal/filterdsl for the vendor-neutral predicate that produces
	// it).
	Search(ctx context.Context, vector []float32, backendFilter any, limit int) ([]SearchHit, error)

	// SearchSparse performs a single-modality sparse search.
	SearchSparse(ctx context.Context, vector SparseVector, backendFilter any, limit int) ([]SearchHit, error)

	Upsert(ctx context.Context, points []VectorPoint) error
	DeleteByFile(ctx context.Context, path string) error
	DeleteByID(ctx context.Context, ids []string) error
	DeleteByChunkName(ctx context.Context, names []string) error

	ProviderName() string
	Close() error
}
