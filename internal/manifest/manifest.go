// Package manifest persists the {file -> content hash, chunk ids,
// embedding models used} map the indexer consults to decide what needs
// reprocessing. It generalizes the teacher's SQLite-only MetadataStore
// (internal/store.MetadataStore, in particular its GetChangedFiles and
// SaveIndexCheckpoint methods) into the spec's explicit reason-coded
// NeedsReindex contract. The flat-JSON backend is the only implementation.
package manifest

import (
	"context"
	"time"
)

// SchemaVersion is the current on-disk manifest schema version.
const SchemaVersion = "1.1"

// Reason is the closed set of explanations NeedsReindex can return.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonNewFile         Reason = "new_file"
	ReasonContentChanged  Reason = "content_changed"
	ReasonDenseChanged    Reason = "dense_model_changed"
	ReasonSparseChanged   Reason = "sparse_model_changed"
)

// FileManifestEntry is one file's persisted indexing state.
type FileManifestEntry struct {
	Path      string    `json:"path"`
	ContentHash string  `json:"content_hash"`
	ChunkIDs  []string  `json:"chunk_ids"`
	IndexedAt time.Time `json:"indexed_at"`

	// Optional; a missing value is treated as "unknown" everywhere it is
	// read.
	DenseProvider        string `json:"dense_provider,omitempty"`
	DenseModel           string `json:"dense_model,omitempty"`
	SparseProvider       string `json:"sparse_provider,omitempty"`
	SparseModel          string `json:"sparse_model,omitempty"`
	HasDenseEmbeddings   *bool  `json:"has_dense_embeddings,omitempty"`
	HasSparseEmbeddings  *bool  `json:"has_sparse_embeddings,omitempty"`
}

// CurrentModels is the configuration snapshot NeedsReindex compares a
// manifest entry's recorded models against.
type CurrentModels struct {
	DenseModel  string
	SparseModel string
	// SparseConfigured is false when no sparse provider is configured at
	// all; in that case a missing sparse model never triggers reindex.
	SparseConfigured bool
}

// EmbeddingKind selects which embedding family FilesNeedingEmbedding scans
// for ("dense" or "sparse").
type EmbeddingKind string

const (
	EmbeddingDense  EmbeddingKind = "dense"
	EmbeddingSparse EmbeddingKind = "sparse"
)

// Manifest persists FileManifestEntry records keyed by project-relative
// path. Implementations must make Save atomic (temp file + fsync + rename)
// and safe for one writer with concurrent readers.
type Manifest interface {
	Load(ctx context.Context) error
	Save(ctx context.Context) error

	UpsertFile(ctx context.Context, entry FileManifestEntry) error
	RemoveFile(ctx context.Context, path string) error

	// NeedsReindex reports whether path must be (re)processed and why.
	// current may be the zero FileManifestEntry when the file has never
	// been indexed, in which case ReasonNewFile is returned.
	NeedsReindex(ctx context.Context, path, contentHash string, models CurrentModels) (bool, Reason, error)

	// AllChunkIDs returns the union of chunk ids across every file entry,
	// used by the indexer's vector-store reconciliation sampler.
	AllChunkIDs(ctx context.Context) (map[string]struct{}, error)

	// FilesNeedingEmbedding returns paths whose manifest entry reports the
	// given embedding kind missing (has_*_embeddings=false or unknown).
	FilesNeedingEmbedding(ctx context.Context, kind EmbeddingKind) ([]string, error)

	// Get returns a single file's entry and whether it exists.
	Get(ctx context.Context, path string) (FileManifestEntry, bool, error)

	// ProjectRoot returns the root path this manifest was created for.
	ProjectRoot() string

	// ModifiedAt returns the manifest's last-saved timestamp.
	ModifiedAt() time.Time
}

// needsReindex centralizes the reason-coded decision so every backend
// applies it identically.
func needsReindex(entry FileManifestEntry, exists bool, contentHash string, models CurrentModels) (bool, Reason) {
	if !exists {
		return true, ReasonNewFile
	}
	if entry.ContentHash != contentHash {
		return true, ReasonContentChanged
	}
	if entry.DenseModel != "" && models.DenseModel != "" && entry.DenseModel != models.DenseModel {
		return true, ReasonDenseChanged
	}
	if models.SparseConfigured && entry.SparseModel != "" && entry.SparseModel != models.SparseModel {
		return true, ReasonSparseChanged
	}
	return false, ReasonNone
}

// needsEmbedding reports whether entry is missing the named embedding kind.
// A nil has_*_embeddings pointer is "unknown", treated as missing so the
// indexer will attempt to fill it in rather than silently skip the file.
func needsEmbedding(entry FileManifestEntry, kind EmbeddingKind) bool {
	var has *bool
	switch kind {
	case EmbeddingDense:
		has = entry.HasDenseEmbeddings
	case EmbeddingSparse:
		has = entry.HasSparseEmbeddings
	}
	return has == nil || !*has
}
