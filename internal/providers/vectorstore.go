package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	coreerrors "github.com/codesearch-core/codesearch/internal/errors"
	"github.com/codesearch-core/codesearch/internal/store"
)

// HybridVectorStore is a VectorStoreProvider composed from the teacher's two
// existing stores: a dense store.VectorStore (HNSW) for the "dense" named
// vector and a store.BM25Index for the "sparse" named vector, plus a
// payload side-table this package owns (the teacher's stores persist only
// vectors/postings, never the chunk payload a VectorPoint carries).
//
// A single collection maps to one pair of (dense store, sparse index) plus
// one payload file; multi-collection deployments construct one
// HybridVectorStore per collection name.
type HybridVectorStore struct {
	collection string
	dense      store.VectorStore
	sparse     store.BM25Index

	mu       sync.RWMutex
	payload  map[string]map[string]any
	metadata *CollectionMetadata

	payloadPath string
}

// NewHybridVectorStore composes a dense+sparse backend pair into one
// VectorStoreProvider. payloadPath is the file the payload side-table is
// persisted to (sibling of the dense/sparse store files, same directory
// convention as the manifest's state directory).
func NewHybridVectorStore(collection string, dense store.VectorStore, sparse store.BM25Index, payloadPath string) *HybridVectorStore {
	return &HybridVectorStore{
		collection:  collection,
		dense:       dense,
		sparse:      sparse,
		payload:     make(map[string]map[string]any),
		payloadPath: payloadPath,
	}
}

func (h *HybridVectorStore) ListCollections(_ context.Context) ([]string, error) {
	return []string{h.collection}, nil
}

// EnsureClient loads the persisted payload side-table (if present) and the
// CollectionMetadata record, comparing it against expected. A
// provider_name mismatch raises ProviderSwitch; a dense_dim mismatch raises
// DimensionMismatch — both fatal until the collection is reconciled.
func (h *HybridVectorStore) EnsureClient(_ context.Context, expected CollectionMetadata) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.loadLocked(); err != nil {
		return coreerrors.PersistenceError("loading vector store payload side-table", err)
	}

	if h.metadata == nil {
		expected.CreatedAt = time.Now()
		h.metadata = &expected
		return h.saveLocked()
	}

	if h.metadata.ProviderName != expected.ProviderName {
		return coreerrors.ProviderSwitchError(
			fmt.Sprintf("collection %q was created with provider %q, current configuration is %q",
				h.collection, h.metadata.ProviderName, expected.ProviderName), nil)
	}
	if h.metadata.DenseDim != expected.DenseDim {
		return coreerrors.DimensionMismatchError(
			fmt.Sprintf("collection %q has dense_dim=%d, current embedder declares dim=%d",
				h.collection, h.metadata.DenseDim, expected.DenseDim), nil)
	}
	return nil
}

func (h *HybridVectorStore) Search(ctx context.Context, vector []float32, backendFilter any, limit int) ([]SearchHit, error) {
	if h.metadata != nil && h.metadata.DenseDim != 0 && len(vector) != h.metadata.DenseDim {
		return nil, coreerrors.DimensionMismatchError(
			fmt.Sprintf("query vector has dim %d, collection expects %d", len(vector), h.metadata.DenseDim), nil)
	}

	overFetch := limit * 3
	if overFetch < limit {
		overFetch = limit
	}
	results, err := h.dense.Search(ctx, vector, overFetch)
	if err != nil {
		return nil, coreerrors.ProviderUnavailableError("dense search failed", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		payload, ok := h.payload[r.ID]
		if !ok {
			payload = map[string]any{}
		}
		if !matchesBackendFilter(backendFilter, payload) {
			continue
		}
		hits = append(hits, SearchHit{ID: r.ID, Score: float64(r.Score), Payload: payload})
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

func (h *HybridVectorStore) SearchSparse(ctx context.Context, vector SparseVector, backendFilter any, limit int) ([]SearchHit, error) {
	_ = vector // the sparse query text is tokenized upstream; BM25Index.Search takes raw text
	return nil, fmt.Errorf("SearchSparse requires raw query text: use SearchSparseText")
}

// SearchSparseText runs the BM25 keyword search with the original query
// text (the teacher's BM25Index re-tokenizes text itself rather than
// accepting a pre-embedded sparse vector; the hybrid pipeline calls this
// instead of SearchSparse when a raw query string is available).
func (h *HybridVectorStore) SearchSparseText(ctx context.Context, queryText string, backendFilter any, limit int) ([]SearchHit, error) {
	overFetch := limit * 3
	if overFetch < limit {
		overFetch = limit
	}
	results, err := h.sparse.Search(ctx, queryText, overFetch)
	if err != nil {
		return nil, coreerrors.ProviderUnavailableError("sparse search failed", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		payload, ok := h.payload[r.DocID]
		if !ok {
			payload = map[string]any{}
		}
		if !matchesBackendFilter(backendFilter, payload) {
			continue
		}
		hits = append(hits, SearchHit{ID: r.DocID, Score: r.Score, Payload: payload})
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

func (h *HybridVectorStore) Upsert(ctx context.Context, points []VectorPoint) error {
	if len(points) == 0 {
		return nil
	}

	denseIDs := make([]string, 0, len(points))
	denseVecs := make([][]float32, 0, len(points))
	var docs []*store.Document

	for _, p := range points {
		if p.Vectors.Dense == nil && p.Vectors.Sparse == nil {
			return coreerrors.New(coreerrors.ErrCodeInvalidInput,
				fmt.Sprintf("point %s carries neither dense nor sparse vector", p.ID), nil)
		}
		if p.Vectors.Dense != nil {
			if h.metadata != nil && h.metadata.DenseDim != 0 && len(p.Vectors.Dense) != h.metadata.DenseDim {
				return coreerrors.DimensionMismatchError(
					fmt.Sprintf("point %s has dense dim %d, collection expects %d", p.ID, len(p.Vectors.Dense), h.metadata.DenseDim), nil)
			}
			denseIDs = append(denseIDs, p.ID)
			denseVecs = append(denseVecs, p.Vectors.Dense)
		}
		if content, ok := p.Payload["content"].(string); ok && content != "" {
			docs = append(docs, &store.Document{ID: p.ID, Content: content})
		}
	}

	if len(denseIDs) > 0 {
		if err := h.dense.Add(ctx, denseIDs, denseVecs); err != nil {
			return coreerrors.ProviderUnavailableError("dense upsert failed", err)
		}
	}
	if len(docs) > 0 {
		if err := h.sparse.Index(ctx, docs); err != nil {
			return coreerrors.ProviderUnavailableError("sparse upsert failed", err)
		}
	}

	h.mu.Lock()
	for _, p := range points {
		h.payload[p.ID] = p.Payload
	}
	err := h.saveLocked()
	h.mu.Unlock()
	if err != nil {
		return coreerrors.PersistenceError("saving vector store payload side-table", err)
	}
	return nil
}

func (h *HybridVectorStore) DeleteByFile(ctx context.Context, path string) error {
	h.mu.RLock()
	var ids []string
	for id, payload := range h.payload {
		if fp, _ := payload["file_path"].(string); fp == path {
			ids = append(ids, id)
		}
	}
	h.mu.RUnlock()
	return h.DeleteByID(ctx, ids)
}

func (h *HybridVectorStore) DeleteByID(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := h.dense.Delete(ctx, ids); err != nil {
		return coreerrors.ProviderUnavailableError("dense delete failed", err)
	}
	if err := h.sparse.Delete(ctx, ids); err != nil {
		return coreerrors.ProviderUnavailableError("sparse delete failed", err)
	}
	h.mu.Lock()
	for _, id := range ids {
		delete(h.payload, id)
	}
	err := h.saveLocked()
	h.mu.Unlock()
	if err != nil {
		return coreerrors.PersistenceError("saving vector store payload side-table", err)
	}
	return nil
}

func (h *HybridVectorStore) DeleteByChunkName(ctx context.Context, names []string) error {
	nameSet := make(map[string]struct{}, len(names))
	for _, n := range names {
		nameSet[n] = struct{}{}
	}

	h.mu.RLock()
	var ids []string
	for id, payload := range h.payload {
		if name, _ := payload["chunk_name"].(string); name != "" {
			if _, ok := nameSet[name]; ok {
				ids = append(ids, id)
			}
		}
	}
	h.mu.RUnlock()
	return h.DeleteByID(ctx, ids)
}

func (h *HybridVectorStore) ProviderName() string {
	if h.metadata != nil {
		return h.metadata.ProviderName
	}
	return "hybrid"
}

func (h *HybridVectorStore) Close() error {
	if err := h.dense.Close(); err != nil {
		return err
	}
	return h.sparse.Close()
}

// payloadFile is the on-disk shape of the payload side-table plus
// CollectionMetadata, saved atomically via temp-then-rename like the
// manifest (internal/manifest).
type payloadFile struct {
	Metadata *CollectionMetadata       `json:"metadata"`
	Payload  map[string]map[string]any `json:"payload"`
}

func (h *HybridVectorStore) loadLocked() error {
	if h.payloadPath == "" {
		return nil
	}
	data, err := os.ReadFile(h.payloadPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var pf payloadFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return err
	}
	h.metadata = pf.Metadata
	if pf.Payload != nil {
		h.payload = pf.Payload
	}
	return nil
}

func (h *HybridVectorStore) saveLocked() error {
	if h.payloadPath == "" {
		return nil
	}
	pf := payloadFile{Metadata: h.metadata, Payload: h.payload}
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(h.payloadPath)
	tmp, err := os.CreateTemp(dir, ".payload-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, h.payloadPath)
}

// matchesBackendFilter applies an opaque backend filter produced by
// internal/filterdsl's in-process translation target. nil means "no
// filter, match everything".
func matchesBackendFilter(backendFilter any, payload map[string]any) bool {
	if backendFilter == nil {
		return true
	}
	eval, ok := backendFilter.(func(map[string]any) bool)
	if !ok {
		return true
	}
	return eval(payload)
}
