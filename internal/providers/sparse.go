package providers

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/codesearch-core/codesearch/internal/store"
)

// HashedBagOfWordsProvider is a SparseEmbeddingProvider grounded in the
// teacher's code-aware BM25 tokenizer (internal/store.TokenizeCode):
// documents are tokenized the same way the BM25 index tokenizes them, terms
// are hashed into a fixed index space, and values are log-scaled term
// frequencies. This gives the hybrid pipeline a sparse vector that does not
// require a learned-sparse model to be configured, while still letting a
// real learned-sparse SparseEmbeddingProvider be swapped in behind the same
// interface.
type HashedBagOfWordsProvider struct {
	dim int
}

// NewHashedBagOfWordsProvider builds a sparse provider whose indices are
// reduced modulo dim, matching the fixed-size sparse slot budget most vector
// stores expect even for "sparse" representations transported as
// dense-length arrays.
func NewHashedBagOfWordsProvider(dim int) *HashedBagOfWordsProvider {
	if dim <= 0 {
		dim = 1 << 18
	}
	return &HashedBagOfWordsProvider{dim: dim}
}

func (p *HashedBagOfWordsProvider) EmbedDocuments(_ context.Context, texts []string, _ EmbedOptions) ([]SparseVector, error) {
	out := make([]SparseVector, len(texts))
	for i, t := range texts {
		out[i] = p.embed(t)
	}
	return out, nil
}

func (p *HashedBagOfWordsProvider) EmbedQuery(_ context.Context, text string, _ EmbedOptions) (SparseVector, error) {
	return p.embed(text), nil
}

func (p *HashedBagOfWordsProvider) embed(text string) SparseVector {
	tokens := store.TokenizeCode(text)
	counts := make(map[uint32]float64, len(tokens))
	for _, tok := range tokens {
		idx := p.termIndex(tok)
		counts[idx]++
	}

	indices := make([]uint32, 0, len(counts))
	values := make([]float32, 0, len(counts))
	for idx, count := range counts {
		indices = append(indices, idx)
		// log-scaled term frequency, the standard BM25 damping shape
		// without corpus-wide IDF (no corpus context is available at
		// single-document embed time).
		values = append(values, float32(1+math.Log(count)))
	}
	return SparseVector{Indices: indices, Values: values}
}

func (p *HashedBagOfWordsProvider) termIndex(term string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return h.Sum32() % uint32(p.dim)
}

func (p *HashedBagOfWordsProvider) Capabilities() Capabilities {
	return Capabilities{Model: "hashed-bow", Dim: p.dim, MaxInput: 0, SupportsSparse: true}
}

func (p *HashedBagOfWordsProvider) ProviderName() string { return "hashed-bow" }
func (p *HashedBagOfWordsProvider) ModelName() string    { return "hashed-bow-v1" }
func (p *HashedBagOfWordsProvider) Close() error          { return nil }
