package providers

import (
	"context"
	"fmt"

	coreerrors "github.com/codesearch-core/codesearch/internal/errors"
	"github.com/codesearch-core/codesearch/internal/search"
)

// searchRerankerProvider adapts the teacher's search.Reranker interface to
// RerankingProvider, guarded the same way as every other provider call.
type searchRerankerProvider struct {
	name  string
	model string
	inner search.Reranker
	guard *Guard
}

// NewRerankingProvider wraps a search.Reranker. A nil inner is invalid;
// callers that want "no reranker configured" simply omit registering one
// with the DI container rather than passing a nil here.
func NewRerankingProvider(providerName, modelName string, inner search.Reranker) RerankingProvider {
	return &searchRerankerProvider{
		name:  providerName,
		model: modelName,
		inner: inner,
		guard: NewGuard("rerank:" + providerName),
	}
}

func (p *searchRerankerProvider) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankedDoc, error) {
	var out []RerankedDoc
	err := p.guard.Do(ctx, func(ctx context.Context) error {
		results, err := p.inner.Rerank(ctx, query, documents, topN)
		if err != nil {
			return coreerrors.ProviderUnavailableError(fmt.Sprintf("rerank call failed: %s", err.Error()), err)
		}
		out = make([]RerankedDoc, len(results))
		for i, r := range results {
			out[i] = RerankedDoc{Index: r.Index, Score: r.Score}
		}
		return nil
	})
	return out, err
}

func (p *searchRerankerProvider) ProviderName() string { return p.name }
func (p *searchRerankerProvider) ModelName() string    { return p.model }
func (p *searchRerankerProvider) Close() error          { return p.inner.Close() }
