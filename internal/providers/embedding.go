package providers

import (
	"context"
	"fmt"
	"strings"

	coreerrors "github.com/codesearch-core/codesearch/internal/errors"
	"github.com/codesearch-core/codesearch/internal/embed"
)

// embedderProvider adapts the teacher's embed.Embedder interface to
// EmbeddingProvider, composing a circuit breaker/retry Guard over every
// call rather than reimplementing resilience per backend.
type embedderProvider struct {
	name  string
	inner embed.Embedder
	guard *Guard
}

// NewEmbeddingProvider wraps an embed.Embedder as an EmbeddingProvider.
// providerName identifies the concrete backend (e.g. "http", "static") for
// CollectionMetadata and circuit-breaker naming.
func NewEmbeddingProvider(providerName string, inner embed.Embedder) EmbeddingProvider {
	return &embedderProvider{
		name:  providerName,
		inner: inner,
		guard: NewGuard("embed:" + providerName),
	}
}

func (p *embedderProvider) EmbedDocuments(ctx context.Context, texts []string, _ EmbedOptions) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out [][]float32
	err := p.guard.Do(ctx, func(ctx context.Context) error {
		vecs, err := p.inner.EmbedBatch(ctx, texts)
		if err != nil {
			return classifyEmbedError(err)
		}
		out = vecs
		return nil
	})
	return out, err
}

func (p *embedderProvider) EmbedQuery(ctx context.Context, text string, _ EmbedOptions) ([]float32, error) {
	var out []float32
	err := p.guard.Do(ctx, func(ctx context.Context) error {
		vec, err := p.inner.Embed(ctx, text)
		if err != nil {
			return classifyEmbedError(err)
		}
		out = vec
		return nil
	})
	return out, err
}

func (p *embedderProvider) Capabilities() Capabilities {
	return Capabilities{
		Model:          p.inner.ModelName(),
		Dim:            p.inner.Dimensions(),
		MaxInput:       0, // teacher's Embedder does not expose an input-size limit
		SupportsSparse: false,
	}
}

func (p *embedderProvider) ProviderName() string { return p.name }
func (p *embedderProvider) ModelName() string    { return p.inner.ModelName() }
func (p *embedderProvider) Close() error          { return p.inner.Close() }

// classifyEmbedError maps a raw embedder error into the closed error-kind
// set. The teacher's embed package returns plain errors (network call
// failures, context deadline, auth); without structured kinds attached at
// the source, a transport-looking message is treated as retriable and
// everything else as fatal for the provider this run.
func classifyEmbedError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if looksTransient(msg) {
		return coreerrors.ProviderUnavailableError(fmt.Sprintf("embedding provider call failed: %s", msg), err)
	}
	return coreerrors.ProviderFatalError(fmt.Sprintf("embedding provider call failed: %s", msg), err)
}

func looksTransient(msg string) bool {
	lower := strings.ToLower(msg)
	for _, needle := range []string{"timeout", "deadline", "connection refused", "eof", "rate limit", "too many requests", "503", "502", "429"} {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}
