package container

import (
	"context"
	"fmt"
	"sync"

	"github.com/codesearch-core/codesearch/internal/providers"
)

// Container registers named factories for each capability interface and
// resolves+caches instances declared as dependencies of higher-level
// operations (the indexer, the retrieval pipeline). Settings are read once
// when a provider is first built (via the cfg map passed to Resolve*) and are not
// mutated during process lifetime, per SPEC_FULL.md C6.
type Container struct {
	embedding   *registry[providers.EmbeddingProvider]
	sparse      *registry[providers.SparseEmbeddingProvider]
	reranking   *registry[providers.RerankingProvider]
	vectorStore *registry[providers.VectorStoreProvider]

	mu           sync.Mutex
	buildOrder   []string // "<capability>/<name>", in the order each singleton was actually built
	closers      map[string]func() error
	probes       []probe
}

type probe struct {
	label string
	fn    func(ctx context.Context) error
}

// New creates an empty container. Register factories before resolving them.
func New() *Container {
	return &Container{
		embedding:   newRegistry[providers.EmbeddingProvider](),
		sparse:      newRegistry[providers.SparseEmbeddingProvider](),
		reranking:   newRegistry[providers.RerankingProvider](),
		vectorStore: newRegistry[providers.VectorStoreProvider](),
		closers:     make(map[string]func() error),
	}
}

// RegisterEmbedding registers a named embedding-provider factory.
func (c *Container) RegisterEmbedding(name string, f Factory[providers.EmbeddingProvider]) error {
	return c.embedding.register(name, f)
}

// RegisterSparse registers a named sparse-embedding-provider factory.
func (c *Container) RegisterSparse(name string, f Factory[providers.SparseEmbeddingProvider]) error {
	return c.sparse.register(name, f)
}

// RegisterReranking registers a named reranking-provider factory.
func (c *Container) RegisterReranking(name string, f Factory[providers.RerankingProvider]) error {
	return c.reranking.register(name, f)
}

// RegisterVectorStore registers a named vector-store-provider factory.
func (c *Container) RegisterVectorStore(name string, f Factory[providers.VectorStoreProvider]) error {
	return c.vectorStore.register(name, f)
}

// OverrideEmbedding substitutes a concrete instance for name, bypassing its
// factory entirely. Used by tests to inject doubles.
func (c *Container) OverrideEmbedding(name string, inst providers.EmbeddingProvider) {
	c.embedding.override(name, inst)
}

// OverrideSparse substitutes a concrete sparse-embedding instance.
func (c *Container) OverrideSparse(name string, inst providers.SparseEmbeddingProvider) {
	c.sparse.override(name, inst)
}

// OverrideReranking substitutes a concrete reranking instance.
func (c *Container) OverrideReranking(name string, inst providers.RerankingProvider) {
	c.reranking.override(name, inst)
}

// OverrideVectorStore substitutes a concrete vector-store instance.
func (c *Container) OverrideVectorStore(name string, inst providers.VectorStoreProvider) {
	c.vectorStore.override(name, inst)
}

// ResolveEmbedding resolves (building and caching on first use) the named
// embedding provider.
func (c *Container) ResolveEmbedding(name string, cfg map[string]any) (providers.EmbeddingProvider, error) {
	inst, err := c.embedding.resolve(name, cfg, false)
	if err != nil {
		return nil, err
	}
	c.track("embedding/"+name, inst.Close)
	return inst, nil
}

// ResolveSparse resolves the named sparse-embedding provider.
func (c *Container) ResolveSparse(name string, cfg map[string]any) (providers.SparseEmbeddingProvider, error) {
	inst, err := c.sparse.resolve(name, cfg, false)
	if err != nil {
		return nil, err
	}
	c.track("sparse/"+name, inst.Close)
	return inst, nil
}

// ResolveReranking resolves the named reranking provider.
func (c *Container) ResolveReranking(name string, cfg map[string]any) (providers.RerankingProvider, error) {
	inst, err := c.reranking.resolve(name, cfg, false)
	if err != nil {
		return nil, err
	}
	c.track("reranking/"+name, inst.Close)
	return inst, nil
}

// ResolveVectorStore resolves the named vector-store provider.
func (c *Container) ResolveVectorStore(name string, cfg map[string]any) (providers.VectorStoreProvider, error) {
	inst, err := c.vectorStore.resolve(name, cfg, false)
	if err != nil {
		return nil, err
	}
	c.track("vector_store/"+name, inst.Close)
	return inst, nil
}

// track records a singleton's first-build position and its Close method,
// so Shutdown can call every provider's close hook in reverse registration
// (here: reverse build) order. Re-resolving an already-built singleton is a
// no-op since it did not build a new instance.
func (c *Container) track(key string, closeFn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, already := c.closers[key]; already {
		return
	}
	c.closers[key] = closeFn
	c.buildOrder = append(c.buildOrder, key)
}

// AddStartupProbe registers a capability probe run by Startup, in
// registration order. A probe failure aborts startup: "the container never
// hides initialization failures; startup either succeeds or aborts."
func (c *Container) AddStartupProbe(label string, fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes = append(c.probes, probe{label: label, fn: fn})
}

// Startup runs every registered capability probe in registration order,
// returning the first failure immediately.
func (c *Container) Startup(ctx context.Context) error {
	c.mu.Lock()
	probesCopy := append([]probe(nil), c.probes...)
	c.mu.Unlock()

	for _, p := range probesCopy {
		if err := p.fn(ctx); err != nil {
			return fmt.Errorf("container: startup probe %q failed: %w", p.label, err)
		}
	}
	return nil
}

// Shutdown calls every built singleton's Close hook in reverse build order.
// Errors are collected and joined rather than short-circuiting, so one
// slow-to-close provider does not prevent the others from releasing their
// resources.
func (c *Container) Shutdown() error {
	c.mu.Lock()
	order := append([]string(nil), c.buildOrder...)
	closers := make(map[string]func() error, len(c.closers))
	for k, v := range c.closers {
		closers[k] = v
	}
	c.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		key := order[i]
		if closeFn, ok := closers[key]; ok {
			if err := closeFn(); err != nil {
				errs = append(errs, fmt.Errorf("container: closing %q: %w", key, err))
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	joined := errs[0]
	for _, e := range errs[1:] {
		joined = fmt.Errorf("%w; %v", joined, e)
	}
	return joined
}
