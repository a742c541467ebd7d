// Package container implements the dependency-injection container: named
// factories per capability interface, singleton caching, an override hook
// for test doubles, and ordered startup probes / reverse-order shutdown.
//
// The generic Registry is grounded in the pack's kadirpekel-hector
// pkg/registry.Registry[T]/BaseRegistry[T] pattern; the teacher itself has
// no single DI container, only ad hoc factory functions
// (internal/embed.NewEmbedder's ProviderType-switch idiom), which this
// package generalizes into named, overridable registrations.
package container

import (
	"fmt"
	"sync"
)

// Factory builds one instance of T from configuration. It is called at most
// once per name per Container unless PerCall is requested (see Resolve).
type Factory[T any] func(cfg map[string]any) (T, error)

// registry is a name -> factory map with lazily-built, cached singletons.
// It mirrors hector's BaseRegistry[T] shape (Register/Get/List/Remove/Count)
// plus the caching and override behavior the DI container needs on top.
type registry[T any] struct {
	mu        sync.RWMutex
	factories map[string]Factory[T]
	overrides map[string]T
	singletons map[string]T
	built     map[string]bool
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{
		factories:  make(map[string]Factory[T]),
		overrides:  make(map[string]T),
		singletons: make(map[string]T),
		built:      make(map[string]bool),
	}
}

func (r *registry[T]) register(name string, f Factory[T]) error {
	if name == "" {
		return fmt.Errorf("container: name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("container: factory %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

func (r *registry[T]) override(name string, instance T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[name] = instance
}

// resolve returns the named instance, building and caching it as a
// singleton on first use unless perCall is true (in which case the factory
// runs fresh every time and nothing is cached). An override always wins.
func (r *registry[T]) resolve(name string, cfg map[string]any, perCall bool) (T, error) {
	var zero T

	r.mu.RLock()
	if inst, ok := r.overrides[name]; ok {
		r.mu.RUnlock()
		return inst, nil
	}
	if !perCall {
		if inst, ok := r.singletons[name]; ok {
			r.mu.RUnlock()
			return inst, nil
		}
	}
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return zero, fmt.Errorf("container: no factory registered for %q", name)
	}

	inst, err := factory(cfg)
	if err != nil {
		return zero, fmt.Errorf("container: building %q: %w", name, err)
	}

	if !perCall {
		r.mu.Lock()
		// Another goroutine may have built the singleton first; keep the
		// first-built instance so every caller shares one instance, the
		// same discipline the manifest's single-writer rule and the
		// embedder's shared circuit-breaker state depend on.
		if existing, already := r.singletons[name]; already {
			r.mu.Unlock()
			return existing, nil
		}
		r.singletons[name] = inst
		r.built[name] = true
		r.mu.Unlock()
	}

	return inst, nil
}

func (r *registry[T]) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
