package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderHTTP uses a network embedding server speaking the Ollama
	// wire format (default: any self-hosted embedding endpoint).
	ProviderHTTP ProviderType = "http"

	// ProviderStatic uses hash-based embeddings (fallback when no
	// network embedder is reachable).
	ProviderStatic ProviderType = "static"
)

// NewEmbedder creates an embedder based on provider type with automatic
// fallback. The CODESEARCH_EMBEDDER environment variable can override the
// provider:
//   - "http": use the generic HTTP embedding provider
//   - "static": use StaticEmbedder768 (no network dependency)
//
// Query embedding caching is enabled by default (saves 50-200ms per
// repeated query). Set CODESEARCH_EMBED_CACHE=false to disable caching.
func NewEmbedder(ctx context.Context, provider ProviderType, model string) (Embedder, error) {
	var embedder Embedder
	var err error

	envProvider := os.Getenv("CODESEARCH_EMBEDDER")
	if envProvider != "" {
		switch strings.ToLower(envProvider) {
		case "http":
			embedder, err = newHTTPWithFallback(ctx, model)
		case "static":
			embedder, err = NewStaticEmbedder768(), nil
		}
	}

	if embedder == nil && err == nil {
		switch provider {
		case ProviderHTTP:
			embedder, err = newHTTPWithFallback(ctx, model)

		case ProviderStatic:
			embedder, err = NewStaticEmbedder768(), nil

		default:
			embedder, err = newDefaultWithFallback(ctx, model)
		}
	}

	if err != nil {
		return nil, err
	}

	if !isCacheDisabled() {
		embedder = NewCachedEmbedderWithDefaults(embedder)
	}

	return embedder, nil
}

// isCacheDisabled checks if embedding cache is disabled via environment.
func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("CODESEARCH_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// newDefaultWithFallback selects the default embedder: it tries the network
// HTTP provider first and falls back to the static embedder if no server
// is reachable, since a search index with BM25-only recall is still usable.
func newDefaultWithFallback(ctx context.Context, model string) (Embedder, error) {
	embedder, err := newHTTPWithFallback(ctx, model)
	if err == nil {
		return embedder, nil
	}
	slog.Warn("http_embedder_unavailable_falling_back_to_static", slog.String("error", err.Error()))
	return NewStaticEmbedder768(), nil
}

// newHTTPWithFallback builds the generic HTTP embedding provider, applying
// config-file settings (via SetThermalConfig/SetHTTPConfig) and then
// environment overrides, in that order of increasing priority.
func newHTTPWithFallback(ctx context.Context, model string) (Embedder, error) {
	cfg := DefaultHTTPProviderConfig()
	if model != "" {
		cfg.Model = model
	}

	if globalHTTPConfig.Host != "" {
		cfg.Host = globalHTTPConfig.Host
	}
	if globalHTTPConfig.Model != "" {
		cfg.Model = globalHTTPConfig.Model
	}

	if host := os.Getenv("CODESEARCH_EMBED_HOST"); host != "" {
		cfg.Host = host
	}
	if modelOverride := os.Getenv("CODESEARCH_EMBED_MODEL"); modelOverride != "" {
		cfg.Model = modelOverride
	}
	if timeoutStr := os.Getenv("CODESEARCH_EMBED_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.Timeout = timeout
		}
	}

	// Thermal management: pacing and timeout growth for sustained indexing
	// runs against a locally-hosted, thermally-throttled embedding server.
	if globalThermalConfig.InterBatchDelay > 0 {
		delay := globalThermalConfig.InterBatchDelay
		if delay > MaxInterBatchDelay {
			delay = MaxInterBatchDelay
		}
		cfg.InterBatchDelay = delay
	}
	if globalThermalConfig.TimeoutProgression >= 1.0 {
		progression := globalThermalConfig.TimeoutProgression
		if progression > MaxTimeoutProgression {
			progression = MaxTimeoutProgression
		}
		cfg.TimeoutProgression = progression
	}
	if globalThermalConfig.RetryTimeoutMultiplier >= 1.0 {
		mult := globalThermalConfig.RetryTimeoutMultiplier
		if mult > MaxRetryTimeoutMultiplier {
			mult = MaxRetryTimeoutMultiplier
		}
		cfg.RetryTimeoutMultiplier = mult
	}

	if delayStr := os.Getenv("CODESEARCH_INTER_BATCH_DELAY"); delayStr != "" {
		if delay, err := time.ParseDuration(delayStr); err == nil && delay >= 0 {
			if delay > MaxInterBatchDelay {
				delay = MaxInterBatchDelay
			}
			cfg.InterBatchDelay = delay
		}
	}
	if progressionStr := os.Getenv("CODESEARCH_TIMEOUT_PROGRESSION"); progressionStr != "" {
		if progression, err := parseFloat64(progressionStr); err == nil && progression >= 1.0 {
			if progression > MaxTimeoutProgression {
				progression = MaxTimeoutProgression
			}
			cfg.TimeoutProgression = progression
		}
	}
	if retryMultStr := os.Getenv("CODESEARCH_RETRY_TIMEOUT_MULTIPLIER"); retryMultStr != "" {
		if mult, err := parseFloat64(retryMultStr); err == nil && mult >= 1.0 {
			if mult > MaxRetryTimeoutMultiplier {
				mult = MaxRetryTimeoutMultiplier
			}
			cfg.RetryTimeoutMultiplier = mult
		}
	}

	embedder, err := NewHTTPProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding server unavailable: %w\n\nTo fix:\n  1. Start an embedding server at %s\n  2. Or use the static embedder: CODESEARCH_EMBEDDER=static", err, cfg.Host)
	}
	return embedder, nil
}

// ThermalConfig holds thermal management settings loaded from config.yaml.
type ThermalConfig struct {
	InterBatchDelay        time.Duration // pause between batches for GPU cooling
	TimeoutProgression     float64       // timeout multiplier for later batches (1.0-3.0)
	RetryTimeoutMultiplier float64       // timeout multiplier per retry (1.0-2.0)
}

// globalThermalConfig holds config file settings set via SetThermalConfig.
// Env vars take precedence over these values.
var globalThermalConfig ThermalConfig

// SetThermalConfig sets thermal management config from the user's config.yaml.
// Call before NewEmbedder() to ensure config file settings are used.
// Environment variables still take precedence over config file settings.
func SetThermalConfig(cfg ThermalConfig) {
	globalThermalConfig = cfg
	if cfg.InterBatchDelay > 0 || cfg.TimeoutProgression != 0 || cfg.RetryTimeoutMultiplier != 0 {
		slog.Debug("thermal_config_set",
			slog.Duration("inter_batch_delay", cfg.InterBatchDelay),
			slog.Float64("timeout_progression", cfg.TimeoutProgression),
			slog.Float64("retry_timeout_multiplier", cfg.RetryTimeoutMultiplier))
	}
}

// HTTPConfig holds network embedder settings loaded from config.yaml.
type HTTPConfig struct {
	Host  string // embedding server base URL
	Model string // model identifier the server should use
}

// globalHTTPConfig holds config file settings set via SetHTTPConfig.
// Env vars take precedence over these values.
var globalHTTPConfig HTTPConfig

// SetHTTPConfig sets network embedder config from the user's config.yaml.
// Call before NewEmbedder() to ensure config file settings are used.
// Environment variables still take precedence over config file settings.
func SetHTTPConfig(cfg HTTPConfig) {
	globalHTTPConfig = cfg
	if cfg.Host != "" || cfg.Model != "" {
		slog.Debug("http_embed_config_set",
			slog.String("host", cfg.Host),
			slog.String("model", cfg.Model))
	}
}

// NewDefaultEmbedder creates a static embedder (768 dimensions).
//
// Deprecated: This function ignores user configuration and always returns
// StaticEmbedder768, which can cause dimension mismatches if the index was
// built with a different embedder. Use
// NewEmbedder(ctx, ParseProvider(cfg.Embeddings.Provider), cfg.Embeddings.Model) instead.
func NewDefaultEmbedder(ctx context.Context) (Embedder, error) {
	return NewEmbedder(ctx, ProviderStatic, "")
}

// ParseProvider converts a string to ProviderType.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "http", "ollama", "llama":
		// "ollama"/"llama" mapped to the generic HTTP provider for
		// backwards compatibility with configs naming the old backend.
		return ProviderHTTP
	case "static":
		return ProviderStatic
	default:
		return ProviderHTTP
	}
}

// String returns the string representation of ProviderType.
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{
		string(ProviderHTTP),
		string(ProviderStatic),
	}
}

// IsValidProvider checks if a provider name is valid.
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}

// EmbedderInfo contains information about an embedder.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo returns information about an embedder.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.inner
	}

	switch inner.(type) {
	case *HTTPProvider:
		info.Provider = ProviderHTTP
	default:
		info.Provider = ProviderStatic
	}

	return info
}

// MustNewEmbedder creates an embedder and panics on failure.
// Use only in tests or initialization code where failure is fatal.
func MustNewEmbedder(ctx context.Context, provider ProviderType, model string) Embedder {
	embedder, err := NewEmbedder(ctx, provider, model)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}
	return embedder
}

// parseFloat64 parses a string to float64, used for thermal config parsing.
func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
