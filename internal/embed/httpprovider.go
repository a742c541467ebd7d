package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// HTTPProviderConfig configures the generic HTTP embedding provider. It
// targets any server that exposes an Ollama-compatible /api/embeddings
// endpoint (`{"model":..., "prompt":...}` -> `{"embedding": [...]}`).
type HTTPProviderConfig struct {
	Host                   string
	Model                  string
	Dimensions             int
	Timeout                time.Duration
	InterBatchDelay        time.Duration
	TimeoutProgression     float64
	RetryTimeoutMultiplier float64
}

// DefaultHTTPProviderConfig returns the default configuration for a local
// Ollama-compatible embedding server.
func DefaultHTTPProviderConfig() HTTPProviderConfig {
	return HTTPProviderConfig{
		Host:                   "http://localhost:11434",
		Model:                  "nomic-embed-text",
		Dimensions:             DefaultDimensions,
		Timeout:                DefaultWarmTimeout,
		TimeoutProgression:     1.0,
		RetryTimeoutMultiplier: 1.0,
	}
}

// HTTPProvider is the generic network embedder: any deployment that speaks
// the Ollama embeddings wire format (self-hosted llama.cpp, Ollama itself,
// a vendor-neutral embedding gateway) can serve it.
type HTTPProvider struct {
	cfg        HTTPProviderConfig
	client     *http.Client
	batchIndex atomic.Int64
	finalBatch atomic.Bool
}

// NewHTTPProvider constructs an HTTPProvider and verifies the server is
// reachable via Available.
func NewHTTPProvider(ctx context.Context, cfg HTTPProviderConfig) (*HTTPProvider, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHTTPProviderConfig().Host
	}
	if cfg.Model == "" {
		cfg.Model = DefaultHTTPProviderConfig().Model
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultWarmTimeout
	}

	p := &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}

	if !p.Available(ctx) {
		return nil, fmt.Errorf("embed: server at %s is not reachable", cfg.Host)
	}
	return p, nil
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates an embedding for a single text.
func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	timeout := p.currentTimeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(embeddingRequest{Model: p.cfg.Model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(p.cfg.Host, "/")+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embed: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embed: server returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("embed: decode response: %w", err)
	}

	return normalizeVector(result.Embedding), nil
}

// EmbedBatch embeds texts sequentially, honoring the configured
// inter-batch cooling delay between requests.
func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed: batch item %d: %w", i, err)
		}
		out = append(out, vec)

		if p.cfg.InterBatchDelay > 0 && i < len(texts)-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.cfg.InterBatchDelay):
			}
		}
	}
	return out, nil
}

// Dimensions returns the configured embedding dimension.
func (p *HTTPProvider) Dimensions() int { return p.cfg.Dimensions }

// ModelName returns the configured model identifier.
func (p *HTTPProvider) ModelName() string { return p.cfg.Model }

// Available checks whether the server answers a GET on its root path; any
// HTTP response, whatever its status, counts as available.
func (p *HTTPProvider) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(p.cfg.Host, "/")+"/", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return true
}

// Close releases resources. HTTPProvider holds no persistent connections
// beyond the pooled http.Client, so this is a no-op.
func (p *HTTPProvider) Close() error { return nil }

// SetBatchIndex records the current batch position for timeout progression.
func (p *HTTPProvider) SetBatchIndex(idx int) { p.batchIndex.Store(int64(idx)) }

// SetFinalBatch marks whether the current batch is the last one in a run.
func (p *HTTPProvider) SetFinalBatch(isFinal bool) { p.finalBatch.Store(isFinal) }

// currentTimeout applies the thermal progression curve: later batches get a
// longer timeout budget, and the final batch gets an extra boost.
func (p *HTTPProvider) currentTimeout() time.Duration {
	base := p.cfg.Timeout
	if p.cfg.TimeoutProgression > 1.0 {
		thousands := float64(p.batchIndex.Load()) / 1000.0
		factor := 1.0 + thousands*(p.cfg.TimeoutProgression-1.0)
		base = time.Duration(float64(base) * factor)
	}
	if p.finalBatch.Load() {
		base = time.Duration(float64(base) * 1.5)
	}
	return base
}
