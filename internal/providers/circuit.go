package providers

import (
	"context"
	"math/rand"
	"time"

	coreerrors "github.com/codesearch-core/codesearch/internal/errors"
)

func randFloat() float64 { return rand.Float64() }

// DefaultFailureThreshold is the spec's circuit-breaker threshold: three
// consecutive failures open the circuit. This differs from the teacher's
// own default of five failures (internal/errors.NewCircuitBreaker); provider
// calls adopt the tighter threshold because a single slow collection or
// embedding backend should fail fast rather than absorb five round trips
// of latency before tripping.
const DefaultFailureThreshold = 3

// DefaultCooldown is the circuit breaker's open-state cooldown window.
const DefaultCooldown = 30 * time.Second

// Guard wraps a provider call with a circuit breaker and retry-with-backoff
// policy, composed over the call rather than baked into any one provider
// implementation. Retries apply only to error kinds classified as
// retriable; ProviderFatal, Validation, and DimensionMismatch pass straight
// through.
type Guard struct {
	breaker *coreerrors.CircuitBreaker
	retry   coreerrors.RetryConfig
}

// NewGuard builds a Guard named after the provider it wraps (used in the
// breaker's error messages and in logs).
func NewGuard(name string) *Guard {
	return &Guard{
		breaker: coreerrors.NewCircuitBreaker(
			name,
			coreerrors.WithMaxFailures(DefaultFailureThreshold),
			coreerrors.WithResetTimeout(DefaultCooldown),
		),
		retry: coreerrors.RetryConfig{
			MaxRetries:   3,
			InitialDelay: 250 * time.Millisecond,
			MaxDelay:     4 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
	}
}

// State exposes the breaker's current state for health reporting.
func (g *Guard) State() coreerrors.State {
	return g.breaker.State()
}

// Do executes fn under the circuit breaker with retry-with-jitter applied
// to retriable error kinds only. If the circuit is open, fn is never called
// and ProviderUnavailableError wrapping ErrCircuitOpen is returned
// immediately ("fail fast with a distinct error kind"). A non-retriable
// error (ProviderFatal, Validation, DimensionMismatch, ...) returns on its
// first occurrence without consuming the retry budget.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !g.breaker.Allow() {
		return coreerrors.ProviderUnavailableError(g.breaker.Name()+": circuit open", coreerrors.ErrCircuitOpen)
	}

	delay := g.retry.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= g.retry.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			g.breaker.RecordSuccess()
			return nil
		}

		if !isRetriable(lastErr) || attempt >= g.retry.MaxRetries {
			break
		}

		wait := delay
		if g.retry.Jitter {
			wait = jitter(delay)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay = minDuration(time.Duration(float64(delay)*g.retry.Multiplier), g.retry.MaxDelay)
	}

	g.breaker.RecordFailure()
	return lastErr
}

func jitter(d time.Duration) time.Duration {
	factor := 0.5 + randFloat()*0.5
	return time.Duration(float64(d) * factor)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// isRetriable classifies an error by its closed Kind: only
// ProviderUnavailable and Persistence are retried. ProviderFatal,
// Validation, DimensionMismatch, ProviderSwitch, CollectionNotFound, and
// Cancelled pass straight through.
func isRetriable(err error) bool {
	switch coreerrors.GetKind(err) {
	case coreerrors.KindProviderUnavailable, coreerrors.KindPersistence:
		return true
	default:
		return false
	}
}
