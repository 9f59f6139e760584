// BreakerRegistry gates adapter calls per service with a circuit breaker
// (§4.B) and wraps retryable failures in bounded exponential back-off
// (§4.B, §7: "Retries apply only at the adapter layer"). The breaker itself
// is github.com/sony/gobreaker, the consistent choice across this retrieval
// pack's manifests for exactly this concern (eddiefleurent/scranton_strangler,
// ajitpratap0/cryptofunk, sawpanic/cryptorun).
package marketdata

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig tunes a single service's breaker (§4.B: "two tunables").
type BreakerConfig struct {
	FailureThreshold uint32
	Cooldown         time.Duration
	MaxRetries       int
	RetryBaseDelay   time.Duration
}

// BreakerRegistry holds one gobreaker.CircuitBreaker per service name, never
// global (§5: "The circuit-breaker state is per (data-center instance,
// service) pair and never global").
type BreakerRegistry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry builds a registry that lazily creates one breaker per
// distinct service name on first use.
func NewBreakerRegistry(cfg BreakerConfig) *BreakerRegistry {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 200 * time.Millisecond
	}
	return &BreakerRegistry{cfg: cfg, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (r *BreakerRegistry) breakerFor(service string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[service]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        service,
		MaxRequests: 1, // a single probe call is allowed through while HALF_OPEN
		Timeout:     r.cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.cfg.FailureThreshold
		},
	})
	r.breakers[service] = b
	return b
}

// State reports the current breaker state for a service (§4.B), mainly for
// observability and tests.
func (r *BreakerRegistry) State(service string) gobreaker.State {
	return r.breakerFor(service).State()
}

// Execute runs fn through the named breaker with bounded retries for
// retryable failures. While the breaker is OPEN, fn is never called and
// ErrCircuitOpen is returned (§4.B).
func (r *BreakerRegistry) Execute(ctx context.Context, service string, fn func(ctx context.Context) (any, error)) (any, error) {
	b := r.breakerFor(service)

	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxRetries; attempt++ {
		result, err := b.Execute(func() (any, error) { return fn(ctx) })
		if err == nil {
			return result, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		lastErr = err
		if !Retryable(err) {
			return nil, err
		}
		if attempt < r.cfg.MaxRetries-1 {
			delay := r.cfg.RetryBaseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, lastErr
}
