package resilience

import (
	"context"
	"log/slog"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// GuardConfig bundles the per-provider protection settings.
type GuardConfig struct {
	// RatePerSecond of 0 disables rate limiting.
	RatePerSecond float64
	Burst         int
	Retry         RetryConfig
	Circuit       CircuitBreakerConfig
}

// DefaultGuardConfig is used for HTTP-backed providers.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RatePerSecond: 5,
		Burst:         5,
		Retry:         DefaultRetryConfig(),
		Circuit:       DefaultCircuitBreakerConfig(),
	}
}

// Guard wraps calls to one provider: wait for a rate token, pass the breaker,
// then retry transient failures.
type Guard struct {
	name    string
	limiter *rate.Limiter
	breaker *CircuitBreaker
	retry   RetryConfig
	logger  *slog.Logger
}

func NewGuard(name string, cfg GuardConfig, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Guard{name: name, retry: cfg.Retry, logger: logger}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	circuit := cfg.Circuit
	if circuit.OnStateChange == nil {
		circuit.OnStateChange = func(from, to CircuitState) {
			logger.Warn("provider.circuit.transition", "provider", name, "from", from.String(), "to", to.String())
		}
	}
	g.breaker = NewCircuitBreaker(circuit)
	if g.retry.OnRetry == nil {
		g.retry.OnRetry = RetryLogger(logger, name)
	}
	return g
}

// Name of the guarded provider.
func (g *Guard) Name() string { return g.name }

// State exposes the breaker state for health reporting.
func (g *Guard) State() CircuitState { return g.breaker.State() }

// Call runs fn under the guard. A retried call counts as one breaker outcome.
func Call[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return zero, eris.Wrapf(err, "%s: rate limiter", g.name)
		}
	}
	return ExecuteVal(ctx, g.breaker, func(ctx context.Context) (T, error) {
		return DoVal(ctx, g.retry, fn)
	})
}
