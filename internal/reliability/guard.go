package reliability

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Guard applies a rate limiter, a circuit breaker and a retry policy to an
// outbound call, in that order per attempt.
type Guard struct {
	limiter *rate.Limiter
	breaker *CircuitBreaker
	retry   RetryPolicy
	onWait  func(time.Duration)
}

// NewGuard constructs a Guard. Any of limiter and breaker may be nil.
func NewGuard(limiter *rate.Limiter, breaker *CircuitBreaker, retry RetryPolicy) *Guard {
	return &Guard{limiter: limiter, breaker: breaker, retry: retry}
}

// NewGuardFromConfig builds a Guard from cfg.
func NewGuardFromConfig(cfg Config) *Guard {
	var limiter *rate.Limiter
	if cfg.RateLimitInterval > 0 && cfg.RateLimitBurst > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.RateLimitInterval), cfg.RateLimitBurst)
	}
	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  cfg.BreakerMaxFailures,
		ResetTimeout: cfg.BreakerResetTimeout,
	})
	retry := RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}
	return NewGuard(limiter, breaker, retry)
}

// OnWait registers a callback invoked with the time spent waiting on the limiter.
func (g *Guard) OnWait(fn func(time.Duration)) *Guard {
	g.onWait = fn
	return g
}

// Do runs fn with limiter and breaker, retrying per policy. Only idempotent
// calls should use Do.
func (g *Guard) Do(ctx context.Context, fn func() error) error {
	if g == nil {
		return fn()
	}
	return g.retry.Do(ctx, func() error { return g.attempt(ctx, fn) })
}

// Once runs fn a single time with limiter and breaker. Use it for calls that
// are not safe to repeat.
func (g *Guard) Once(ctx context.Context, fn func() error) error {
	if g == nil {
		return fn()
	}
	return g.attempt(ctx, fn)
}

func (g *Guard) attempt(ctx context.Context, fn func() error) error {
	if g.limiter != nil {
		start := time.Now()
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		if g.onWait != nil {
			if waited := time.Since(start); waited > time.Millisecond {
				g.onWait(waited)
			}
		}
	}
	if g.breaker != nil {
		return g.breaker.Execute(fn)
	}
	return fn()
}
