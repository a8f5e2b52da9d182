package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned when the breaker is rejecting calls after
// repeated endpoint failures.
var ErrCircuitOpen = errors.New("llm circuit breaker is open")

// GuardConfig tunes the protective wrapper around the inference client.
type GuardConfig struct {
	// MaxConcurrent caps in-flight calls (default 3, 0 = unlimited).
	MaxConcurrent int
	// RatePerSecond throttles call starts (default 2, 0 = unlimited).
	RatePerSecond float64
	// DefaultTimeout bounds calls whose context has no deadline
	// (default 15s).
	DefaultTimeout time.Duration

	// Breaker settings.
	FailureThreshold int           // failures before opening (default 5)
	SuccessThreshold int           // half-open successes before closing (default 2)
	OpenTimeout      time.Duration // open duration before probing (default 30s)
}

// DefaultGuardConfig returns the defaults used in production.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxConcurrent:    3,
		RatePerSecond:    2,
		DefaultTimeout:   15 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
	}
}

// Guard wraps a Client with a circuit breaker, a concurrency semaphore and
// a rate limiter. It never retries: a failed call is reported to the
// breaker and returned to the caller, whose component-level fallback takes
// over.
type Guard struct {
	inner   Client
	cfg     GuardConfig
	breaker *breaker
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// NewGuard wraps client with the given config.
func NewGuard(client Client, cfg GuardConfig) *Guard {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 15 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	g := &Guard{
		inner:   client,
		cfg:     cfg,
		breaker: newBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.OpenTimeout),
	}
	if cfg.MaxConcurrent > 0 {
		g.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	if cfg.RatePerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return g
}

// Generate implements Client.
func (g *Guard) Generate(ctx context.Context, req Request) (string, error) {
	if err := g.breaker.allow(); err != nil {
		return "", err
	}

	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return "", fmt.Errorf("waiting for llm slot: %w", err)
		}
		defer g.sem.Release(1)
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("waiting for llm rate limiter: %w", err)
		}
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.DefaultTimeout)
		defer cancel()
	}

	text, err := g.inner.Generate(ctx, req)
	if err != nil {
		g.breaker.recordFailure()
		return "", err
	}
	g.breaker.recordSuccess()
	return text, nil
}

// Healthy implements Client.
func (g *Guard) Healthy(ctx context.Context) error {
	return g.inner.Healthy(ctx)
}

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// breaker is a minimal circuit breaker: open after N consecutive failures,
// probe after the open timeout, close after M half-open successes.
type breaker struct {
	mu sync.Mutex

	state            breakerState
	failures         int
	successes        int
	lastFailure      time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
}

func newBreaker(failureThreshold, successThreshold int, openTimeout time.Duration) *breaker {
	return &breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
	}
}

func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if time.Since(b.lastFailure) > b.openTimeout {
			b.state = breakerHalfOpen
			b.successes = 0
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = time.Now()
	switch b.state {
	case breakerHalfOpen:
		b.state = breakerOpen
		b.failures = 0
	default:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.state = breakerOpen
			b.failures = 0
		}
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = breakerClosed
			b.failures = 0
		}
	case breakerClosed:
		b.failures = 0
	}
}
