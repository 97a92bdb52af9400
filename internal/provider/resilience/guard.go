package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Predefined errors for guarded operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// GuardConfig holds configuration for a Guard.
type GuardConfig struct {
	// Name identifies the guarded dependency in the registry and breaker.
	Name string

	// MaxRetries is the maximum number of retry attempts after the first call.
	// Default: 2
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	// Default: 50ms
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	// Default: 1 second
	MaxInterval time.Duration

	// Permanent reports errors that are expected outcomes rather than
	// dependency failures. They are returned as-is, never retried and never
	// counted against the breaker.
	Permanent func(err error) bool

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry receives success/failure records when set.
	Registry *Registry
}

// DefaultGuardConfig returns defaults for a store guard.
func DefaultGuardConfig(name string) GuardConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return GuardConfig{
		Name:            name,
		MaxRetries:      2,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
		CircuitBreaker:  &cbConfig,
	}
}

// Guard runs operations against a dependency behind a circuit breaker with
// exponential-backoff retries.
type Guard struct {
	breaker *gobreaker.CircuitBreaker[struct{}]
	config  GuardConfig
}

// NewGuard creates a guard and registers it when cfg.Registry is set.
func NewGuard(cfg GuardConfig) *Guard {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 50 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = time.Second
	}
	if cfg.Permanent == nil {
		cfg.Permanent = func(error) bool { return false }
	}

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
	}
	permanent := cfg.Permanent
	cbConfig.IsSuccessful = func(err error) bool {
		return err == nil || permanent(err)
	}

	g := &Guard{
		breaker: NewCircuitBreaker[struct{}](cbConfig),
		config:  cfg,
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, g)
	}
	return g
}

// Name returns the guard name.
func (g *Guard) Name() string {
	return g.config.Name
}

// Do runs op through the breaker, retrying failures with backoff until
// MaxRetries is exhausted or ctx is done. Returns ErrCircuitOpen without
// calling op when the breaker is open.
func (g *Guard) Do(ctx context.Context, op func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.config.InitialInterval
	bo.MaxInterval = g.config.MaxInterval
	bo.MaxElapsedTime = 0 // Unlimited, we control retries via WithMaxRetries

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, g.config.MaxRetries), ctx)

	operation := func() error {
		_, err := g.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, op(ctx)
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(ErrCircuitOpen)
		case g.config.Permanent(err):
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, policy)
	g.record(err)
	return err
}

func (g *Guard) record(err error) {
	if g.config.Registry == nil {
		return
	}
	if err == nil || g.config.Permanent(err) {
		g.config.Registry.RecordSuccess(g.config.Name)
		return
	}
	g.config.Registry.RecordFailure(g.config.Name, err)
}

// Execute is Do for operations that return a value.
func Execute[T any](ctx context.Context, g *Guard, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := g.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (g *Guard) CircuitBreakerState() gobreaker.State {
	return g.breaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (g *Guard) CircuitBreakerCounts() gobreaker.Counts {
	return g.breaker.Counts()
}
