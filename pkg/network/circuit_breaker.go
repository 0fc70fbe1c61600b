// Package network carries client traffic and drives the tick loop. It also
// provides the circuit breaker that guards every call leaving the process,
// peer transfers and checkpoint writes alike.
package network

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/opd-ai/go-starsector/pkg/config"
	"github.com/opd-ai/go-starsector/pkg/logging"
)

// NetworkService guards one kind of outbound call, such as a peer transfer
// or a checkpoint write, with a gobreaker circuit breaker. The breaker's
// thresholds come from the environment and its name and retry budget from
// the game config, so a failing peer or store never stalls the tick loop.
type NetworkService struct {
	breaker *gobreaker.CircuitBreaker
	logger  *logging.Logger

	// MaxRetries and BaseDelay tune ExecuteWithRetry
	MaxRetries int
	BaseDelay  time.Duration
}

// NetworkOperation is one attempt at an outbound call
type NetworkOperation = func() error

// NewNetworkService builds the breaker named by policy. A nil logger is
// replaced by the default one.
func NewNetworkService(policy config.RetryPolicy, env *config.EnvironmentConfig, logger *logging.Logger) *NetworkService {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &NetworkService{
		breaker:    gobreaker.NewCircuitBreaker(breakerSettings(policy.Name, env, logger)),
		logger:     logger,
		MaxRetries: max(policy.Attempts, 1),
		BaseDelay:  policy.Delay,
	}
}

func breakerSettings(name string, env *config.EnvironmentConfig, logger *logging.Logger) gobreaker.Settings {
	trip := uint32(max(env.CircuitBreakerMaxConsecutiveFails, 1))
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(env.CircuitBreakerMaxRequests),
		Interval:    env.CircuitBreakerInterval,
		Timeout:     env.CircuitBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info(context.Background(), "circuit breaker state changed", "breaker", name, "from", from, "to", to)
		},
	}
}

// Name is the breaker name from the retry policy
func (ns *NetworkService) Name() string {
	return ns.breaker.Name()
}

// Execute makes one attempt through the breaker. An open breaker fails
// without calling op.
func (ns *NetworkService) Execute(ctx context.Context, op NetworkOperation) error {
	if _, err := ns.breaker.Execute(func() (interface{}, error) { return nil, op() }); err != nil {
		ns.logger.LogWithContext(ctx, slog.LevelWarn, "guarded call failed",
			"breaker", ns.Name(), "state", ns.breaker.State(), "error", err)
		return fmt.Errorf("%s breaker: %w", ns.Name(), err)
	}
	return nil
}

// ExecuteWithRetry makes up to MaxRetries attempts, waiting attempt*BaseDelay
// between them. It gives up early once the breaker opens or ctx ends.
func (ns *NetworkService) ExecuteWithRetry(ctx context.Context, op NetworkOperation) error {
	attempts := max(ns.MaxRetries, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = ns.Execute(ctx, op); err == nil {
			return nil
		}
		if ns.Open() {
			ns.logger.LogWithContext(ctx, slog.LevelWarn, "breaker open, giving up",
				"breaker", ns.Name(), "attempt", attempt)
			return err
		}
		if attempt == attempts {
			break
		}

		delay := time.Duration(attempt) * ns.BaseDelay
		ns.logger.LogWithContext(ctx, slog.LevelDebug, "retrying guarded call",
			"breaker", ns.Name(), "attempt", attempt, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		}
	}
	ns.logger.Error(ctx, "guarded call exhausted its retries", err, "breaker", ns.Name(), "attempts", attempts)
	return fmt.Errorf("%d attempts failed: %w", attempts, err)
}

// Open reports whether the breaker is currently rejecting calls
func (ns *NetworkService) Open() bool {
	return ns.breaker.State() == gobreaker.StateOpen
}

// GetState returns the current state of the circuit breaker.
func (ns *NetworkService) GetState() gobreaker.State {
	return ns.breaker.State()
}

// GetCounts returns the breaker's request and failure counts
func (ns *NetworkService) GetCounts() gobreaker.Counts {
	return ns.breaker.Counts()
}
