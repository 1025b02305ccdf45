// Package invoker wraps a single executor call with timeout, retry with
// exponential backoff, per-executor rate limiting, and circuit breaker
// accounting.
//
// This is the only place breaker state mutates: admission is checked before
// the first attempt and the final outcome is recorded once, so concurrent
// invocations for the same executor never race on the failure counters.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/orchestd/internal/agent"
	"github.com/fyrsmithlabs/orchestd/internal/registry"
)

// ErrCircuitOpen is returned without touching the adapter when the
// executor's breaker rejects the call. It never consumes a retry budget.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Config tunes retry and timeout behavior.
type Config struct {
	// MaxAttempts bounds attempts per invocation (default: 3).
	MaxAttempts int

	// AttemptTimeout bounds a single adapter call (default: 2m).
	AttemptTimeout time.Duration

	// BackoffBase is the first retry delay, doubled per attempt
	// (default: 500ms).
	BackoffBase time.Duration

	// BackoffMax caps the growing delay (default: 30s).
	BackoffMax time.Duration

	// RatePerSecond throttles calls per executor; zero disables
	// throttling.
	RatePerSecond float64
}

// DefaultConfig returns the default invoker configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		AttemptTimeout: 2 * time.Minute,
		BackoffBase:    500 * time.Millisecond,
		BackoffMax:     30 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = defaults.AttemptTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaults.BackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = defaults.BackoffMax
	}
}

// Adapters resolves an executor id to its adapter.
type Adapters interface {
	// Adapter returns the adapter for an executor id, or nil if unknown.
	Adapter(executorID string) agent.Adapter
}

// AdapterMap is a static Adapters implementation.
type AdapterMap map[string]agent.Adapter

// Adapter implements Adapters.
func (m AdapterMap) Adapter(executorID string) agent.Adapter {
	return m[executorID]
}

// Invoker performs resilient calls against registered executors.
type Invoker struct {
	reg      *registry.Registry
	adapters Adapters
	cfg      Config
	logger   *zap.Logger
	tracer   trace.Tracer

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// sleep is replaceable in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an invoker over the registry and adapter set.
func New(reg *registry.Registry, adapters Adapters, cfg Config, logger *zap.Logger) *Invoker {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{
		reg:      reg,
		adapters: adapters,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		limiters: make(map[string]*rate.Limiter),
		sleep:    sleepCtx,
	}
}

// Invoke runs one payload against one executor under resilience controls.
//
// Breaker admission happens first: an open circuit fails immediately with
// ErrCircuitOpen and no adapter call. Admitted calls get up to MaxAttempts
// attempts, retrying only transient outcomes with exponentially growing
// delays. Cancellation lets the in-flight attempt finish its own deadline
// but schedules no further retries.
func (i *Invoker) Invoke(ctx context.Context, executorID string, payload agent.Payload) (*agent.Outcome, error) {
	ctx, span := i.tracer.Start(ctx, "invoker.invoke")
	defer span.End()

	span.SetAttributes(
		attribute.String("executor_id", executorID),
		attribute.String("task_id", payload.TaskID),
	)

	exec := i.reg.Get(executorID)
	if exec == nil {
		return nil, fmt.Errorf("invoke: unknown executor %q", executorID)
	}
	breaker := i.reg.Breaker(executorID)
	if breaker == nil {
		return nil, fmt.Errorf("invoke: no breaker for executor %q", executorID)
	}
	adapter := i.adapters.Adapter(executorID)
	if adapter == nil {
		return nil, fmt.Errorf("invoke: no adapter for executor %q", executorID)
	}

	if !breaker.Allow() {
		recordRejection(ctx, executorID)
		return nil, fmt.Errorf("executor %s: %w", executorID, ErrCircuitOpen)
	}

	outcome, err := i.attempts(ctx, exec, adapter, payload)
	if err != nil {
		if state := breaker.RecordFailure(); state == registry.StateOpen {
			i.logger.Warn("circuit breaker opened",
				zap.String("executor_id", executorID))
			recordBreakerOpen(ctx, executorID)
		}
		return nil, err
	}

	breaker.RecordSuccess()
	return outcome, nil
}

// attempts runs the retry loop. The returned error is the last attempt's.
func (i *Invoker) attempts(ctx context.Context, exec *registry.Executor, adapter agent.Adapter, payload agent.Payload) (*agent.Outcome, error) {
	var lastErr error
	delay := i.cfg.BackoffBase

	for attempt := 1; attempt <= i.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		if err := i.waitTurn(ctx, exec.ID); err != nil {
			return nil, err
		}

		outcome, err := i.attempt(ctx, adapter, payload)
		recordAttempt(ctx, exec.ID, attempt, err)
		if err == nil {
			if attempt > 1 {
				i.logger.Info("executor call recovered after retries",
					zap.String("executor_id", exec.ID),
					zap.Int("attempts", attempt))
			}
			return outcome, nil
		}

		lastErr = err
		if !agent.IsTransient(err) {
			i.logger.Debug("terminal executor failure, not retrying",
				zap.String("executor_id", exec.ID),
				zap.Error(err))
			return nil, err
		}
		if attempt == i.cfg.MaxAttempts {
			break
		}

		i.logger.Debug("transient executor failure, backing off",
			zap.String("executor_id", exec.ID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := i.sleep(ctx, delay); err != nil {
			// Cancelled mid-backoff: report the call failure, not the
			// cancellation.
			return nil, lastErr
		}
		delay *= 2
		if delay > i.cfg.BackoffMax {
			delay = i.cfg.BackoffMax
		}
	}

	return nil, fmt.Errorf("executor %s: retries exhausted after %d attempts: %w",
		exec.ID, i.cfg.MaxAttempts, lastErr)
}

// attempt performs one adapter call under its own deadline. The deadline is
// detached from parent cancellation so a graph-level cancel lets the
// current attempt run to completion.
func (i *Invoker) attempt(ctx context.Context, adapter agent.Adapter, payload agent.Payload) (*agent.Outcome, error) {
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.cfg.AttemptTimeout)
	defer cancel()
	return adapter.Execute(attemptCtx, payload)
}

// waitTurn applies the per-executor rate limit, if configured.
func (i *Invoker) waitTurn(ctx context.Context, executorID string) error {
	if i.cfg.RatePerSecond <= 0 {
		return nil
	}

	i.mu.Lock()
	limiter, ok := i.limiters[executorID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(i.cfg.RatePerSecond), 1)
		i.limiters[executorID] = limiter
	}
	i.mu.Unlock()

	return limiter.Wait(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
