package invoker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/orchestd/internal/agent"
	"github.com/fyrsmithlabs/orchestd/internal/registry"
)

// scriptedAdapter returns its scripted errors in order, then succeeds.
type scriptedAdapter struct {
	errs  []error
	calls int
}

func (a *scriptedAdapter) Execute(ctx context.Context, payload agent.Payload) (*agent.Outcome, error) {
	idx := a.calls
	a.calls++
	if idx < len(a.errs) && a.errs[idx] != nil {
		return nil, a.errs[idx]
	}
	return &agent.Outcome{Output: "done"}, nil
}

func newTestInvoker(t *testing.T, adapter agent.Adapter, cfg Config, breakerCfg registry.BreakerConfig) (*Invoker, *registry.Registry, *[]time.Duration) {
	t.Helper()
	reg := registry.New(breakerCfg, nil)
	_, err := reg.Register(registry.Spec{
		ID:            "worker",
		Kind:          registry.KindCLI,
		Capabilities:  []string{"coding"},
		MaxConcurrent: 1,
	})
	require.NoError(t, err)

	inv := New(reg, AdapterMap{"worker": adapter}, cfg, nil)

	// Capture backoff delays instead of sleeping.
	var delays []time.Duration
	inv.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return inv, reg, &delays
}

func TestInvokeSucceedsFirstAttempt(t *testing.T) {
	adapter := &scriptedAdapter{}
	inv, _, delays := newTestInvoker(t, adapter, Config{}, registry.BreakerConfig{})

	out, err := inv.Invoke(context.Background(), "worker", agent.Payload{TaskID: "t1", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "done", out.Output)
	assert.Equal(t, 1, adapter.calls)
	assert.Empty(t, *delays)
}

func TestInvokeRetriesTransientWithGrowingBackoff(t *testing.T) {
	adapter := &scriptedAdapter{errs: []error{
		agent.Transient(errors.New("reset")),
		agent.Transient(errors.New("reset")),
	}}
	inv, _, delays := newTestInvoker(t, adapter, Config{
		MaxAttempts: 3,
		BackoffBase: 100 * time.Millisecond,
		BackoffMax:  30 * time.Second,
	}, registry.BreakerConfig{})

	out, err := inv.Invoke(context.Background(), "worker", agent.Payload{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "done", out.Output)
	assert.Equal(t, 3, adapter.calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *delays,
		"backoff must grow between attempts")
}

func TestInvokeBackoffCapped(t *testing.T) {
	adapter := &scriptedAdapter{errs: []error{
		agent.Transient(errors.New("x")),
		agent.Transient(errors.New("x")),
		agent.Transient(errors.New("x")),
		agent.Transient(errors.New("x")),
	}}
	inv, _, delays := newTestInvoker(t, adapter, Config{
		MaxAttempts: 5,
		BackoffBase: 10 * time.Second,
		BackoffMax:  15 * time.Second,
	}, registry.BreakerConfig{})

	_, err := inv.Invoke(context.Background(), "worker", agent.Payload{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{
		10 * time.Second, 15 * time.Second, 15 * time.Second, 15 * time.Second,
	}, *delays)
}

func TestInvokeTerminalErrorNotRetried(t *testing.T) {
	adapter := &scriptedAdapter{errs: []error{
		agent.Terminal(errors.New("bad request")),
	}}
	inv, _, delays := newTestInvoker(t, adapter, Config{MaxAttempts: 3}, registry.BreakerConfig{})

	_, err := inv.Invoke(context.Background(), "worker", agent.Payload{TaskID: "t1"})
	require.Error(t, err)
	assert.Equal(t, 1, adapter.calls, "terminal failures must not consume the retry budget")
	assert.Empty(t, *delays)
}

func TestInvokeRetriesExhausted(t *testing.T) {
	adapter := &scriptedAdapter{errs: []error{
		agent.Transient(errors.New("flaky")),
		agent.Transient(errors.New("flaky")),
		agent.Transient(errors.New("flaky")),
	}}
	inv, _, _ := newTestInvoker(t, adapter, Config{MaxAttempts: 3, BackoffBase: time.Millisecond}, registry.BreakerConfig{})

	_, err := inv.Invoke(context.Background(), "worker", agent.Payload{TaskID: "t1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retries exhausted after 3 attempts")
	assert.Equal(t, 3, adapter.calls)
}

func TestInvokeOpenBreakerFailsFastWithoutAdapterCall(t *testing.T) {
	adapter := &scriptedAdapter{errs: []error{
		agent.Terminal(errors.New("boom")),
		agent.Terminal(errors.New("boom")),
	}}
	inv, reg, _ := newTestInvoker(t, adapter, Config{MaxAttempts: 1},
		registry.BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour})

	// Two failed invocations trip the breaker.
	_, err := inv.Invoke(context.Background(), "worker", agent.Payload{TaskID: "t1"})
	require.Error(t, err)
	_, err = inv.Invoke(context.Background(), "worker", agent.Payload{TaskID: "t2"})
	require.Error(t, err)
	require.Equal(t, registry.StateOpen, reg.Breaker("worker").State())

	calls := adapter.calls
	_, err = inv.Invoke(context.Background(), "worker", agent.Payload{TaskID: "t3"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, calls, adapter.calls, "open circuit must not reach the adapter")
}

func TestInvokeExhaustedRetriesCountOnceAgainstBreaker(t *testing.T) {
	adapter := &scriptedAdapter{errs: []error{
		agent.Transient(errors.New("flaky")),
		agent.Transient(errors.New("flaky")),
		agent.Transient(errors.New("flaky")),
	}}
	inv, reg, _ := newTestInvoker(t, adapter, Config{MaxAttempts: 3, BackoffBase: time.Millisecond},
		registry.BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour})

	_, err := inv.Invoke(context.Background(), "worker", agent.Payload{TaskID: "t1"})
	require.Error(t, err)
	assert.Equal(t, 1, reg.Breaker("worker").Snapshot().ConsecutiveFailures,
		"a whole invocation is one breaker failure, not one per attempt")
}

func TestInvokeSuccessClosesHalfOpenBreaker(t *testing.T) {
	adapter := &scriptedAdapter{errs: []error{
		agent.Terminal(errors.New("boom")),
	}}
	inv, reg, _ := newTestInvoker(t, adapter, Config{MaxAttempts: 1},
		registry.BreakerConfig{FailureThreshold: 1, Cooldown: time.Nanosecond})

	_, err := inv.Invoke(context.Background(), "worker", agent.Payload{TaskID: "t1"})
	require.Error(t, err)

	// Cooldown of a nanosecond has elapsed; the next call is the trial.
	time.Sleep(time.Millisecond)
	out, err := inv.Invoke(context.Background(), "worker", agent.Payload{TaskID: "t2"})
	require.NoError(t, err)
	assert.Equal(t, "done", out.Output)
	assert.Equal(t, registry.StateClosed, reg.Breaker("worker").State())
}

func TestInvokeUnknownExecutor(t *testing.T) {
	inv, _, _ := newTestInvoker(t, &scriptedAdapter{}, Config{}, registry.BreakerConfig{})
	_, err := inv.Invoke(context.Background(), "ghost", agent.Payload{TaskID: "t1"})
	assert.Error(t, err)
}

func TestInvokeCancelledContextStopsRetries(t *testing.T) {
	adapter := &scriptedAdapter{errs: []error{
		agent.Transient(errors.New("flaky")),
		agent.Transient(errors.New("flaky")),
	}}
	inv, _, _ := newTestInvoker(t, adapter, Config{MaxAttempts: 3, BackoffBase: time.Millisecond}, registry.BreakerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	inv.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := inv.Invoke(ctx, "worker", agent.Payload{TaskID: "t1"})
	require.Error(t, err)
	assert.Equal(t, 1, adapter.calls, "no further attempts after cancellation")
	assert.True(t, agent.IsTransient(err), "the call failure is reported, not the cancellation")
}
