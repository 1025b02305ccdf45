package graph

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestd/internal/agent"
	"github.com/fyrsmithlabs/orchestd/internal/registry"
	"github.com/fyrsmithlabs/orchestd/internal/selection"
)

// Invoker is the resilient-call dependency of the executor.
// Satisfied by *invoker.Invoker and test fakes.
type Invoker interface {
	Invoke(ctx context.Context, executorID string, payload agent.Payload) (*agent.Outcome, error)
}

// Config tunes a graph run.
type Config struct {
	// ConcurrencyLimit bounds simultaneously running tasks
	// (default: runtime.NumCPU).
	ConcurrencyLimit int

	// FailFast stops scheduling new tasks after the first task failure.
	// Default false: unrelated branches keep running.
	FailFast bool
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{
		ConcurrencyLimit: runtime.NumCPU(),
	}
}

func (c *Config) applyDefaults() {
	if c.ConcurrencyLimit <= 0 {
		c.ConcurrencyLimit = runtime.NumCPU()
	}
}

// Executor drains a task graph through the selection policy and invoker.
type Executor struct {
	reg     *registry.Registry
	invoker Invoker
	cfg     Config
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewExecutor creates a graph executor.
func NewExecutor(reg *registry.Registry, inv Invoker, cfg Config, logger *zap.Logger) *Executor {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		reg:     reg,
		invoker: inv,
		cfg:     cfg,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
	}
}

// outcome is passed from workers back to the scheduler loop.
type outcome struct {
	taskID string
	result Result
}

// Run executes every task in the graph and returns per-task results.
//
// Individual task failures never fail the run; they fail the task and skip
// its transitive dependents. The returned error is non-nil only for
// structural problems (the graph was already rejected at Build time) or
// when the context is cancelled before all tasks settle. Even then the
// partial result map is returned.
func (e *Executor) Run(ctx context.Context, g *Graph) (map[string]Result, error) {
	results := make(map[string]Result, g.Size())
	if g.Size() == 0 {
		return results, nil
	}

	ctx, span := e.tracer.Start(ctx, "graph.run")
	defer span.End()
	span.SetAttributes(attribute.Int("tasks", g.Size()))

	recordRun(ctx, g.Size())

	remaining := make(map[string]int, g.Size())
	for _, t := range g.tasks {
		remaining[t.ID] = len(t.DependsOn)
	}

	ready := g.roots()
	for _, id := range ready {
		g.tasks[id].status = StatusReady
	}

	outcomes := make(chan outcome, g.Size())
	running := 0
	settled := 0
	var wg sync.WaitGroup
	failFastTripped := false

	dispatch := func(id string) {
		t := g.tasks[id]
		t.status = StatusRunning
		running++
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- outcome{taskID: id, result: e.runTask(ctx, t)}
		}()
	}

	// Seed up to the concurrency limit; the rest of the ready queue waits.
	queue := ready
	for len(queue) > 0 && running < e.cfg.ConcurrencyLimit {
		dispatch(queue[0])
		queue = queue[1:]
	}

	// settle marks a task terminal and promotes or skips its dependents.
	var settle func(id string, res Result)
	settle = func(id string, res Result) {
		t := g.tasks[id]
		t.status = res.Status
		results[id] = res
		settled++

		for _, depID := range g.dependents[id] {
			dep := g.tasks[depID]
			if dep.status != StatusPending {
				continue
			}
			if res.Status != StatusSucceeded {
				// Failure and skip both poison the branch.
				settle(depID, Result{
					TaskID:         depID,
					Status:         StatusSkipped,
					SkippedBecause: rootFailure(res),
				})
				continue
			}
			remaining[depID]--
			if remaining[depID] == 0 {
				dep.status = StatusReady
				queue = append(queue, depID)
			}
		}
	}

	cancelled := false
	for settled < g.Size() {
		if running == 0 {
			// No worker will produce more outcomes. Everything left is
			// unreachable (cancelled or fail-fast): settle as skipped.
			for _, id := range g.order {
				if !g.tasks[id].status.Terminal() {
					settle(id, Result{
						TaskID:         id,
						Status:         StatusSkipped,
						SkippedBecause: "run stopped before task became ready",
					})
				}
			}
			break
		}

		out := <-outcomes
		running--

		settle(out.taskID, out.result)
		if out.result.Status == StatusFailed && e.cfg.FailFast {
			failFastTripped = true
		}

		if ctx.Err() != nil {
			cancelled = true
		}
		if !cancelled && !failFastTripped {
			for len(queue) > 0 && running < e.cfg.ConcurrencyLimit {
				next := queue[0]
				queue = queue[1:]
				if g.tasks[next].status != StatusReady {
					continue
				}
				dispatch(next)
			}
		} else {
			queue = nil
		}
	}

	wg.Wait()

	if cancelled {
		return results, fmt.Errorf("graph run interrupted: %w", context.Cause(ctx))
	}
	return results, nil
}

// runTask resolves the fallback chain and walks it until a candidate
// succeeds or the chain is exhausted.
func (e *Executor) runTask(ctx context.Context, t *Task) Result {
	start := time.Now()
	res := Result{TaskID: t.ID}

	chain, err := selection.Select(e.reg, selection.Requirements{
		Capabilities: t.RequiredCapabilities,
		Complexity:   t.Complexity,
	})
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		res.Duration = time.Since(start)
		recordTask(ctx, res.Status)
		return res
	}

	if chain.Relaxed {
		e.logger.Warn("no full capability match, using relaxed candidates",
			zap.String("task_id", t.ID),
			zap.Strings("required", t.RequiredCapabilities),
			zap.Strings("chain", chain.IDs()))
	}

	payload := agent.Payload{
		TaskID:   t.ID,
		Prompt:   t.Prompt,
		Metadata: t.Metadata,
	}

	var lastErr error
	for _, cand := range chain.Candidates {
		if ctx.Err() != nil {
			break
		}
		exec := cand.Executor
		exec.AcquireSlot()
		res.Attempts++
		out, err := e.invoker.Invoke(ctx, exec.ID, payload)
		exec.ReleaseSlot()

		if err == nil {
			res.Status = StatusSucceeded
			res.AssignedExecutor = exec.ID
			res.Output = out.Output
			res.Duration = time.Since(start)
			recordTask(ctx, res.Status)
			return res
		}

		lastErr = err
		e.logger.Warn("candidate failed, trying next in chain",
			zap.String("task_id", t.ID),
			zap.String("executor_id", exec.ID),
			zap.Error(err))
	}

	res.Status = StatusFailed
	if lastErr != nil {
		res.Error = lastErr.Error()
	} else {
		res.Error = "cancelled before any candidate was tried"
	}
	res.Duration = time.Since(start)
	recordTask(ctx, res.Status)
	return res
}

// rootFailure names the task whose failure triggered a skip so callers can
// trace a skipped branch back to its cause.
func rootFailure(res Result) string {
	if res.Status == StatusSkipped && res.SkippedBecause != "" {
		return res.SkippedBecause
	}
	return res.TaskID
}
