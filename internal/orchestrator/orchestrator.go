// Package orchestrator composes the registry, invoker, graph executor,
// and workflow machine into the caller-facing operations.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestd/internal/agent"
	"github.com/fyrsmithlabs/orchestd/internal/config"
	"github.com/fyrsmithlabs/orchestd/internal/graph"
	"github.com/fyrsmithlabs/orchestd/internal/invoker"
	"github.com/fyrsmithlabs/orchestd/internal/registry"
	"github.com/fyrsmithlabs/orchestd/internal/state"
	"github.com/fyrsmithlabs/orchestd/internal/workflow"
)

// Orchestrator owns the wired subsystems and exposes the operations the
// transport layer calls. Errors returned here are the structured types
// from the underlying packages; nothing panics across this boundary.
type Orchestrator struct {
	cfg      *config.Config
	logger   *zap.Logger
	reg      *registry.Registry
	adapters *adapterStore
	invoker  *invoker.Invoker
	exec     *graph.Executor
	machine  *workflow.Machine
}

// adapterStore is a mutable invoker.Adapters implementation, so executors
// added to the configuration at runtime become invokable.
type adapterStore struct {
	mu sync.RWMutex
	m  map[string]agent.Adapter
}

func newAdapterStore() *adapterStore {
	return &adapterStore{m: make(map[string]agent.Adapter)}
}

func (s *adapterStore) Adapter(executorID string) agent.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[executorID]
}

func (s *adapterStore) put(executorID string, a agent.Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[executorID] = a
}

// New wires every subsystem from configuration.
func New(cfg *config.Config, logger *zap.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := registry.New(registry.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown,
	}, logger)

	adapters := newAdapterStore()
	if err := registerExecutors(reg, adapters, cfg.Executors, logger); err != nil {
		return nil, err
	}

	inv := invoker.New(reg, adapters, invoker.Config{
		MaxAttempts:    cfg.Invoker.MaxAttempts,
		AttemptTimeout: cfg.Invoker.AttemptTimeout,
		BackoffBase:    cfg.Invoker.BackoffBase,
		BackoffMax:     cfg.Invoker.BackoffMax,
		RatePerSecond:  cfg.Invoker.RatePerSecond,
	}, logger)

	exec := graph.NewExecutor(reg, inv, graph.Config{
		ConcurrencyLimit: cfg.Graph.ConcurrencyLimit,
		FailFast:         cfg.Graph.FailFast,
	}, logger)

	store, err := state.New(state.Config{
		Path:       cfg.State.Path,
		MaxBackups: cfg.State.MaxBackups,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	skippable := make(map[string]bool, len(cfg.Workflow.Skippable))
	for _, p := range cfg.Workflow.Skippable {
		skippable[p] = true
	}
	machine, err := workflow.NewMachine(workflow.Definition{
		Phases:    cfg.Workflow.Phases,
		Skippable: skippable,
	}, store, logger)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:      cfg,
		logger:   logger,
		reg:      reg,
		adapters: adapters,
		invoker:  inv,
		exec:     exec,
		machine:  machine,
	}, nil
}

// ApplyExecutors registers executors added to the configuration at
// runtime. Existing registrations keep their breaker and load state;
// removals and field changes take effect on restart.
func (o *Orchestrator) ApplyExecutors(cfg *config.Config) error {
	var added []config.ExecutorConfig
	for _, ec := range cfg.Executors {
		if o.reg.Get(ec.ID) == nil {
			added = append(added, ec)
		}
	}
	if len(added) == 0 {
		return nil
	}
	if err := registerExecutors(o.reg, o.adapters, added, o.logger); err != nil {
		return err
	}
	for _, ec := range added {
		o.logger.Info("executor added from configuration reload",
			zap.String("executor_id", ec.ID),
			zap.String("kind", ec.Kind))
	}
	return nil
}

func registerExecutors(reg *registry.Registry, adapters *adapterStore, specs []config.ExecutorConfig, logger *zap.Logger) error {
	for _, ec := range specs {
		if _, err := reg.Register(registry.Spec{
			ID:            ec.ID,
			Kind:          registry.Kind(ec.Kind),
			Capabilities:  ec.Capabilities,
			CostWeight:    ec.CostWeight,
			MaxConcurrent: ec.MaxConcurrent,
		}); err != nil {
			return fmt.Errorf("register executor %s: %w", ec.ID, err)
		}

		adapter, err := buildAdapter(ec, logger)
		if err != nil {
			return fmt.Errorf("build adapter for %s: %w", ec.ID, err)
		}
		adapters.put(ec.ID, adapter)
	}
	return nil
}

func buildAdapter(ec config.ExecutorConfig, logger *zap.Logger) (agent.Adapter, error) {
	switch registry.Kind(ec.Kind) {
	case registry.KindCLI:
		return agent.NewCLIAdapter(agent.CLIConfig{
			Command:        ec.Command,
			Args:           ec.Args,
			PromptViaStdin: ec.PromptViaStdin,
			WorkingDir:     ec.WorkingDir,
			Logger:         logger,
		})
	case registry.KindRemote:
		keyEnv := ec.APIKeyEnv
		if keyEnv == "" {
			keyEnv = "ANTHROPIC_API_KEY"
		}
		return agent.NewRemoteAdapter(agent.RemoteConfig{
			APIKey:    os.Getenv(keyEnv),
			Model:     ec.Model,
			MaxTokens: int64(ec.MaxTokens),
			Logger:    logger,
		})
	default:
		return nil, fmt.Errorf("unknown executor kind %q", ec.Kind)
	}
}

// StartFeature creates a new feature at the initial phase.
func (o *Orchestrator) StartFeature(ctx context.Context, prompt string) (*workflow.Feature, error) {
	return o.machine.StartFeature(ctx, prompt)
}

// NextAction describes what the caller should do for a feature.
type NextAction struct {
	FeatureID string      `json:"feature_id"`
	Status    string      `json:"status"`
	Phase     string      `json:"phase,omitempty"`
	Task      *graph.Task `json:"task,omitempty"`
	Done      bool        `json:"done"`
}

// GetNextAction derives the unit of work for the feature's current phase
// without mutating state.
func (o *Orchestrator) GetNextAction(ctx context.Context, featureID string) (*NextAction, error) {
	f, err := o.machine.LoadState(featureID)
	if err != nil {
		return nil, err
	}
	if f.Status.Terminal() {
		return &NextAction{
			FeatureID: f.ID,
			Status:    string(f.Status),
			Done:      true,
		}, nil
	}

	task, err := o.machine.EmitWork(f)
	if err != nil {
		return nil, err
	}
	return &NextAction{
		FeatureID: f.ID,
		Status:    string(f.Status),
		Phase:     f.CurrentPhase,
		Task:      task,
	}, nil
}

// SubmitResults records phase results and advances the feature.
func (o *Orchestrator) SubmitResults(ctx context.Context, featureID, phase, summary string) (*workflow.Feature, error) {
	return o.machine.SubmitResults(ctx, featureID, phase, summary)
}

// AbandonFeature marks a feature abandoned.
func (o *Orchestrator) AbandonFeature(ctx context.Context, featureID, reason string) (*workflow.Feature, error) {
	return o.machine.Abandon(ctx, featureID, reason)
}

// ListFeatures returns all known features.
func (o *Orchestrator) ListFeatures() []*workflow.Feature {
	return o.machine.List()
}

// PhaseRun is the outcome of executing one phase end to end.
type PhaseRun struct {
	Feature *workflow.Feature `json:"feature"`
	Result  graph.Result      `json:"result"`
}

// RunPhase executes the current phase's task through the full pipeline
// and, on success, submits the output as the phase results.
//
// A failed or skipped task leaves the feature where it was; the caller
// sees the task outcome and can retry or abandon.
func (o *Orchestrator) RunPhase(ctx context.Context, featureID string) (*PhaseRun, error) {
	f, err := o.machine.LoadState(featureID)
	if err != nil {
		return nil, err
	}
	if f.Status.Terminal() {
		return nil, fmt.Errorf("feature %s is %s, nothing to run", featureID, f.Status)
	}

	task, err := o.machine.EmitWork(f)
	if err != nil {
		return nil, err
	}

	g, err := graph.Build([]*graph.Task{task})
	if err != nil {
		return nil, err
	}
	results, err := o.exec.Run(ctx, g)
	if err != nil {
		return nil, err
	}
	res := results[task.ID]

	run := &PhaseRun{Feature: f, Result: res}
	if !res.Succeeded() {
		o.logger.Warn("phase task did not succeed",
			zap.String("feature_id", featureID),
			zap.String("phase", f.CurrentPhase),
			zap.String("status", string(res.Status)),
			zap.String("error", res.Error))
		return run, nil
	}

	updated, err := o.machine.SubmitResults(ctx, featureID, f.CurrentPhase, summarize(res.Output))
	if err != nil {
		return nil, err
	}
	run.Feature = updated
	return run, nil
}

// ExecutorStatus is the observability view of one registered executor.
type ExecutorStatus struct {
	ID           string                   `json:"id"`
	Kind         string                   `json:"kind"`
	Capabilities []string                 `json:"capabilities"`
	CostWeight   float64                  `json:"cost_weight"`
	Load         int                      `json:"load"`
	MaxLoad      int                      `json:"max_load"`
	Breaker      registry.BreakerSnapshot `json:"breaker"`
}

// ListExecutors returns the registered executors with their breaker state.
func (o *Orchestrator) ListExecutors() []ExecutorStatus {
	execs := o.reg.All()
	out := make([]ExecutorStatus, 0, len(execs))
	for _, e := range execs {
		snap, _ := o.reg.BreakerState(e.ID)
		out = append(out, ExecutorStatus{
			ID:           e.ID,
			Kind:         string(e.Kind),
			Capabilities: e.CapabilityList(),
			CostWeight:   e.CostWeight,
			Load:         e.CurrentLoad(),
			MaxLoad:      e.MaxConcurrent,
			Breaker:      snap,
		})
	}
	return out
}

// summarize truncates task output for the transition log.
func summarize(s string) string {
	const max = 2000
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
