package registry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Spec declares one executor for registration, typically decoded from
// configuration.
type Spec struct {
	ID            string   `json:"id"`
	Kind          Kind     `json:"kind"`
	Capabilities  []string `json:"capabilities"`
	CostWeight    float64  `json:"cost_weight"`
	MaxConcurrent int      `json:"max_concurrent"`
}

// Registry maps executor ids to executors and their breakers.
// Reads are concurrent; registration normally happens once at startup.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]*Executor
	breakers  map[string]*Breaker

	breakerCfg BreakerConfig
	logger     *zap.Logger
}

// New creates an empty registry. Breakers for registered executors use cfg.
func New(cfg BreakerConfig, logger *zap.Logger) *Registry {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		executors:  make(map[string]*Executor),
		breakers:   make(map[string]*Breaker),
		breakerCfg: cfg,
		logger:     logger,
	}
}

// Register adds an executor. Registration is idempotent by id: re-registering
// an existing id leaves the stored executor and its breaker untouched.
func (r *Registry) Register(spec Spec) (*Executor, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("register executor: id is required")
	}
	if !spec.Kind.Valid() {
		return nil, fmt.Errorf("register executor %s: unknown kind %q", spec.ID, spec.Kind)
	}
	if spec.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("register executor %s: max_concurrent must be positive", spec.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.executors[spec.ID]; ok {
		return existing, nil
	}

	caps := make(map[string]bool, len(spec.Capabilities))
	for _, tag := range spec.Capabilities {
		caps[tag] = true
	}
	exec := &Executor{
		ID:            spec.ID,
		Kind:          spec.Kind,
		Capabilities:  caps,
		CostWeight:    spec.CostWeight,
		MaxConcurrent: spec.MaxConcurrent,
	}
	r.executors[spec.ID] = exec
	r.breakers[spec.ID] = NewBreaker(r.breakerCfg)

	r.logger.Info("executor registered",
		zap.String("executor_id", spec.ID),
		zap.String("kind", string(spec.Kind)),
		zap.Strings("capabilities", spec.Capabilities))

	return exec, nil
}

// Get returns an executor by id, or nil if unknown.
func (r *Registry) Get(id string) *Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.executors[id]
}

// ListByCapability returns executors whose capability set is a superset of
// tags and whose breaker is not rejecting calls, sorted by id for
// determinism. An open breaker past its cooldown does not exclude the
// executor; the invoker's admission check runs the half-open trial.
func (r *Registry) ListByCapability(tags []string) []*Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Executor
	for id, exec := range r.executors {
		if !exec.HasAll(tags) {
			continue
		}
		if r.breakers[id].Rejecting() {
			continue
		}
		out = append(out, exec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns every registered executor sorted by id, regardless of breaker
// state. Used for observability listings.
func (r *Registry) All() []*Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Executor, 0, len(r.executors))
	for _, exec := range r.executors {
		out = append(out, exec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Breaker returns the circuit breaker for an executor, or nil if unknown.
func (r *Registry) Breaker(id string) *Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[id]
}

// BreakerState returns a snapshot of an executor's breaker.
func (r *Registry) BreakerState(id string) (BreakerSnapshot, error) {
	r.mu.RLock()
	b := r.breakers[id]
	r.mu.RUnlock()

	if b == nil {
		return BreakerSnapshot{}, fmt.Errorf("breaker state: unknown executor %q", id)
	}
	return b.Snapshot(), nil
}

// Size returns the number of registered executors.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.executors)
}
