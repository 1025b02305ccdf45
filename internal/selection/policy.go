// Package selection scores executors against a task's requirements and
// produces the ordered fallback chain the graph executor walks.
//
// The policy is a pure function over a registry snapshot: no locks are
// taken beyond registry reads and no state is kept between calls, so the
// same snapshot and task always produce the same ordering.
package selection

import (
	"errors"
	"sort"

	"github.com/fyrsmithlabs/orchestd/internal/registry"
)

// ErrNoExecutorAvailable is returned when no executor can take the task:
// nothing matches even partially, or every candidate's breaker is
// rejecting calls.
var ErrNoExecutorAvailable = errors.New("no executor available for task")

// Complexity tiers a task by expected effort.
type Complexity string

const (
	Trivial  Complexity = "trivial"
	Simple   Complexity = "simple"
	Moderate Complexity = "moderate"
	Complex  Complexity = "complex"
	Epic     Complexity = "epic"
)

// Valid reports whether c is a known tier.
func (c Complexity) Valid() bool {
	switch c {
	case Trivial, Simple, Moderate, Complex, Epic:
		return true
	}
	return false
}

// Requirements describe what a task needs from an executor.
type Requirements struct {
	Capabilities []string
	Complexity   Complexity
}

// Candidate is one scored executor in the fallback chain.
type Candidate struct {
	Executor *registry.Executor
	Score    float64

	// Relaxed marks a candidate that lacks some required capability;
	// the policy fell back to best-partial-match rather than failing.
	Relaxed bool
}

// Chain is the ordered candidate list, primary first.
type Chain struct {
	Candidates []Candidate

	// Relaxed is true when no executor covered every required capability
	// and the whole chain is best-effort.
	Relaxed bool
}

// IDs returns the executor ids in chain order.
func (c Chain) IDs() []string {
	ids := make([]string, len(c.Candidates))
	for i, cand := range c.Candidates {
		ids[i] = cand.Executor.ID
	}
	return ids
}

// Select builds the fallback chain for a task.
//
// Eligible executors (capability superset, breaker not rejecting) are
// scored as
//
//	capabilityMatch + suitability(kind, tier) - costWeight - loadPenalty
//
// and sorted descending; ties break on lowest current load, then id. When
// no executor holds every required capability the policy relaxes to the
// best partial matches instead of failing outright.
func Select(reg *registry.Registry, req Requirements) (Chain, error) {
	execs := reg.ListByCapability(req.Capabilities)
	relaxed := false

	if len(execs) == 0 {
		// Relax: any non-open executor with at least one of the tags.
		execs = partialMatches(reg, req.Capabilities)
		relaxed = true
	}
	if len(execs) == 0 {
		return Chain{}, ErrNoExecutorAvailable
	}

	candidates := make([]Candidate, 0, len(execs))
	for _, exec := range execs {
		candidates = append(candidates, Candidate{
			Executor: exec,
			Score:    score(exec, req),
			Relaxed:  relaxed || !exec.HasAll(req.Capabilities),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		la, lb := a.Executor.CurrentLoad(), b.Executor.CurrentLoad()
		if la != lb {
			return la < lb
		}
		return a.Executor.ID < b.Executor.ID
	})

	return Chain{Candidates: candidates, Relaxed: relaxed}, nil
}

// score computes an executor's fitness for the requirements.
func score(exec *registry.Executor, req Requirements) float64 {
	s := capabilityMatch(exec, req.Capabilities)
	s += suitability(exec.Kind, req.Complexity)
	s -= exec.CostWeight
	s -= loadPenalty(exec)
	return s
}

// capabilityMatch awards 1.0 per required tag the executor holds exactly,
// plus 0.5 per extra declared tag: a broader executor is mildly preferred
// as a fallback for adjacent work.
func capabilityMatch(exec *registry.Executor, required []string) float64 {
	match := 0.0
	covered := make(map[string]bool, len(required))
	for _, tag := range required {
		covered[tag] = true
		if exec.Has(tag) {
			match += 1.0
		}
	}
	for tag := range exec.Capabilities {
		if !covered[tag] {
			match += 0.5
		}
	}
	return match
}

// suitability expresses which backend kind fits which tier: remote agents
// carry full-repository context and suit heavy work, CLI agents turn
// around small changes faster.
func suitability(kind registry.Kind, tier Complexity) float64 {
	switch kind {
	case registry.KindRemote:
		switch tier {
		case Epic:
			return 2.0
		case Complex:
			return 1.5
		case Moderate:
			return 1.0
		default:
			return 0.5
		}
	case registry.KindCLI:
		switch tier {
		case Trivial:
			return 2.0
		case Simple:
			return 1.5
		case Moderate:
			return 1.0
		default:
			return 0.25
		}
	}
	return 0
}

// loadPenalty scales with how full the executor already is.
func loadPenalty(exec *registry.Executor) float64 {
	if exec.MaxConcurrent <= 0 {
		return 0
	}
	return float64(exec.CurrentLoad()) / float64(exec.MaxConcurrent)
}

// partialMatches returns executors holding at least one required tag whose
// breaker is not rejecting calls, sorted by id. With no required tags every
// such executor matches.
func partialMatches(reg *registry.Registry, required []string) []*registry.Executor {
	var out []*registry.Executor
	for _, exec := range reg.All() {
		breaker := reg.Breaker(exec.ID)
		if breaker != nil && breaker.Rejecting() {
			continue
		}
		if len(required) == 0 {
			out = append(out, exec)
			continue
		}
		for _, tag := range required {
			if exec.Has(tag) {
				out = append(out, exec)
				break
			}
		}
	}
	return out
}
