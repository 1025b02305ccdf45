// Package registry holds the known executors, their declared capabilities,
// and one circuit breaker per executor.
//
// The registry is built from configuration at startup and lives for the
// whole process; breaker state is in-memory only and resets on restart.
package registry

import (
	"sort"
	"sync/atomic"
)

// Kind distinguishes executor backends.
type Kind string

const (
	// KindRemote is an asynchronous remote agent behind an API.
	KindRemote Kind = "remote"

	// KindCLI is a locally spawned command-line agent.
	KindCLI Kind = "cli"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindRemote || k == KindCLI
}

// Executor describes one registered backend.
//
// ID, Kind, Capabilities, CostWeight and MaxConcurrent are static for the
// process lifetime; only the load counter mutates as tasks start and finish.
type Executor struct {
	ID            string
	Kind          Kind
	Capabilities  map[string]bool
	CostWeight    float64
	MaxConcurrent int

	load atomic.Int64
}

// HasAll reports whether the executor's capability set is a superset of tags.
func (e *Executor) HasAll(tags []string) bool {
	for _, tag := range tags {
		if !e.Capabilities[tag] {
			return false
		}
	}
	return true
}

// Has reports whether the executor declares a single capability.
func (e *Executor) Has(tag string) bool {
	return e.Capabilities[tag]
}

// CapabilityList returns the capability tags in sorted order.
func (e *Executor) CapabilityList() []string {
	tags := make([]string, 0, len(e.Capabilities))
	for tag := range e.Capabilities {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// CurrentLoad returns the number of tasks currently assigned.
func (e *Executor) CurrentLoad() int {
	return int(e.load.Load())
}

// AcquireSlot increments the load counter.
func (e *Executor) AcquireSlot() {
	e.load.Add(1)
}

// ReleaseSlot decrements the load counter, never below zero.
func (e *Executor) ReleaseSlot() {
	for {
		cur := e.load.Load()
		if cur <= 0 {
			return
		}
		if e.load.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}
