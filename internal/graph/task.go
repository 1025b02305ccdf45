// Package graph executes a set of dependent tasks concurrently against the
// executor pool.
//
// Tasks form a DAG; ready tasks run in parallel up to a configured limit,
// each resolved to an executor through the selection policy and invoked
// through the resilient invoker. Failures skip dependents transitively but
// never abort unrelated branches.
package graph

import (
	"time"

	"github.com/fyrsmithlabs/orchestd/internal/selection"
)

// Status is a task's position in its lifecycle.
type Status string

const (
	// StatusPending waits on unfinished dependencies.
	StatusPending Status = "pending"

	// StatusReady has all dependencies succeeded and awaits a worker.
	StatusReady Status = "ready"

	// StatusRunning is being executed by a worker.
	StatusRunning Status = "running"

	// StatusSucceeded finished with a result.
	StatusSucceeded Status = "succeeded"

	// StatusFailed exhausted its fallback chain or hit a terminal error.
	StatusFailed Status = "failed"

	// StatusSkipped never ran because a dependency failed.
	StatusSkipped Status = "skipped"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

// Task is one unit of work in a graph run.
//
// A task is owned by a single Run call: only the scheduler goroutine moves
// its status, and the terminal outcome is copied out as a Result.
type Task struct {
	ID                   string
	Prompt               string
	RequiredCapabilities []string
	Complexity           selection.Complexity
	DependsOn            []string
	Metadata             map[string]string

	status Status
}

// Result is the copied-out terminal outcome of one task.
type Result struct {
	TaskID           string `json:"task_id"`
	Status           Status `json:"status"`
	AssignedExecutor string `json:"assigned_executor,omitempty"`
	Attempts         int    `json:"attempts"`
	Output           string `json:"output,omitempty"`
	Error            string `json:"error,omitempty"`

	// SkippedBecause names the failed task that caused a skip.
	SkippedBecause string `json:"skipped_because,omitempty"`

	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the task completed with a result.
func (r Result) Succeeded() bool {
	return r.Status == StatusSucceeded
}
