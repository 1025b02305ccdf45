// Package agent defines the executor adapter contract and outcome
// classification shared by the orchestration runtime.
//
// An adapter knows how to drive one backend (a remote agent API, a local
// CLI tool). The runtime only sees Execute: payload in, classified outcome
// or error out. Adapters never retry on their own; retry and circuit
// breaking belong to the invoker.
package agent

import (
	"context"
	"time"
)

// Payload is the unit of work handed to an adapter.
type Payload struct {
	// TaskID identifies the task this payload belongs to.
	TaskID string `json:"task_id"`

	// Prompt is the instruction text for the backend.
	Prompt string `json:"prompt"`

	// Metadata carries phase/feature context the backend may use.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Outcome is a successful adapter result.
type Outcome struct {
	// Output is the backend's response text.
	Output string `json:"output"`

	// Duration is the wall-clock time of the call.
	Duration time.Duration `json:"duration"`

	// Metadata carries backend-specific detail (model, exit code, etc.).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Adapter executes work against one backend.
//
// Execute must honor the context deadline and return either a classified
// error (TransientError or TerminalError) or a plain error, which the
// caller treats as terminal.
type Adapter interface {
	// Execute performs a single call. No internal retries.
	Execute(ctx context.Context, payload Payload) (*Outcome, error)
}

// AdapterFunc adapts a function to the Adapter interface.
type AdapterFunc func(ctx context.Context, payload Payload) (*Outcome, error)

// Execute implements Adapter.
func (f AdapterFunc) Execute(ctx context.Context, payload Payload) (*Outcome, error) {
	return f(ctx, payload)
}
