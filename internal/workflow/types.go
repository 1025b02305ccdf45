// Package workflow models long-lived features moving through an ordered
// sequence of phases, with validated transitions and persisted state.
package workflow

import "time"

// Status is the feature-level lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusBlocked   Status = "blocked"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusBlocked, StatusCompleted, StatusAbandoned:
		return true
	}
	return false
}

// Terminal reports whether the feature can no longer advance.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// PhaseTransition is an append-only history entry. Immutable once written.
type PhaseTransition struct {
	Phase          string     `json:"phase"`
	EnteredAt      time.Time  `json:"entered_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ResultsSummary string     `json:"results_summary,omitempty"`
	Skipped        bool       `json:"skipped,omitempty"`
}

// Feature is a unit of development work moving through workflow phases.
// Features are never deleted, only marked completed or abandoned.
type Feature struct {
	ID           string            `json:"id"`
	Prompt       string            `json:"prompt"`
	CurrentPhase string            `json:"current_phase"`
	Status       Status            `json:"status"`
	History      []PhaseTransition `json:"history"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// clone returns a deep copy so callers can never mutate machine state.
func (f *Feature) clone() *Feature {
	cp := *f
	cp.History = make([]PhaseTransition, len(f.History))
	copy(cp.History, f.History)
	return &cp
}
