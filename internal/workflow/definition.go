package workflow

import "fmt"

// Definition is the ordered list of phases a feature moves through, plus
// the set of phases a submission may skip over.
type Definition struct {
	Phases    []string        `json:"phases"`
	Skippable map[string]bool `json:"skippable,omitempty"`
}

// DefaultDefinition returns the standard development workflow.
func DefaultDefinition() Definition {
	return Definition{
		Phases: []string{"define", "decompose", "design", "implement", "test", "review"},
		Skippable: map[string]bool{
			"decompose": true,
			"design":    true,
		},
	}
}

// Validate checks the definition is usable: at least one phase, no
// duplicates, and every skippable name is a declared phase.
func (d Definition) Validate() error {
	if len(d.Phases) == 0 {
		return &ValidationError{Field: "phases", Reason: "at least one phase is required"}
	}
	seen := make(map[string]bool, len(d.Phases))
	for _, p := range d.Phases {
		if p == "" {
			return &ValidationError{Field: "phases", Reason: "phase name must not be empty"}
		}
		if seen[p] {
			return &ValidationError{Field: "phases", Reason: fmt.Sprintf("duplicate phase %q", p)}
		}
		seen[p] = true
	}
	for p := range d.Skippable {
		if !seen[p] {
			return &ValidationError{Field: "skippable", Reason: fmt.Sprintf("unknown phase %q", p)}
		}
	}
	return nil
}

// Contains reports whether phase is declared.
func (d Definition) Contains(phase string) bool {
	return d.index(phase) >= 0
}

// First returns the initial phase.
func (d Definition) First() string {
	return d.Phases[0]
}

// Last reports whether phase is the final declared phase.
func (d Definition) Last(phase string) bool {
	return len(d.Phases) > 0 && d.Phases[len(d.Phases)-1] == phase
}

// Next returns the phase after the given one. ok is false when phase is
// the last declared phase or unknown.
func (d Definition) Next(phase string) (string, bool) {
	i := d.index(phase)
	if i < 0 || i == len(d.Phases)-1 {
		return "", false
	}
	return d.Phases[i+1], true
}

func (d Definition) index(phase string) int {
	for i, p := range d.Phases {
		if p == phase {
			return i
		}
	}
	return -1
}
