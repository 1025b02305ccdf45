package workflow

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/orchestd/internal/graph"
	"github.com/fyrsmithlabs/orchestd/internal/selection"
)

// phaseCapabilities maps each standard phase to the executor capability
// its work requires. Phases outside this map fall back to "general".
var phaseCapabilities = map[string][]string{
	"define":    {"analysis"},
	"decompose": {"planning"},
	"design":    {"architecture"},
	"implement": {"coding"},
	"test":      {"testing"},
	"review":    {"review"},
}

var phasePrompts = map[string]string{
	"define":    "Define the requirements and acceptance criteria for: %s",
	"decompose": "Break down into ordered, independently verifiable subtasks: %s",
	"design":    "Produce a technical design covering interfaces and data flow for: %s",
	"implement": "Implement the following, matching the existing codebase conventions: %s",
	"test":      "Write and run tests covering the behavior of: %s",
	"review":    "Review the completed work for correctness and regressions: %s",
}

// EmitWork derives the unit of work for the feature's current phase. It
// is a pure derivation from feature context and does not mutate state.
func (m *Machine) EmitWork(f *Feature) (*graph.Task, error) {
	if f.Status.Terminal() {
		return nil, &ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("feature %s is %s, no work to emit", f.ID, f.Status),
		}
	}
	if !m.def.Contains(f.CurrentPhase) {
		return nil, &ValidationError{
			Field:  "current_phase",
			Reason: fmt.Sprintf("unknown phase %q", f.CurrentPhase),
		}
	}

	caps, ok := phaseCapabilities[f.CurrentPhase]
	if !ok {
		caps = []string{"general"}
	}
	prompt := f.Prompt
	if tmpl, ok := phasePrompts[f.CurrentPhase]; ok {
		prompt = fmt.Sprintf(tmpl, f.Prompt)
	}

	return &graph.Task{
		ID:                   f.ID + ":" + f.CurrentPhase,
		Prompt:               prompt,
		RequiredCapabilities: caps,
		Complexity:           EstimateComplexity(f.Prompt),
		Metadata: map[string]string{
			"feature_id": f.ID,
			"phase":      f.CurrentPhase,
		},
	}, nil
}

// complexityIndicators score a prompt into a tier. Ties resolve to the
// higher tier.
var complexityIndicators = []struct {
	tier     selection.Complexity
	keywords []string
}{
	{selection.Trivial, []string{
		"fix typo", "update comment", "rename variable", "fix formatting",
		"add docstring", "update readme", "fix lint",
	}},
	{selection.Simple, []string{
		"add function", "fix bug", "update config", "add test",
		"improve error message", "add logging",
	}},
	{selection.Moderate, []string{
		"implement feature", "add endpoint", "create component",
		"refactor module", "add validation", "integrate api",
	}},
	{selection.Complex, []string{
		"new feature", "redesign", "major refactor", "migrate",
		"implement system", "add authentication", "create workflow",
	}},
	{selection.Epic, []string{
		"build platform", "complete rewrite", "architecture change",
		"multi-service", "new product", "full migration",
	}},
}

// EstimateComplexity scores the prompt against per-tier keyword lists.
// When no keyword matches, prompt length decides: short prompts are
// simple, long ones complex.
func EstimateComplexity(prompt string) selection.Complexity {
	lower := strings.ToLower(prompt)

	best := selection.Complexity("")
	bestScore := 0
	for _, ind := range complexityIndicators {
		score := 0
		for _, kw := range ind.keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		// >= keeps the higher tier on ties.
		if score > 0 && score >= bestScore {
			best = ind.tier
			bestScore = score
		}
	}
	if bestScore > 0 {
		return best
	}

	switch words := len(strings.Fields(prompt)); {
	case words < 10:
		return selection.Simple
	case words < 30:
		return selection.Moderate
	default:
		return selection.Complex
	}
}
