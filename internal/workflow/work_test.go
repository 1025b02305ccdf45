package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/orchestd/internal/selection"
)

func TestEmitWorkForCurrentPhase(t *testing.T) {
	m := newTestMachine(t, testDefinition(), &memPort{})
	f, err := m.StartFeature(context.Background(), "add caching to the session layer")
	require.NoError(t, err)

	task, err := m.EmitWork(f)
	require.NoError(t, err)

	assert.Equal(t, f.ID+":define", task.ID)
	assert.Equal(t, []string{"analysis"}, task.RequiredCapabilities)
	assert.Contains(t, task.Prompt, "add caching to the session layer")
	assert.Equal(t, f.ID, task.Metadata["feature_id"])
	assert.Equal(t, "define", task.Metadata["phase"])
}

func TestEmitWorkCapabilityPerPhase(t *testing.T) {
	def := DefaultDefinition()
	m := newTestMachine(t, def, &memPort{})

	tests := []struct {
		phase string
		want  string
	}{
		{"define", "analysis"},
		{"decompose", "planning"},
		{"design", "architecture"},
		{"implement", "coding"},
		{"test", "testing"},
		{"review", "review"},
	}
	for _, tt := range tests {
		f := &Feature{ID: "f1", Prompt: "do the thing", CurrentPhase: tt.phase, Status: StatusActive}
		task, err := m.EmitWork(f)
		require.NoError(t, err, "phase %s", tt.phase)
		assert.Equal(t, []string{tt.want}, task.RequiredCapabilities, "phase %s", tt.phase)
	}
}

func TestEmitWorkRejectsTerminalFeature(t *testing.T) {
	m := newTestMachine(t, testDefinition(), &memPort{})
	f := &Feature{ID: "f1", Prompt: "done already", CurrentPhase: "test", Status: StatusCompleted}

	_, err := m.EmitWork(f)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestEmitWorkRejectsUnknownPhase(t *testing.T) {
	m := newTestMachine(t, testDefinition(), &memPort{})
	f := &Feature{ID: "f1", Prompt: "x", CurrentPhase: "deploy", Status: StatusActive}

	_, err := m.EmitWork(f)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestEstimateComplexityKeywords(t *testing.T) {
	tests := []struct {
		prompt string
		want   selection.Complexity
	}{
		{"fix typo in the config docs", selection.Trivial},
		{"add test for the retry loop", selection.Simple},
		{"implement feature flags for rollout", selection.Moderate},
		{"major refactor of the storage layer", selection.Complex},
		{"complete rewrite of the ingestion pipeline", selection.Epic},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateComplexity(tt.prompt), "prompt %q", tt.prompt)
	}
}

func TestEstimateComplexityTiesResolveHigher(t *testing.T) {
	// One trivial keyword and one epic keyword score 1 each; the higher
	// tier wins.
	got := EstimateComplexity("fix typo before the complete rewrite lands")
	assert.Equal(t, selection.Epic, got)
}

func TestEstimateComplexityFallsBackToLength(t *testing.T) {
	assert.Equal(t, selection.Simple, EstimateComplexity("tidy imports"))

	moderate := strings.Repeat("word ", 15)
	assert.Equal(t, selection.Moderate, EstimateComplexity(moderate))

	long := strings.Repeat("word ", 40)
	assert.Equal(t, selection.Complex, EstimateComplexity(long))
}
