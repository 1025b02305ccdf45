package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/orchestd/internal/config"
	"github.com/fyrsmithlabs/orchestd/internal/graph"
)

// testConfig wires a single echo-backed CLI executor that can serve any
// phase, with state persisted under a temp directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.State.Path = filepath.Join(t.TempDir(), "state.json")
	cfg.Workflow.Phases = []string{"define", "implement", "test"}
	cfg.Executors = []config.ExecutorConfig{{
		ID:   "echo",
		Kind: "cli",
		Capabilities: []string{
			"analysis", "planning", "architecture", "coding", "testing", "review",
		},
		Command:       "echo",
		MaxConcurrent: 1,
	}}
	return cfg
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	orch, err := New(testConfig(t), nil)
	require.NoError(t, err)
	return orch
}

func TestNewRegistersExecutors(t *testing.T) {
	orch := newTestOrchestrator(t)

	execs := orch.ListExecutors()
	require.Len(t, execs, 1)
	assert.Equal(t, "echo", execs[0].ID)
	assert.Equal(t, "cli", execs[0].Kind)
	assert.Equal(t, "closed", string(execs[0].Breaker.State))
}

func TestFeatureLifecycle(t *testing.T) {
	orch := newTestOrchestrator(t)
	ctx := context.Background()

	f, err := orch.StartFeature(ctx, "add request tracing")
	require.NoError(t, err)
	assert.Equal(t, "define", f.CurrentPhase)

	action, err := orch.GetNextAction(ctx, f.ID)
	require.NoError(t, err)
	assert.False(t, action.Done)
	assert.Equal(t, "define", action.Phase)
	require.NotNil(t, action.Task)
	assert.Equal(t, f.ID+":define", action.Task.ID)

	updated, err := orch.SubmitResults(ctx, f.ID, "define", "scoped")
	require.NoError(t, err)
	assert.Equal(t, "implement", updated.CurrentPhase)

	assert.Len(t, orch.ListFeatures(), 1)

	abandoned, err := orch.AbandonFeature(ctx, f.ID, "descoped")
	require.NoError(t, err)
	assert.True(t, abandoned.Status.Terminal())

	action, err = orch.GetNextAction(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, action.Done)
	assert.Nil(t, action.Task)
}

func TestRunPhaseAdvancesOnSuccess(t *testing.T) {
	orch := newTestOrchestrator(t)
	ctx := context.Background()

	f, err := orch.StartFeature(ctx, "add request tracing")
	require.NoError(t, err)

	run, err := orch.RunPhase(ctx, f.ID)
	require.NoError(t, err)

	assert.Equal(t, graph.StatusSucceeded, run.Result.Status)
	assert.Equal(t, "implement", run.Feature.CurrentPhase)
	require.Len(t, run.Feature.History, 2)
	assert.NotEmpty(t, run.Feature.History[0].ResultsSummary, "task output becomes the phase summary")
}

func TestRunPhaseFailureLeavesFeatureInPlace(t *testing.T) {
	cfg := testConfig(t)
	cfg.Executors[0].Command = "false"
	cfg.Invoker.MaxAttempts = 1
	orch, err := New(cfg, nil)
	require.NoError(t, err)
	ctx := context.Background()

	f, err := orch.StartFeature(ctx, "doomed work")
	require.NoError(t, err)

	run, err := orch.RunPhase(ctx, f.ID)
	require.NoError(t, err)

	assert.Equal(t, graph.StatusFailed, run.Result.Status)
	assert.Equal(t, "define", run.Feature.CurrentPhase)

	reloaded, err := orch.GetNextAction(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "define", reloaded.Phase)
}

func TestApplyExecutorsAddsNewOnly(t *testing.T) {
	orch := newTestOrchestrator(t)

	updated := testConfig(t)
	updated.Executors = append(updated.Executors, config.ExecutorConfig{
		ID:           "cat",
		Kind:         "cli",
		Capabilities: []string{"coding"},
		Command:      "cat",
	})

	require.NoError(t, orch.ApplyExecutors(updated))
	assert.Len(t, orch.ListExecutors(), 2)

	// Applying the same config again is a no-op.
	require.NoError(t, orch.ApplyExecutors(updated))
	assert.Len(t, orch.ListExecutors(), 2)
}

func TestNewRejectsUnknownExecutorKind(t *testing.T) {
	cfg := testConfig(t)
	cfg.Executors[0].Kind = "mainframe"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}
