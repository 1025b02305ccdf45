package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memPort is an in-memory Port.
type memPort struct {
	data     []byte
	saves    int
	failSave bool
}

func (p *memPort) Load() ([]byte, error) {
	return p.data, nil
}

func (p *memPort) Save(data []byte) error {
	if p.failSave {
		return errors.New("disk full")
	}
	p.data = data
	p.saves++
	return nil
}

func testDefinition() Definition {
	return Definition{
		Phases: []string{"define", "decompose", "implement", "test"},
	}
}

func newTestMachine(t *testing.T, def Definition, port *memPort) *Machine {
	t.Helper()
	m, err := NewMachine(def, port, nil)
	require.NoError(t, err)
	return m
}

func TestNewMachineValidatesDefinition(t *testing.T) {
	_, err := NewMachine(Definition{}, &memPort{}, nil)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestStartFeatureAtInitialPhase(t *testing.T) {
	port := &memPort{}
	m := newTestMachine(t, testDefinition(), port)

	f, err := m.StartFeature(context.Background(), "add caching")
	require.NoError(t, err)

	assert.NotEmpty(t, f.ID)
	assert.Equal(t, "define", f.CurrentPhase)
	assert.Equal(t, StatusActive, f.Status)
	require.Len(t, f.History, 1)
	assert.Equal(t, "define", f.History[0].Phase)
	assert.Nil(t, f.History[0].CompletedAt)
	assert.Equal(t, 1, port.saves, "new feature is persisted")
}

func TestStartFeatureRejectsEmptyPrompt(t *testing.T) {
	m := newTestMachine(t, testDefinition(), &memPort{})
	_, err := m.StartFeature(context.Background(), "")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSubmitResultsAdvancesPhase(t *testing.T) {
	m := newTestMachine(t, testDefinition(), &memPort{})

	f, err := m.StartFeature(context.Background(), "add caching")
	require.NoError(t, err)

	updated, err := m.SubmitResults(context.Background(), f.ID, "define", "requirements written")
	require.NoError(t, err)

	assert.Equal(t, "decompose", updated.CurrentPhase)
	assert.Equal(t, StatusActive, updated.Status)
	require.Len(t, updated.History, 2)
	assert.NotNil(t, updated.History[0].CompletedAt)
	assert.Equal(t, "requirements written", updated.History[0].ResultsSummary)
	assert.Equal(t, "decompose", updated.History[1].Phase)
}

func TestSubmitResultsPhaseMismatchLeavesStateUnchanged(t *testing.T) {
	port := &memPort{}
	m := newTestMachine(t, testDefinition(), port)

	f, err := m.StartFeature(context.Background(), "add caching")
	require.NoError(t, err)
	savesBefore := port.saves

	_, err = m.SubmitResults(context.Background(), f.ID, "implement", "jumped ahead")
	var mismatch *PhaseMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "implement", mismatch.Submitted)
	assert.Equal(t, "define", mismatch.Current)

	assert.Equal(t, savesBefore, port.saves, "rejected submission must not persist")
	reloaded, err := m.LoadState(f.ID)
	require.NoError(t, err)
	assert.Equal(t, "define", reloaded.CurrentPhase)
	assert.Len(t, reloaded.History, 1)
}

func TestSubmitResultsSkipsSkippablePhases(t *testing.T) {
	def := Definition{
		Phases:    []string{"define", "decompose", "design", "implement"},
		Skippable: map[string]bool{"decompose": true, "design": true},
	}
	m := newTestMachine(t, def, &memPort{})

	f, err := m.StartFeature(context.Background(), "fix typo in readme")
	require.NoError(t, err)
	_, err = m.SubmitResults(context.Background(), f.ID, "define", "defined")
	require.NoError(t, err)

	// Current phase is decompose; submitting implement skips over the
	// two skippable phases in between.
	updated, err := m.SubmitResults(context.Background(), f.ID, "implement", "patched")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, updated.Status)
	var skipped []string
	for _, tr := range updated.History {
		if tr.Skipped {
			skipped = append(skipped, tr.Phase)
		}
	}
	assert.Equal(t, []string{"decompose", "design"}, skipped)
}

func TestSubmitResultsNonSkippableMismatchRejected(t *testing.T) {
	def := Definition{
		Phases:    []string{"define", "decompose", "implement"},
		Skippable: map[string]bool{"decompose": true},
	}
	m := newTestMachine(t, def, &memPort{})

	f, err := m.StartFeature(context.Background(), "x y z")
	require.NoError(t, err)

	// define is not skippable, so implement cannot be reached from it.
	_, err = m.SubmitResults(context.Background(), f.ID, "implement", "s")
	var mismatch *PhaseMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestSubmitResultsLastPhaseCompletes(t *testing.T) {
	def := Definition{Phases: []string{"define", "test"}}
	m := newTestMachine(t, def, &memPort{})

	f, err := m.StartFeature(context.Background(), "small thing")
	require.NoError(t, err)

	_, err = m.SubmitResults(context.Background(), f.ID, "define", "done")
	require.NoError(t, err)
	final, err := m.SubmitResults(context.Background(), f.ID, "test", "all green")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, "test", final.CurrentPhase, "terminal features keep their last phase")

	_, err = m.SubmitResults(context.Background(), f.ID, "test", "again")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr, "completed features cannot advance")
}

func TestSubmitResultsUnknownPhase(t *testing.T) {
	m := newTestMachine(t, testDefinition(), &memPort{})
	f, err := m.StartFeature(context.Background(), "x")
	require.NoError(t, err)

	_, err = m.SubmitResults(context.Background(), f.ID, "deploy", "s")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSubmitResultsUnknownFeature(t *testing.T) {
	m := newTestMachine(t, testDefinition(), &memPort{})
	_, err := m.SubmitResults(context.Background(), "ghost", "define", "s")
	assert.ErrorIs(t, err, ErrFeatureNotFound)
}

func TestSubmitResultsPersistenceFailureKeepsPriorState(t *testing.T) {
	port := &memPort{}
	m := newTestMachine(t, testDefinition(), port)

	f, err := m.StartFeature(context.Background(), "add caching")
	require.NoError(t, err)

	port.failSave = true
	_, err = m.SubmitResults(context.Background(), f.ID, "define", "s")
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)

	reloaded, err := m.LoadState(f.ID)
	require.NoError(t, err)
	assert.Equal(t, "define", reloaded.CurrentPhase, "failed write must not advance in-memory state")
}

func TestAbandonFeature(t *testing.T) {
	m := newTestMachine(t, testDefinition(), &memPort{})
	f, err := m.StartFeature(context.Background(), "dead end")
	require.NoError(t, err)

	abandoned, err := m.Abandon(context.Background(), f.ID, "superseded")
	require.NoError(t, err)
	assert.Equal(t, StatusAbandoned, abandoned.Status)

	_, err = m.Abandon(context.Background(), f.ID, "again")
	assert.Error(t, err)

	// Abandoned features stay listed.
	assert.Len(t, m.List(), 1)
}

func TestLoadStateReturnsCopy(t *testing.T) {
	m := newTestMachine(t, testDefinition(), &memPort{})
	f, err := m.StartFeature(context.Background(), "mutation probe")
	require.NoError(t, err)

	f.CurrentPhase = "hacked"
	f.History[0].Phase = "hacked"

	reloaded, err := m.LoadState(f.ID)
	require.NoError(t, err)
	assert.Equal(t, "define", reloaded.CurrentPhase)
	assert.Equal(t, "define", reloaded.History[0].Phase)
}

func TestStatePersistsAcrossMachines(t *testing.T) {
	port := &memPort{}
	m1 := newTestMachine(t, testDefinition(), port)

	f, err := m1.StartFeature(context.Background(), "survive restart")
	require.NoError(t, err)
	_, err = m1.SubmitResults(context.Background(), f.ID, "define", "done")
	require.NoError(t, err)

	m2 := newTestMachine(t, testDefinition(), port)
	reloaded, err := m2.LoadState(f.ID)
	require.NoError(t, err)
	assert.Equal(t, "decompose", reloaded.CurrentPhase)
	assert.Len(t, reloaded.History, 2)
}

func TestPersistedDocumentShape(t *testing.T) {
	port := &memPort{}
	m := newTestMachine(t, testDefinition(), port)

	_, err := m.StartFeature(context.Background(), "shape check")
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(port.data, &doc))
	assert.Contains(t, doc, "schema_version")
	assert.Contains(t, doc, "features")

	var version int
	require.NoError(t, json.Unmarshal(doc["schema_version"], &version))
	assert.Equal(t, 2, version)
}
