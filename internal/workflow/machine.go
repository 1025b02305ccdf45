package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Port is the persistence dependency. Save is expected to back up the
// prior document before overwriting it. Satisfied by *state.Store.
type Port interface {
	Load() ([]byte, error)
	Save(data []byte) error
}

// Machine advances features through the workflow definition. All
// mutations are serialized under one mutex, so concurrent submissions for
// the same feature queue rather than interleave, and a failed write never
// discards the in-memory prior state.
type Machine struct {
	mu     sync.Mutex
	def    Definition
	port   Port
	logger *zap.Logger
	doc    *document
	now    func() time.Time
	newID  func() string
}

// NewMachine loads persisted state through the port, migrating older
// schema versions and re-persisting the migrated form once.
func NewMachine(def Definition, port Port, logger *zap.Logger) (*Machine, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := port.Load()
	if err != nil {
		return nil, &PersistenceError{Op: "load", Err: err}
	}
	doc, migrated, err := decodeDocument(data, def)
	if err != nil {
		return nil, err
	}

	m := &Machine{
		def:    def,
		port:   port,
		logger: logger,
		doc:    doc,
		now:    time.Now,
		newID:  uuid.NewString,
	}

	if migrated {
		if err := m.persist(doc); err != nil {
			return nil, err
		}
		logger.Info("migrated state to current schema",
			zap.Int("schema_version", schemaVersion),
			zap.Int("features", len(doc.Features)))
	}
	return m, nil
}

// Definition returns the active workflow definition.
func (m *Machine) Definition() Definition {
	return m.def
}

// StartFeature creates and persists a new feature at the initial phase.
func (m *Machine) StartFeature(ctx context.Context, prompt string) (*Feature, error) {
	if prompt == "" {
		return nil, &ValidationError{Field: "prompt", Reason: "must not be empty"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	f := &Feature{
		ID:           m.newID(),
		Prompt:       prompt,
		CurrentPhase: m.def.First(),
		Status:       StatusActive,
		History:      []PhaseTransition{{Phase: m.def.First(), EnteredAt: now}},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.commit(f); err != nil {
		return nil, err
	}

	m.logger.Info("feature started",
		zap.String("feature_id", f.ID),
		zap.String("phase", f.CurrentPhase))
	recordFeatureStarted(ctx)
	return f.clone(), nil
}

// LoadState returns the persisted feature for the given id.
func (m *Machine) LoadState(featureID string) (*Feature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.doc.Features[featureID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFeatureNotFound, featureID)
	}
	return f.clone(), nil
}

// List returns all features ordered by creation time.
func (m *Machine) List() []*Feature {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Feature, 0, len(m.doc.Features))
	for _, f := range m.doc.Features {
		out = append(out, f.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// SubmitResults records the outcome of a phase and advances the feature.
//
// The submitted phase must match the feature's current phase. When it
// does not, intervening skippable phases are skipped over to reach it;
// any other mismatch is rejected with PhaseMismatchError and the
// persisted state is left unchanged. Completing the last declared phase
// marks the feature completed.
func (m *Machine) SubmitResults(ctx context.Context, featureID, phase, summary string) (*Feature, error) {
	if !m.def.Contains(phase) {
		return nil, &ValidationError{Field: "phase", Reason: fmt.Sprintf("unknown phase %q", phase)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.doc.Features[featureID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFeatureNotFound, featureID)
	}
	if f.Status.Terminal() {
		return nil, &ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("feature %s is %s and cannot advance", featureID, f.Status),
		}
	}

	now := m.now().UTC()
	cand := f.clone()

	// Skip forward over skippable phases to reach the submitted one.
	for cand.CurrentPhase != phase && m.def.Skippable[cand.CurrentPhase] {
		closeTransition(cand, cand.CurrentPhase, now, "", true)
		next, ok := m.def.Next(cand.CurrentPhase)
		if !ok {
			break
		}
		cand.CurrentPhase = next
		cand.History = append(cand.History, PhaseTransition{Phase: next, EnteredAt: now})
	}
	if cand.CurrentPhase != phase {
		return nil, &PhaseMismatchError{FeatureID: featureID, Submitted: phase, Current: f.CurrentPhase}
	}

	closeTransition(cand, phase, now, summary, false)
	if next, ok := m.def.Next(phase); ok {
		cand.CurrentPhase = next
		cand.History = append(cand.History, PhaseTransition{Phase: next, EnteredAt: now})
	} else {
		cand.Status = StatusCompleted
	}
	cand.UpdatedAt = now

	if err := m.commit(cand); err != nil {
		return nil, err
	}

	m.logger.Info("phase results accepted",
		zap.String("feature_id", featureID),
		zap.String("phase", phase),
		zap.String("current_phase", cand.CurrentPhase),
		zap.String("status", string(cand.Status)))
	recordTransition(ctx, phase, cand.Status)
	return cand.clone(), nil
}

// Abandon marks a feature abandoned. Abandoned features are kept in
// state, never deleted.
func (m *Machine) Abandon(ctx context.Context, featureID, reason string) (*Feature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.doc.Features[featureID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFeatureNotFound, featureID)
	}
	if f.Status.Terminal() {
		return nil, &ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("feature %s is already %s", featureID, f.Status),
		}
	}

	now := m.now().UTC()
	cand := f.clone()
	closeTransition(cand, cand.CurrentPhase, now, reason, false)
	cand.Status = StatusAbandoned
	cand.UpdatedAt = now

	if err := m.commit(cand); err != nil {
		return nil, err
	}

	m.logger.Info("feature abandoned",
		zap.String("feature_id", featureID),
		zap.String("reason", reason))
	return cand.clone(), nil
}

// commit persists the document with cand swapped in, then publishes cand
// to in-memory state. On persistence failure the prior state stays
// intact. Callers hold m.mu.
func (m *Machine) commit(cand *Feature) error {
	next := &document{
		SchemaVersion: m.doc.SchemaVersion,
		Features:      make(map[string]*Feature, len(m.doc.Features)+1),
	}
	for id, f := range m.doc.Features {
		next.Features[id] = f
	}
	next.Features[cand.ID] = cand

	if err := m.persist(next); err != nil {
		return err
	}
	m.doc = next
	return nil
}

func (m *Machine) persist(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "encode", Err: err}
	}
	if err := m.port.Save(data); err != nil {
		return &PersistenceError{Op: "write", Err: err}
	}
	return nil
}

// closeTransition completes the open history entry for the given phase,
// or appends a closed one when none is open.
func closeTransition(f *Feature, phase string, now time.Time, summary string, skipped bool) {
	for i := len(f.History) - 1; i >= 0; i-- {
		if f.History[i].Phase == phase && f.History[i].CompletedAt == nil {
			f.History[i].CompletedAt = &now
			f.History[i].ResultsSummary = summary
			f.History[i].Skipped = skipped
			return
		}
	}
	f.History = append(f.History, PhaseTransition{
		Phase:          phase,
		EnteredAt:      now,
		CompletedAt:    &now,
		ResultsSummary: summary,
		Skipped:        skipped,
	})
}
