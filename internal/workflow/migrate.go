package workflow

import (
	"encoding/json"
	"fmt"
	"time"
)

// schemaVersion is the current persisted-state schema. Version 1 records
// (the flat layout with "description"/"phase"/"state" fields) are
// migrated on load and re-persisted once at the current version.
const schemaVersion = 2

// document is the persisted state: one record per feature id under a
// versioned envelope.
type document struct {
	SchemaVersion int                 `json:"schema_version"`
	Features      map[string]*Feature `json:"features"`
}

func newDocument() *document {
	return &document{
		SchemaVersion: schemaVersion,
		Features:      make(map[string]*Feature),
	}
}

// legacyFeatureV1 is the version-1 record shape.
type legacyFeatureV1 struct {
	ID          string               `json:"id"`
	Description string               `json:"description"`
	Phase       string               `json:"phase"`
	State       string               `json:"state"`
	History     []legacyTransitionV1 `json:"phase_history,omitempty"`
	CreatedAt   string               `json:"created_at,omitempty"`
	UpdatedAt   string               `json:"updated_at,omitempty"`
}

type legacyTransitionV1 struct {
	Phase     string `json:"phase"`
	Timestamp string `json:"timestamp,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

type legacyDocumentV1 struct {
	SchemaVersion int                         `json:"schema_version"`
	Features      map[string]*legacyFeatureV1 `json:"features"`
}

// decodeDocument parses raw state bytes. migrated is true when the bytes
// were in an older schema and the caller must re-persist once.
func decodeDocument(data []byte, def Definition) (doc *document, migrated bool, err error) {
	if len(data) == 0 {
		return newDocument(), false, nil
	}

	var probe struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, false, &ValidationError{Field: "state", Reason: fmt.Sprintf("malformed document: %v", err)}
	}

	switch {
	case probe.SchemaVersion == schemaVersion:
		doc, err := decodeCurrent(data, def)
		return doc, false, err
	case probe.SchemaVersion <= 1:
		// Version 0 means the field predates versioning; same shape as v1.
		doc, err := migrateV1(data, def)
		return doc, true, err
	default:
		return nil, false, &ValidationError{
			Field:  "state",
			Reason: fmt.Sprintf("schema version %d is newer than supported version %d", probe.SchemaVersion, schemaVersion),
		}
	}
}

func decodeCurrent(data []byte, def Definition) (*document, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ValidationError{Field: "state", Reason: fmt.Sprintf("malformed document: %v", err)}
	}
	if doc.Features == nil {
		doc.Features = make(map[string]*Feature)
	}
	for id, f := range doc.Features {
		if f.ID == "" {
			f.ID = id
		}
		if !def.Contains(f.CurrentPhase) {
			return nil, &ValidationError{
				Field:  "current_phase",
				Reason: fmt.Sprintf("feature %s has unknown phase %q", id, f.CurrentPhase),
			}
		}
		if !f.Status.Valid() {
			return nil, &ValidationError{
				Field:  "status",
				Reason: fmt.Sprintf("feature %s has unknown status %q", id, f.Status),
			}
		}
	}
	return &doc, nil
}

// migrateV1 maps the legacy layout onto the current shape. Unlike the
// current-version path this one coerces: unknown phases fall back to the
// first declared phase and unknown states to active.
func migrateV1(data []byte, def Definition) (*document, error) {
	var legacy legacyDocumentV1
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, &ValidationError{Field: "state", Reason: fmt.Sprintf("malformed v1 document: %v", err)}
	}

	doc := newDocument()
	for id, lf := range legacy.Features {
		f := &Feature{
			ID:           id,
			Prompt:       lf.Description,
			CurrentPhase: lf.Phase,
			Status:       migrateStateV1(lf.State),
			CreatedAt:    parseLegacyTime(lf.CreatedAt),
			UpdatedAt:    parseLegacyTime(lf.UpdatedAt),
		}
		if lf.ID != "" {
			f.ID = lf.ID
		}
		if !def.Contains(f.CurrentPhase) {
			f.CurrentPhase = def.First()
		}
		for _, lt := range lf.History {
			ts := parseLegacyTime(lt.Timestamp)
			f.History = append(f.History, PhaseTransition{
				Phase:          lt.Phase,
				EnteredAt:      ts,
				CompletedAt:    &ts,
				ResultsSummary: lt.Summary,
			})
		}
		doc.Features[f.ID] = f
	}
	return doc, nil
}

func migrateStateV1(state string) Status {
	switch state {
	case "in_progress", "active":
		return StatusActive
	case "paused", "blocked":
		return StatusBlocked
	case "done", "completed":
		return StatusCompleted
	case "failed", "abandoned":
		return StatusAbandoned
	default:
		return StatusActive
	}
}

func parseLegacyTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
