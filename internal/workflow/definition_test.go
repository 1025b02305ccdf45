package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		wantErr string
	}{
		{
			name: "default is valid",
			def:  DefaultDefinition(),
		},
		{
			name:    "empty phases",
			def:     Definition{},
			wantErr: "at least one phase",
		},
		{
			name:    "empty phase name",
			def:     Definition{Phases: []string{"define", ""}},
			wantErr: "must not be empty",
		},
		{
			name:    "duplicate phase",
			def:     Definition{Phases: []string{"define", "define"}},
			wantErr: "duplicate phase",
		},
		{
			name: "skippable references unknown phase",
			def: Definition{
				Phases:    []string{"define"},
				Skippable: map[string]bool{"deploy": true},
			},
			wantErr: "unknown phase",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefinitionOrdering(t *testing.T) {
	def := DefaultDefinition()

	assert.Equal(t, "define", def.First())
	assert.True(t, def.Last("review"))
	assert.False(t, def.Last("test"))

	next, ok := def.Next("define")
	require.True(t, ok)
	assert.Equal(t, "decompose", next)

	_, ok = def.Next("review")
	assert.False(t, ok)

	_, ok = def.Next("deploy")
	assert.False(t, ok)

	assert.True(t, def.Contains("implement"))
	assert.False(t, def.Contains("deploy"))
}
