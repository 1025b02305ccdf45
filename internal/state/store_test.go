package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{Path: filepath.Join(t.TempDir(), "state.json")})
	require.NoError(t, err)
	return s
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestLoadMissingFileReturnsNil(t *testing.T) {
	s := newTestStore(t)
	data, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save([]byte(`{"hello":"world"}`)))

	data, err := s.Load()
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"world"}`, string(data))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFirstSaveCreatesNoBackup(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save([]byte(`{}`)))

	backups, err := s.Backups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestOverwriteBacksUpPriorState(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save([]byte(`{"v":1}`)))
	require.NoError(t, s.Save([]byte(`{"v":2}`)))

	backups, err := s.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 1)

	prior, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(prior), "the backup holds the pre-overwrite state")

	current, err := s.Load()
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(current))
}

func TestBackupRotation(t *testing.T) {
	s, err := New(Config{
		Path:       filepath.Join(t.TempDir(), "state.json"),
		MaxBackups: 3,
	})
	require.NoError(t, err)

	// Distinct timestamps per backup name.
	tick := time.Now().UTC()
	s.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	for i := 0; i < 6; i++ {
		require.NoError(t, s.Save([]byte(`{}`)))
	}

	backups, err := s.Backups()
	require.NoError(t, err)
	assert.Len(t, backups, 3, "rotation keeps only the newest MaxBackups")
}

func TestBackupsNewestFirst(t *testing.T) {
	s := newTestStore(t)

	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}

	require.NoError(t, s.Save([]byte(`{"v":1}`)))
	require.NoError(t, s.Save([]byte(`{"v":2}`)))
	require.NoError(t, s.Save([]byte(`{"v":3}`)))

	backups, err := s.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 2)

	newest, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(newest))
}
