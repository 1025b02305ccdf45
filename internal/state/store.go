// Package state persists workflow state as a JSON document on the
// filesystem, with timestamped backups and rotation.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config configures a filesystem store.
type Config struct {
	// Path is the location of the state file.
	Path string

	// MaxBackups bounds how many timestamped backups are kept
	// (default: 10).
	MaxBackups int

	// Logger for store operations (default: no-op).
	Logger *zap.Logger
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		MaxBackups: 10,
	}
}

func (c *Config) applyDefaults() {
	if c.MaxBackups <= 0 {
		c.MaxBackups = 10
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Store reads and writes the state document. Every successful write of an
// existing file is preceded by a timestamped backup; old backups are
// rotated out beyond MaxBackups.
type Store struct {
	mu        sync.Mutex
	path      string
	backupDir string
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a store and ensures the state directory exists.
func New(cfg Config) (*Store, error) {
	cfg.applyDefaults()
	if cfg.Path == "" {
		return nil, fmt.Errorf("state: path is required")
	}
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("state: create directory %s: %w", dir, err)
	}
	return &Store{
		path:      cfg.Path,
		backupDir: filepath.Join(dir, "backups"),
		cfg:       cfg,
		logger:    cfg.Logger,
		now:       time.Now,
	}, nil
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the raw state document, or (nil, nil) when no state file
// exists yet.
func (s *Store) Load() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: read %s: %w", s.path, err)
	}
	return data, nil
}

// Save backs up the existing state file, then replaces it atomically.
func (s *Store) Save(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		if err := s.backup(); err != nil {
			return err
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("state: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("state: replace %s: %w", s.path, err)
	}
	return nil
}

// Backups lists backup files, newest first.
func (s *Store) Backups() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listBackups()
}

// backup copies the current state file into the backup directory under a
// timestamped name, then rotates old backups. Callers hold s.mu.
func (s *Store) backup() error {
	if err := os.MkdirAll(s.backupDir, 0o700); err != nil {
		return fmt.Errorf("state: create backup directory: %w", err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("state: read for backup: %w", err)
	}

	stamp := s.now().UTC().Format("20060102T150405.000000000")
	dst := filepath.Join(s.backupDir, fmt.Sprintf("state_%s.json", stamp))
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return fmt.Errorf("state: write backup %s: %w", dst, err)
	}

	s.rotate()
	return nil
}

// rotate removes backups beyond MaxBackups, oldest first. Rotation
// failures are logged, never fatal.
func (s *Store) rotate() {
	backups, err := s.listBackups()
	if err != nil {
		s.logger.Warn("failed to list backups for rotation", zap.Error(err))
		return
	}
	for _, stale := range backups[min(len(backups), s.cfg.MaxBackups):] {
		if err := os.Remove(stale); err != nil {
			s.logger.Warn("failed to remove old backup",
				zap.String("path", stale),
				zap.Error(err))
		}
	}
}

func (s *Store) listBackups() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.backupDir, "state_*.json"))
	if err != nil {
		return nil, fmt.Errorf("state: list backups: %w", err)
	}
	// Timestamped names sort chronologically; reverse for newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}
