package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounceWindow absorbs editor write-rename-chmod bursts into one reload.
const debounceWindow = 500 * time.Millisecond

// Watch reloads the config file on change and passes each successfully
// loaded configuration to onChange. Reload failures are logged and the
// previous configuration stays in effect.
//
// The parent directory is watched rather than the file itself, so
// atomic-rename writes keep being observed. Watch blocks until ctx is
// cancelled.
func Watch(ctx context.Context, configPath string, logger *zap.Logger, onChange func(*Config)) error {
	if configPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		configPath = p
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(configPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	var debounce *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(configPath) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", zap.Error(err))

		case <-reload:
			cfg, err := LoadWithFile(configPath)
			if err != nil {
				logger.Warn("config reload failed, keeping previous configuration",
					zap.String("path", configPath),
					zap.Error(err))
				continue
			}
			logger.Info("configuration reloaded", zap.String("path", configPath))
			onChange(cfg)
		}
	}
}
