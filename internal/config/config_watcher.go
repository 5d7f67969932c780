package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"crmdash-go/internal/constants"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch reloads the configuration whenever the file at path changes and
// hands the fresh value to onChange. A file that fails to parse is logged and
// skipped; the previous configuration stays in effect. The watcher stops when
// ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	if path == "" || onChange == nil {
		return fmt.Errorf("config watch: path and callback are required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: create watcher: %w", err)
	}
	// Watch the directory so atomic rename-based saves are seen too.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("config watch: add %s: %w", filepath.Dir(abs), err)
	}
	log.WithField("path", abs).Info("config watcher started")

	go func() {
		defer watcher.Close()

		var (
			mu            sync.Mutex
			debounceTimer *time.Timer
		)
		reload := func() {
			cfg, err := Load(abs)
			if err != nil {
				log.WithError(err).WithField("path", abs).Warn("config reload failed; keeping previous configuration")
				return
			}
			onChange(cfg)
		}

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				mu.Lock()
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(constants.ConfigReloadDebounce, reload)
				mu.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("config watcher error")

			case <-ctx.Done():
				mu.Lock()
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				mu.Unlock()
				return
			}
		}
	}()
	return nil
}
