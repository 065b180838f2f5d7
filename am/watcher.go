package am

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/ablation/errors"
	"github.com/teranos/ablation/logger"
)

// DefaultDebounce collapses the burst of events editors emit on save
const DefaultDebounce = 500 * time.Millisecond

// ReloadCallback receives the reloaded config, or the error loading it
type ReloadCallback func(*Config, error)

// ConfigWatcher watches a config file and reloads it on change
type ConfigWatcher struct {
	configPath     string
	watcher        *fsnotify.Watcher
	callbacks      []ReloadCallback
	mu             sync.Mutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	logger         *zap.SugaredLogger
}

// NewConfigWatcher creates a watcher for configPath. The parent directory is
// watched so that editors replacing the file by rename are still seen.
func NewConfigWatcher(configPath string, log *zap.SugaredLogger) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}

	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "failed to watch config file %s", configPath)
	}

	return &ConfigWatcher{
		configPath:     filepath.Clean(configPath),
		watcher:        watcher,
		debouncePeriod: DefaultDebounce,
		logger:         logger.OrNop(log),
	}, nil
}

// OnReload registers a callback to be called when config is reloaded
func (cw *ConfigWatcher) OnReload(callback ReloadCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// Run delivers reloads until ctx is done, then closes the watcher.
func (cw *ConfigWatcher) Run(ctx context.Context) error {
	defer cw.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			cw.mu.Lock()
			if cw.debounceTimer != nil {
				cw.debounceTimer.Stop()
			}
			cw.mu.Unlock()
			return nil

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != cw.configPath || isBackupFile(event.Name) {
				continue
			}
			// Only reload on Write or Create events
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cw.logger.Infow("Config watcher detected change",
				logger.FieldPath, event.Name,
				"op", event.Op.String())
			cw.scheduleReload()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return nil
			}
			cw.logger.Warnw("Config watcher error", logger.FieldError, err)
		}
	}
}

// scheduleReload debounces rapid file changes and triggers reload
func (cw *ConfigWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	cw.debounceTimer = time.AfterFunc(cw.debouncePeriod, cw.reload)
}

// reload loads and validates the file and calls all callbacks
func (cw *ConfigWatcher) reload() {
	cfg, err := LoadFromFile(cw.configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		cw.logger.Warnw("Config reload failed", logger.FieldPath, cw.configPath, logger.FieldError, err)
	} else {
		cw.logger.Infow("Config reloaded successfully", logger.FieldPath, cw.configPath)
	}

	cw.mu.Lock()
	callbacks := make([]ReloadCallback, len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.Unlock()

	for _, callback := range callbacks {
		callback(cfg, err)
	}
}

// isBackupFile checks if the file is a backup file (.back1, .back2, .back3)
func isBackupFile(path string) bool {
	ext := filepath.Ext(path)
	return strings.HasPrefix(ext, ".back")
}
