package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/broker-authz/go-core/pkg/types"
)

// ApplyFunc receives the full set of bootstrap bindings after each reload.
// Applying through an idempotent add keeps reloads safe to repeat.
type ApplyFunc func(ctx context.Context, bindings []types.AclBinding) error

// BootstrapWatcher reloads the bootstrap binding directory on change
type BootstrapWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	loader  *BootstrapLoader
	apply   ApplyFunc
	logger  *zap.Logger

	debounceTimeout time.Duration
	debounceTimer   *time.Timer
	mu              sync.Mutex

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewBootstrapWatcher creates a watcher over the binding directory
func NewBootstrapWatcher(path string, loader *BootstrapLoader, apply ApplyFunc, logger *zap.Logger) (*BootstrapWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &BootstrapWatcher{
		watcher:         watcher,
		path:            path,
		loader:          loader,
		apply:           apply,
		logger:          logger,
		debounceTimeout: 500 * time.Millisecond,
		stopChan:        make(chan struct{}),
	}, nil
}

// Watch starts watching the binding directory
func (w *BootstrapWatcher) Watch(ctx context.Context) error {
	if err := w.watcher.Add(w.path); err != nil {
		return fmt.Errorf("failed to watch binding directory: %w", err)
	}

	w.logger.Info("Watching bootstrap binding directory",
		zap.String("path", w.path),
		zap.Duration("debounce", w.debounceTimeout),
	)

	go w.watchLoop(ctx)
	return nil
}

// Stop shuts down the watcher
func (w *BootstrapWatcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stopChan) })
	return w.watcher.Close()
}

func (w *BootstrapWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.shouldProcessEvent(event) {
				w.handleEvent(ctx, event)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Binding watcher error", zap.Error(err))
		}
	}
}

func (w *BootstrapWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	ext := filepath.Ext(event.Name)
	return ext == ".yaml" || ext == ".yml"
}

// handleEvent debounces bursts of file events into one reload
func (w *BootstrapWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.logger.Debug("Binding file change detected",
		zap.String("file", event.Name),
		zap.String("op", event.Op.String()),
	)

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceTimeout, func() {
		w.reload(ctx)
	})
}

func (w *BootstrapWatcher) reload(ctx context.Context) {
	bindings, err := w.loader.LoadDirectory(w.path)
	if err != nil {
		w.logger.Error("Failed to reload bootstrap bindings",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}

	if err := w.apply(ctx, bindings); err != nil {
		w.logger.Error("Failed to apply bootstrap bindings", zap.Error(err))
		return
	}

	w.logger.Info("Bootstrap bindings reloaded",
		zap.String("path", w.path),
		zap.Int("bindings", len(bindings)),
	)
}
