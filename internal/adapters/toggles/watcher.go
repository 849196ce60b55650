package toggles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 100 * time.Millisecond

// Reloader is implemented by sources that can re-read their definitions.
type Reloader interface {
	Reload() error
}

// Watcher reloads a toggle file when it changes on disk. It watches the
// parent directory so editors and ConfigMap updates that replace the file
// (rename/symlink swap) are seen too. Bursts of events are debounced into a
// single reload.
type Watcher struct {
	path     string
	target   Reloader
	debounce time.Duration
	logger   *slog.Logger
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Path is the toggle file to watch.
	Path string

	// Target is reloaded after changes settle.
	Target Reloader

	// Debounce is the quiet period before reloading. Defaults to 100ms.
	Debounce time.Duration

	Logger *slog.Logger
}

// NewWatcher creates a Watcher. It does not start watching until Run.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, errors.New("watch path is required")
	}

	if cfg.Target == nil {
		return nil, errors.New("reload target is required")
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		path:     filepath.Clean(cfg.Path),
		target:   cfg.Target,
		debounce: cfg.Debounce,
		logger:   logger.With(slog.String("component", "toggles.Watcher")),
	}, nil
}

// Run watches until ctx is canceled. It blocks.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %q: %w", dir, err)
	}

	debouncer := newDebouncer(w.debounce)
	defer debouncer.Stop()

	w.logger.InfoContext(ctx, "toggle file watcher started",
		slog.String("path", w.path),
		slog.Int64("debounce_ms", w.debounce.Milliseconds()),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "toggle file watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}

			if !w.relevant(event) {
				continue
			}

			w.logger.DebugContext(ctx, "toggle file event",
				slog.String("path", event.Name),
				slog.String("op", event.Op.String()),
			)

			debouncer.Trigger(func() {
				if err := w.target.Reload(); err != nil {
					w.logger.ErrorContext(ctx, "toggle reload failed", slog.Any("error", err))
				}
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}

			w.logger.ErrorContext(ctx, "toggle file watcher error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}

	// Kubernetes ConfigMaps swap a "..data" symlink; treat any change to it
	// as a change to the file.
	name := filepath.Clean(event.Name)
	return name == w.path || filepath.Base(name) == "..data"
}

// debouncer collects rapid events and runs the last callback once the
// interval passes without new events.
type debouncer struct {
	interval time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

// Trigger schedules fn, replacing any pending callback.
func (d *debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		stopped := d.stopped
		d.mu.Unlock()

		if !stopped {
			fn()
		}
	})
}

// Stop cancels any pending callback.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
