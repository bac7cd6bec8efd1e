package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/vemodkit/internal/logging"
)

// DefaultReloadDelay is the quiet period before a changed file is reloaded.
const DefaultReloadDelay = 200 * time.Millisecond

// ReloadFunc receives the result of each reload. Exactly one of cfg and
// err is non-nil.
type ReloadFunc func(cfg *Config, err error)

// Watcher reloads a configuration file when it changes on disk.
//
// The file's directory is watched rather than the file itself so that
// editors replacing the file by rename are still seen. Bursts of events
// within the reload delay produce a single reload.
type Watcher struct {
	path    string
	environ []string
	onLoad  ReloadFunc
	delay   time.Duration
	logger  *logging.Logger

	fsw *fsnotify.Watcher

	mu     sync.Mutex
	timer  *time.Timer
	seq    uint64
	closed bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithReloadDelay sets the debounce delay.
func WithReloadDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(l *logging.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithEnviron sets the environment overlay applied on every reload.
func WithEnviron(environ []string) WatcherOption {
	return func(w *Watcher) { w.environ = environ }
}

// NewWatcher creates a watcher for the config file at path. onLoad is
// called from the watcher's goroutine after each reload.
func NewWatcher(path string, onLoad ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config path %s: %w", path, err)
	}
	w := &Watcher{
		path:   abs,
		onLoad: onLoad,
		delay:  DefaultReloadDelay,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent("config-watcher")

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	w.fsw = fsw
	return w, nil
}

// Path returns the absolute path of the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrWatcherClosed
	}

	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("%s: %s", ev.Op, ev.Name)
			w.schedule()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error: %v", err)
		}
	}
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.seq++
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fsw.Close()
}

// schedule (re)starts the debounce timer. Only the most recent timer
// reloads.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.seq++
	seq := w.seq
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, func() {
		w.mu.Lock()
		current := !w.closed && w.seq == seq
		w.mu.Unlock()
		if current {
			w.reload()
		}
	})
}

func (w *Watcher) reload() {
	if _, err := os.Stat(w.path); err != nil {
		// Removed, or mid-replace; the following Create schedules again.
		w.logger.Debug("skip reload: %v", err)
		return
	}
	cfg, err := Load(w.path, w.environ)
	if err != nil {
		w.logger.Error("reload %s: %v", w.path, err)
	} else {
		w.logger.Info("reloaded %s", w.path)
	}
	w.onLoad(cfg, err)
}
