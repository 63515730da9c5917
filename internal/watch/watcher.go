// Package watch reruns the finalize pass when target sources change. Target
// sources are read straight from disk and are not part of the bundle's module
// graph, so the bundler's own watcher never reports them.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/htmlmila/internal/options"
)

// DefaultDebounce is how long the watcher waits for further events before it
// calls the change handler.
const DefaultDebounce = 100 * time.Millisecond

var ErrAlreadyRunning = errors.New("watcher already running")

// ChangeFunc receives the sorted paths that changed since the last call.
type ChangeFunc func(changed []string)

// Watcher monitors individual files through their parent directories.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	onChange  ChangeFunc
	debounce  time.Duration
	logger    zerolog.Logger

	mu      sync.Mutex
	files   map[string]struct{}
	dirs    map[string]struct{}
	running bool
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// New creates a watcher calling onChange after changes settle.
func New(onChange ChangeFunc, opts ...Option) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		onChange:  onChange,
		debounce:  DefaultDebounce,
		logger:    log.Logger,
		files:     map[string]struct{}{},
		dirs:      map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Sources returns the absolute paths of the string sources declared in cfg,
// without duplicates and in declaration order.
func Sources(cfg options.Config) []string {
	var sources []string
	for _, t := range cfg.Targets {
		src, ok := t.Source()
		if !ok || src == "" {
			continue
		}
		abs, err := filepath.Abs(src)
		if err != nil {
			continue
		}
		if !slices.Contains(sources, abs) {
			sources = append(sources, abs)
		}
	}
	return sources
}

// AddFile watches path. Its directory is watched so files replaced by editors
// that save through a rename are still seen.
func (w *Watcher) AddFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.dirs[dir]; !ok {
		if err := w.fsWatcher.Add(dir); err != nil {
			return fmt.Errorf("failed to add directory %s to watcher: %w", dir, err)
		}
		w.dirs[dir] = struct{}{}
		w.logger.Debug().Str("directory", dir).Msg("Watching directory")
	}
	w.files[abs] = struct{}{}

	return nil
}

// Files returns the watched files, sorted.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	files := make([]string, 0, len(w.files))
	for f := range w.files {
		files = append(files, f)
	}
	slices.Sort(files)
	return files
}

func (w *Watcher) watched(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, ok := w.files[filepath.Clean(path)]
	return ok
}

// Run processes events until ctx is done, then releases the underlying
// watcher. A Watcher can only be run once.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		if err := w.fsWatcher.Close(); err != nil {
			w.logger.Error().Err(err).Msg("Error closing fsnotify watcher")
		}
	}()

	pending := map[string]struct{}{}
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if !w.watched(event.Name) {
				continue
			}

			pending[filepath.Clean(event.Name)] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			slices.Sort(changed)
			clear(pending)

			w.logger.Debug().Strs("files", changed).Msg("Sources changed")
			w.onChange(changed)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("fsnotify watcher error")

		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		}
	}
}
