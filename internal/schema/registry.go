package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/bustracker/internal/notifier"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before reloading.
const DefaultDebounce = 100 * time.Millisecond

// Registry caches the current Definition and refreshes it when its source
// changes. Readers always see a whole Definition: the snapshot is swapped
// atomically and never mutated in place.
type Registry struct {
	source   Source
	current  atomic.Pointer[Definition]
	loadMu   sync.Mutex
	logger   *slog.Logger
	changes  *notifier.Notifier
	debounce time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(r *Registry) {
		r.debounce = d
	}
}

// NewRegistry creates an empty registry over src. Call Load before use.
func NewRegistry(src Source, opts ...Option) *Registry {
	r := &Registry{
		source:   src,
		logger:   slog.New(slog.DiscardHandler),
		changes:  notifier.New(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load reads the definition from the source and makes it current.
// On failure the previous definition, if any, stays current.
func (r *Registry) Load(ctx context.Context) error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	def, err := r.source.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		return err
	}

	prev := r.current.Swap(def)
	if prev == nil {
		r.logger.Info("schema loaded",
			slog.String("version", def.Version.String()),
			slog.Int("columns", len(def.Columns)))
	} else {
		r.logger.Info("schema reloaded",
			slog.String("from_version", prev.Version.String()),
			slog.String("to_version", def.Version.String()),
			slog.Int("columns", len(def.Columns)))
	}

	r.changes.Broadcast()
	return nil
}

// Current returns the target version and expected column names.
func (r *Registry) Current() (Version, []string, error) {
	def := r.current.Load()
	if def == nil {
		return Version{}, nil, ErrNotLoaded
	}
	return def.Version, def.ColumnNames(), nil
}

// Snapshot returns the current definition. Callers must not modify it.
func (r *Registry) Snapshot() (*Definition, error) {
	def := r.current.Load()
	if def == nil {
		return nil, ErrNotLoaded
	}
	return def, nil
}

// Changes returns the notifier pinged after every successful load.
func (r *Registry) Changes() *notifier.Notifier {
	return r.changes
}

// Watch reloads the registry whenever the source file changes, until ctx is
// cancelled. It blocks; run it in its own goroutine. Reload failures are
// logged and never stop the watch.
func (r *Registry) Watch(ctx context.Context) error {
	fs, ok := r.source.(interface{ Path() string })
	if !ok {
		return fmt.Errorf("schema source %T cannot be watched", r.source)
	}
	path := fs.Path()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create schema watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory: editors often save by renaming a temp file over
	// the target, which drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	base := filepath.Base(path)

	reload := make(chan struct{}, 1)

	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-reload:
				if err := r.Load(ctx); err != nil {
					r.logger.Error("schema reload failed, keeping previous definition",
						slog.String("path", path),
						slog.String("error", err.Error()))
				}
			}
		}
	}()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	r.logger.Debug("watching schema", slog.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(r.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("schema watcher error", slog.String("error", err.Error()))
		}
	}
}
