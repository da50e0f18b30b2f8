package reload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/timzifer/motorhome/config"
)

const (
	// DefaultDebounce groups the burst of events editors produce on save.
	DefaultDebounce = 200 * time.Millisecond
	// DefaultMaxWait bounds how long a continuous burst can postpone a check.
	DefaultMaxWait = time.Second
)

type fileState struct {
	modTime time.Time
	size    int64
}

// Watcher keeps track of definition source files and template overrides
// and detects modifications.
type Watcher struct {
	mu       sync.Mutex
	files    map[string]fileState
	logger   zerolog.Logger
	debounce time.Duration
	maxWait  time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithMaxWait overrides DefaultMaxWait.
func WithMaxWait(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.maxWait = d
		}
	}
}

// NewWatcher builds a watcher tracking the files that contributed to cfg,
// the root definition and any extra files such as template overrides.
func NewWatcher(root string, cfg *config.Config, extra []string, opts ...Option) (*Watcher, error) {
	watcher := &Watcher{logger: zerolog.Nop(), debounce: DefaultDebounce, maxWait: DefaultMaxWait}
	for _, opt := range opts {
		opt(watcher)
	}
	if err := watcher.Update(root, cfg, extra...); err != nil {
		return nil, err
	}
	return watcher, nil
}

// Update rebuilds the tracked file list after a reload.
func (w *Watcher) Update(root string, cfg *config.Config, extra ...string) error {
	if w == nil {
		return nil
	}
	paths := config.SourceFiles(cfg)
	paths = append(paths, extra...)
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", root, err)
		}
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			paths = append(paths, abs)
		}
	}
	states := make(map[string]fileState, len(paths))
	for _, path := range uniquePaths(paths) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		states[path] = fileState{modTime: info.ModTime(), size: info.Size()}
	}
	w.mu.Lock()
	w.files = states
	w.mu.Unlock()
	return nil
}

// Files returns the tracked paths in sorted order.
func (w *Watcher) Files() []string {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	paths := make([]string, 0, len(w.files))
	for path := range w.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Check reports the files that changed since the last snapshot and takes
// a new snapshot of them.
func (w *Watcher) Check() ([]string, error) {
	if w == nil {
		return nil, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := make([]string, 0)
	for path, state := range w.files {
		info, err := os.Stat(path)
		if err != nil {
			changed = append(changed, path)
			continue
		}
		if info.IsDir() {
			continue
		}
		if info.ModTime().After(state.modTime) || info.Size() != state.size {
			changed = append(changed, path)
			w.files[path] = fileState{modTime: info.ModTime(), size: info.Size()}
		}
	}
	sort.Strings(changed)
	return changed, nil
}

// Run watches the directories of the tracked files and calls onChange with
// the changed files after each debounced burst of events. A burst never
// delays the check by more than the max wait. It blocks until
// ctx is cancelled. onChange may call Update to track a new file set; the
// directories being watched are refreshed afterwards.
func (w *Watcher) Run(ctx context.Context, onChange func([]string)) error {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fs.Close()

	watched := make(map[string]struct{})
	watchDirs := func() {
		for _, dir := range w.dirs() {
			if _, ok := watched[dir]; ok {
				continue
			}
			if err := fs.Add(dir); err != nil {
				w.logger.Warn().Err(err).Str("dir", dir).Msg("watch directory")
				continue
			}
			watched[dir] = struct{}{}
		}
	}
	watchDirs()

	debounce, maxWait := w.debounce, w.maxWait
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if maxWait < debounce {
		maxWait = debounce
	}

	var (
		timer    *time.Timer
		fire     <-chan time.Time
		deadline time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-fs.Events:
			if !ok {
				return nil
			}
			if !w.tracks(event.Name) {
				continue
			}
			w.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("definition event")
			now := time.Now()
			if fire == nil {
				deadline = now.Add(maxWait)
			}
			wait := debounce
			if remaining := deadline.Sub(now); remaining < wait {
				wait = remaining
			}
			if timer == nil {
				timer = time.NewTimer(wait)
			} else {
				timer.Reset(wait)
			}
			fire = timer.C
		case err, ok := <-fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("file watcher")
		case <-fire:
			fire = nil
			changed, err := w.Check()
			if err != nil {
				return err
			}
			if len(changed) == 0 {
				continue
			}
			onChange(changed)
			watchDirs()
		}
	}
}

func (w *Watcher) tracks(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.files[abs]
	return ok
}

func (w *Watcher) dirs() []string {
	seen := make(map[string]struct{})
	for _, path := range w.Files() {
		seen[filepath.Dir(path)] = struct{}{}
	}
	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

func uniquePaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	result := make([]string, 0, len(paths))
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		result = append(result, path)
	}
	return result
}
