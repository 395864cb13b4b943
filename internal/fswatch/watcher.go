// Package fswatch turns file-system activity in the project into debounced
// nudges for the fast-path analyzer.
package fswatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the tree must be quiet before a nudge
const DefaultDebounce = 500 * time.Millisecond

// IgnoredDirs are never watched and their events never nudge
var IgnoredDirs = []string{".git", "node_modules", "venv", ".venv", ".vibe-assist"}

// Stats tracks watcher activity
type Stats struct {
	Events    int
	Nudges    int
	Errors    int
	Dirs      int
	LastEvent string
}

// Watcher watches a project tree recursively
type Watcher struct {
	root     string
	debounce time.Duration
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	nudges   chan struct{}

	mu      sync.Mutex
	pending time.Time // last relevant event not yet nudged
	stats   Stats
}

// New creates a watcher for root and registers every non-ignored directory
func New(root string, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if root == "" {
		return nil, fmt.Errorf("root is required")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		root:     root,
		debounce: debounce,
		logger:   logger,
		watcher:  fw,
		nudges:   make(chan struct{}, 1),
	}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Nudges delivers at most one pending signal per quiet period. A nudge
// that is not consumed before the next one is coalesced with it.
func (w *Watcher) Nudges() <-chan struct{} {
	return w.nudges
}

// Stats returns a copy of the activity counters
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Run processes events until ctx is done, then closes the underlying watcher
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	tick := time.NewTicker(w.debounce / 5)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
			w.logger.Warn("file watcher error", zap.Error(err))

		case now := <-tick.C:
			w.flush(now)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod || w.ignored(event.Name) {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Debug("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
			}
		}
	}

	w.mu.Lock()
	w.pending = time.Now()
	w.stats.Events++
	w.stats.LastEvent = event.Name
	w.mu.Unlock()
}

// flush emits a nudge once the last event is older than the debounce window
func (w *Watcher) flush(now time.Time) {
	w.mu.Lock()
	if w.pending.IsZero() || now.Sub(w.pending) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.pending = time.Time{}
	w.stats.Nudges++
	w.mu.Unlock()

	select {
	case w.nudges <- struct{}{}:
	default:
	}
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && slices.Contains(IgnoredDirs, d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		w.mu.Lock()
		w.stats.Dirs++
		w.mu.Unlock()
		return nil
	})
}

// ignored reports whether path lies inside an ignored directory of the tree
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if slices.Contains(IgnoredDirs, part) {
			return true
		}
	}
	return false
}
