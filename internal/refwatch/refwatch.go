// Package refwatch requests a refresh when a watched repository's local
// branches move.
package refwatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/skaphos/repomonitor/internal/model"
)

// DefaultDebounce collapses a burst of ref updates into one refresh.
const DefaultDebounce = 2 * time.Second

// Refresher is woken after ref changes settle.
type Refresher interface {
	Refresh() bool
}

// Watcher follows the reflogs of local branches and HEAD. Remote-tracking
// reflogs are not watched: they move on every fetch, including the
// monitor's own.
type Watcher struct {
	watcher   *fsnotify.Watcher
	refresher Refresher
	debounce  time.Duration
	log       logrus.FieldLogger

	mu    sync.Mutex
	roots map[string]string // watched logs dir -> repo id
}

// New creates a Watcher for repos. debounce <= 0 selects DefaultDebounce.
func New(repos []model.Repository, refresher Refresher, debounce time.Duration, log logrus.FieldLogger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		watcher:   fw,
		refresher: refresher,
		debounce:  debounce,
		log:       log,
		roots:     map[string]string{},
	}
	for _, repo := range repos {
		if err := w.Add(repo); err != nil {
			log.WithField("repo", repo.ID).WithError(err).Warn("not watching repository refs")
		}
	}
	return w, nil
}

// Add starts watching repo's HEAD and local branch reflogs.
func (w *Watcher) Add(repo model.Repository) error {
	logsDir := filepath.Join(repo.ID, "logs")
	w.mu.Lock()
	_, seen := w.roots[logsDir]
	w.mu.Unlock()
	if seen {
		return nil
	}
	if err := w.watcher.Add(logsDir); err != nil {
		return err
	}
	// Lets a first branch created later be picked up.
	_ = w.watcher.Add(filepath.Join(logsDir, "refs"))
	heads := filepath.Join(logsDir, "refs", "heads")
	if err := watchDirectory(heads, w.watcher); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	w.mu.Lock()
	w.roots[logsDir] = repo.ID
	w.mu.Unlock()
	return nil
}

// WatchList returns the watched directories.
func (w *Watcher) WatchList() []string {
	return w.watcher.WatchList()
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Run delivers refreshes until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.log.WithField("path", event.Name).Debug("ref changed")
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("ref watcher error")
		case <-timer.C:
			if w.refresher.Refresh() {
				w.log.Info("refresh requested after ref change")
			} else {
				w.log.Debug("ref change ignored; monitor not running")
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	if strings.HasSuffix(event.Name, ".lock") {
		return false
	}
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// A new branch namespace (feature/...) or the first branch.
			// Remote-tracking directories are never watched.
			if w.underHeads(event.Name, true) {
				if err := watchDirectory(event.Name, w.watcher); err != nil {
					w.log.WithField("path", event.Name).WithError(err).Debug("watch new ref directory")
				}
			}
			return false
		}
	}

	w.mu.Lock()
	_, isRoot := w.roots[filepath.Dir(event.Name)]
	w.mu.Unlock()
	if isRoot {
		return filepath.Base(event.Name) == "HEAD"
	}
	return w.underHeads(event.Name, false)
}

// underHeads reports whether p lies below a watched logs/refs/heads
// directory, or is that directory itself when orSelf is set.
func (w *Watcher) underHeads(p string, orSelf bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for logsDir := range w.roots {
		heads := filepath.Join(logsDir, "refs", "heads")
		if orSelf && p == heads {
			return true
		}
		if strings.HasPrefix(p, heads+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// watchDirectory recursively adds directories to the watcher
func watchDirectory(path string, watcher *fsnotify.Watcher) error {
	if err := watcher.Add(path); err != nil {
		return err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := watchDirectory(filepath.Join(path, entry.Name()), watcher); err != nil {
			continue
		}
	}
	return nil
}
