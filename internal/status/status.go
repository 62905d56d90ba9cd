// Package status holds the published overall status and notifies listeners
// whenever it changes.
package status

import (
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skaphos/repomonitor/internal/model"
)

// Listener receives every published snapshot. A listener may call Publish
// or Subscribe on the board notifying it; those notifications are queued
// and delivered after the current one.
type Listener interface {
	StatusChanged(model.Snapshot) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(model.Snapshot) error

func (f ListenerFunc) StatusChanged(s model.Snapshot) error { return f(s) }

// Board owns the current snapshot and the listener registry. The monitor is
// its only writer; any number of goroutines may read it.
type Board struct {
	mu        sync.RWMutex
	current   model.Snapshot
	listeners map[int]Listener
	nextID    int

	// queue holds notifications in publish order. Only the call that set
	// delivering drains it, and it runs listeners without holding mu.
	queue      []delivery
	delivering bool

	log logrus.FieldLogger
	now func() time.Time
}

type delivery struct {
	id   int
	l    Listener
	snap model.Snapshot
}

// NewBoard creates a board whose initial status is error: nothing has been
// checked yet.
func NewBoard(log logrus.FieldLogger) *Board {
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	b := &Board{
		listeners: map[int]Listener{},
		log:       log,
		now:       time.Now,
	}
	b.current = model.Snapshot{Status: model.StatusError, UpdatedAt: b.now()}
	return b
}

// Current returns a copy of the latest snapshot.
func (b *Board) Current() model.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneSnapshot(b.current)
}

// Subscribe registers l and notifies it with the current snapshot. The
// returned function unregisters l; queued notifications for it are dropped.
func (b *Board) Subscribe(l Listener) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	b.queue = append(b.queue, delivery{id: id, l: l, snap: cloneSnapshot(b.current)})
	b.mu.Unlock()
	b.deliver()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Publish replaces the current snapshot and notifies every listener in
// subscription order. A zero UpdatedAt is set to now. When another call is
// already delivering, Publish returns once its notifications are queued.
func (b *Board) Publish(s model.Snapshot) {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = b.now()
	}
	b.mu.Lock()
	b.current = cloneSnapshot(s)
	ids := make([]int, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		b.queue = append(b.queue, delivery{id: id, l: b.listeners[id], snap: cloneSnapshot(s)})
	}
	b.mu.Unlock()
	b.deliver()
}

func (b *Board) deliver() {
	b.mu.Lock()
	if b.delivering {
		b.mu.Unlock()
		return
	}
	b.delivering = true
	for len(b.queue) > 0 {
		d := b.queue[0]
		b.queue[0] = delivery{}
		b.queue = b.queue[1:]
		if _, ok := b.listeners[d.id]; !ok {
			continue
		}
		b.mu.Unlock()
		b.call(d.id, d.l, d.snap)
		b.mu.Lock()
	}
	b.queue = nil
	b.delivering = false
	b.mu.Unlock()
}

// SetBusy publishes the busy status, keeping the previous counts and
// per-repository results.
func (b *Board) SetBusy() {
	prev := b.Current()
	prev.Status = model.StatusBusy
	prev.UpdatedAt = time.Time{}
	b.Publish(prev)
}

func (b *Board) call(id int, l Listener, s model.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithFields(logrus.Fields{
				"listener": id,
				"status":   s.Status,
			}).Errorf("status listener panicked: %v", r)
		}
	}()
	if err := l.StatusChanged(s); err != nil {
		b.log.WithFields(logrus.Fields{
			"listener": id,
			"status":   s.Status,
		}).WithError(err).Error("status listener failed")
	}
}

func cloneSnapshot(s model.Snapshot) model.Snapshot {
	if s.Repos != nil {
		repos := make([]model.RepoResult, len(s.Repos))
		copy(repos, s.Repos)
		s.Repos = repos
	}
	return s
}

// Summary returns the one-line description of a snapshot.
func Summary(s model.Snapshot) string {
	switch s.Status {
	case model.StatusSynced:
		return "Repository: Synchronized"
	case model.StatusAhead:
		return fmt.Sprintf("Repository: %d Ahead", s.Ahead)
	case model.StatusBehind:
		return fmt.Sprintf("Repository: %d Behind", s.Behind)
	case model.StatusDiverged:
		return fmt.Sprintf("Repository: %d Ahead, %d Behind", s.Ahead, s.Behind)
	case model.StatusBusy:
		return "Repository: Refreshing"
	default:
		return "Repository Error: See Log for Information"
	}
}
