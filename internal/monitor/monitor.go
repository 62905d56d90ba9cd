// Package monitor runs probe cycles over the watched repositories and
// publishes the aggregate status on a schedule.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/skaphos/repomonitor/internal/gitx"
	"github.com/skaphos/repomonitor/internal/model"
	"github.com/skaphos/repomonitor/internal/probe"
	"github.com/skaphos/repomonitor/internal/status"
)

const (
	DefaultDelay        = time.Hour
	DefaultStartDelay   = 30 * time.Second
	DefaultProbeTimeout = 5 * time.Minute
	DefaultConcurrency  = 4
)

// RepositoryLister enumerates the repositories of interest.
type RepositoryLister interface {
	ListRepositories(ctx context.Context) ([]model.Repository, error)
}

// Prober measures one repository.
type Prober interface {
	Probe(ctx context.Context, repo model.Repository) (model.BranchState, error)
}

// Options configures a Monitor.
type Options struct {
	// Delay separates the end of one cycle from the start of the next.
	Delay time.Duration
	// StartDelay is waited before the first cycle after Start.
	StartDelay time.Duration
	// ProbeTimeout bounds each probe. Zero disables the bound.
	ProbeTimeout time.Duration
	// Concurrency caps simultaneous probes.
	Concurrency int
	// PublishBusy publishes the busy status when a cycle starts.
	PublishBusy bool
}

// DefaultOptions returns the default schedule.
func DefaultOptions() Options {
	return Options{
		Delay:        DefaultDelay,
		StartDelay:   DefaultStartDelay,
		ProbeTimeout: DefaultProbeTimeout,
		Concurrency:  DefaultConcurrency,
		PublishBusy:  true,
	}
}

// Monitor owns the probe cycle and its schedule. Cycles never overlap.
type Monitor struct {
	lister RepositoryLister
	prober Prober
	board  *status.Board
	opts   Options
	log    logrus.FieldLogger

	// cycleMu serializes RunCycle.
	cycleMu sync.Mutex
	cycles  atomic.Int64

	// ctlMu serializes Start and Stop.
	ctlMu sync.Mutex
	// mu guards the scheduling fields below.
	mu     sync.Mutex
	state  schedState
	cancel context.CancelFunc
	done   chan struct{}
	wake   chan struct{}
}

// New creates a Monitor. A nil log discards output.
func New(lister RepositoryLister, prober Prober, board *status.Board, opts Options, log logrus.FieldLogger) *Monitor {
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.StartDelay < 0 {
		opts.StartDelay = 0
	}
	if opts.ProbeTimeout < 0 {
		opts.ProbeTimeout = 0
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Monitor{
		lister: lister,
		prober: prober,
		board:  board,
		opts:   opts,
		log:    log,
		wake:   make(chan struct{}, 1),
	}
}

// Board returns the board the monitor publishes to.
func (m *Monitor) Board() *status.Board { return m.board }

// Cycles returns how many cycles have completed, cancelled ones excluded.
func (m *Monitor) Cycles() int64 { return m.cycles.Load() }

// RunCycle probes every repository once, waits for all probes, and
// publishes the aggregate. A cancelled cycle publishes no result: the board
// goes back to the snapshot it held before the cycle, and the returned error
// matches probe.ErrCancelled.
func (m *Monitor) RunCycle(ctx context.Context) (model.Snapshot, error) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	cycleID := uuid.NewString()
	log := m.log.WithField("cycle", cycleID)
	started := time.Now()

	prev := m.board.Current()
	if m.opts.PublishBusy {
		m.board.SetBusy()
	}
	abandon := func() (model.Snapshot, error) {
		if m.opts.PublishBusy {
			m.board.Publish(prev)
		}
		log.Info("cycle cancelled")
		return model.Snapshot{}, cancelled(ctx)
	}

	repos, err := m.lister.ListRepositories(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return abandon()
		}
		log.WithError(err).Error("listing repositories failed")
		snap := model.Snapshot{Status: model.StatusError, CycleID: cycleID}
		m.board.Publish(snap)
		m.cycles.Add(1)
		return m.board.Current(), fmt.Errorf("list repositories: %w", err)
	}
	repos = Dedup(repos)
	log.WithField("repos", len(repos)).Debug("cycle started")

	results := make([]model.RepoResult, len(repos))
	var g errgroup.Group
	g.SetLimit(m.opts.Concurrency)
	for i, repo := range repos {
		g.Go(func() error {
			results[i] = m.probeOne(ctx, log, repo)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return abandon()
	}

	snap := Aggregate(results)
	snap.CycleID = cycleID
	m.board.Publish(snap)
	m.cycles.Add(1)
	log.WithFields(logrus.Fields{
		"status":   snap.Status,
		"ahead":    snap.Ahead,
		"behind":   snap.Behind,
		"duration": time.Since(started).Round(time.Millisecond),
	}).Info("cycle finished")
	return m.board.Current(), nil
}

func (m *Monitor) probeOne(ctx context.Context, log logrus.FieldLogger, repo model.Repository) (res model.RepoResult) {
	res = model.RepoResult{RepoID: repo.ID, Path: repo.Path, Projects: repo.Projects}
	repoCtx := ctx
	if m.opts.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		repoCtx, cancel = context.WithTimeout(ctx, m.opts.ProbeTimeout)
		defer cancel()
	}

	var (
		state model.BranchState
		err   error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = probe.Recovered(repo.ID, r)
			}
		}()
		state, err = m.prober.Probe(repoCtx, repo)
	}()

	res.State = state
	if err == nil {
		return res
	}
	res.State.TrackingBranchAhead = 0
	res.State.RemoteBranchAhead = 0
	res.Error = err.Error()
	res.ErrorKind = probe.KindName(err)
	res.Soft = probe.IsSoft(err)
	if !res.Soft && !probe.IsCancelled(err) {
		res.ErrorClass = gitx.ClassifyError(err)
	}

	entry := log.WithFields(logrus.Fields{
		"repo": repo.ID,
		"kind": res.ErrorKind,
	})
	if res.ErrorClass != "" {
		entry = entry.WithField("class", res.ErrorClass)
	}
	if res.Soft {
		entry.Warn("probe found no common position")
	} else if !probe.IsCancelled(err) {
		entry.WithError(err).Error("probe failed")
	}
	return res
}

// Aggregate sums the counts of successful results. Any failed or soft
// result makes the status error.
func Aggregate(results []model.RepoResult) model.Snapshot {
	snap := model.Snapshot{Repos: results}
	errored := false
	for _, res := range results {
		if !res.OK() {
			errored = true
			continue
		}
		snap.Ahead += res.State.TrackingBranchAhead
		snap.Behind += res.State.RemoteBranchAhead
	}
	if errored {
		snap.Status = model.StatusError
	} else {
		snap.Status = model.DeriveStatus(snap.Ahead, snap.Behind)
	}
	return snap
}

// Dedup merges repositories that share an ID, keeping the first Path and
// the union of projects.
func Dedup(repos []model.Repository) []model.Repository {
	index := make(map[string]int, len(repos))
	out := make([]model.Repository, 0, len(repos))
	for _, repo := range repos {
		i, ok := index[repo.ID]
		if !ok {
			index[repo.ID] = len(out)
			repo.Projects = append([]string(nil), repo.Projects...)
			out = append(out, repo)
			continue
		}
		merged := &out[i]
		for _, project := range repo.Projects {
			if !contains(merged.Projects, project) {
				merged.Projects = append(merged.Projects, project)
			}
		}
		sort.Strings(merged.Projects)
	}
	return out
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", probe.ErrCancelled, context.Cause(ctx))
}

// IsCancelled reports whether err came from a cancelled cycle.
func IsCancelled(err error) bool {
	return errors.Is(err, probe.ErrCancelled)
}
