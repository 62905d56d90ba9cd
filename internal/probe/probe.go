// Package probe measures how far one repository's local branch and its
// remote-tracking ref have moved apart.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/skaphos/repomonitor/internal/model"
	"github.com/skaphos/repomonitor/internal/vcs"
)

// DefaultMaxDepth bounds how many history positions are compared per ref.
const DefaultMaxDepth = 1000

// Probe fetches a repository and compares the history logs of its current
// branch and that branch's remote-tracking ref.
type Probe struct {
	adapter  vcs.Adapter
	maxDepth int
	log      logrus.FieldLogger
}

// New creates a Probe. maxDepth <= 0 selects DefaultMaxDepth; a nil log
// discards output.
func New(adapter vcs.Adapter, maxDepth int, log logrus.FieldLogger) *Probe {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	return &Probe{adapter: adapter, maxDepth: maxDepth, log: log}
}

// MaxDepth returns the search depth in use.
func (p *Probe) MaxDepth() int { return p.maxDepth }

// Probe fetches repo and returns how many positions each side has moved
// since their newest shared position.
func (p *Probe) Probe(ctx context.Context, repo model.Repository) (model.BranchState, error) {
	dir := repo.Path
	fail := func(kind, err error) (model.BranchState, error) {
		switch ctxErr := ctx.Err(); {
		case errors.Is(ctxErr, context.Canceled):
			kind, err = ErrCancelled, ctxErr
		case ctxErr != nil && !errors.Is(err, ctxErr):
			// A deadline keeps the failing step's kind but classifies as a timeout.
			if err == nil {
				err = ctxErr
			} else {
				err = fmt.Errorf("%w: %w", ctxErr, err)
			}
		}
		return model.BranchState{}, &Error{Kind: kind, Repo: repo.ID, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(ErrFetchFailed, err)
	}
	if err := p.adapter.Fetch(ctx, dir); err != nil {
		return fail(ErrFetchFailed, err)
	}

	remoteRef, err := p.adapter.RemoteTrackingRef(ctx, dir)
	if err != nil || remoteRef == "" {
		return fail(ErrRemoteBranchUnresolved, err)
	}
	trackingRef, err := p.adapter.LocalTrackingRef(ctx, dir)
	if err != nil || trackingRef == "" {
		return fail(ErrTrackingBranchUnresolved, err)
	}

	trackingLog, err := p.adapter.HistoryLog(ctx, dir, trackingRef, p.maxDepth)
	if err != nil {
		return fail(ErrReflogUnreadable, err)
	}
	remoteLog, err := p.adapter.HistoryLog(ctx, dir, remoteRef, p.maxDepth)
	if err != nil {
		return fail(ErrReflogUnreadable, err)
	}

	state := model.BranchState{TrackingRef: trackingRef, RemoteRef: remoteRef}
	trackingAhead, remoteAhead, ok := Walk(trackingLog, remoteLog, p.maxDepth)
	if !ok {
		p.log.WithFields(logrus.Fields{
			"repo":     repo.ID,
			"tracking": trackingRef,
			"remote":   remoteRef,
			"depth":    p.maxDepth,
		}).Warn("no common position in branch histories")
		return state, &Error{Kind: ErrNoCommonAncestor, Repo: repo.ID}
	}
	state.TrackingBranchAhead = trackingAhead
	state.RemoteBranchAhead = remoteAhead
	p.log.WithFields(logrus.Fields{
		"repo":   repo.ID,
		"ahead":  trackingAhead,
		"behind": remoteAhead,
	}).Debug("probed repository")
	return state, nil
}

// Walk finds the first tracking entry, by increasing age, whose commit also
// appears in the remote log, and returns the ages of that commit on both
// sides. Only the first depth entries of each log are considered.
//
// The result equals a nested walk (tracking outer, remote inner) stopping at
// the first equal pair, computed in linear time.
func Walk(tracking, remote []model.LogEntry, depth int) (trackingAhead, remoteAhead int, ok bool) {
	if depth > 0 {
		if len(tracking) > depth {
			tracking = tracking[:depth]
		}
		if len(remote) > depth {
			remote = remote[:depth]
		}
	}
	firstSeen := make(map[string]int, len(remote))
	for i, entry := range remote {
		if _, seen := firstSeen[entry.CommitID]; !seen {
			firstSeen[entry.CommitID] = i
		}
	}
	for i, entry := range tracking {
		if ridx, found := firstSeen[entry.CommitID]; found {
			return i, ridx, true
		}
	}
	return 0, 0, false
}

// IsCancelled reports whether err came from a cancelled probe.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
