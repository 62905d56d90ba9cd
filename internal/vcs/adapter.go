// Package vcs abstracts the version control operations the monitor needs.
package vcs

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/skaphos/repomonitor/internal/gitx"
	"github.com/skaphos/repomonitor/internal/model"
)

// DefaultRemote is the remote preferred when a branch has no configured
// upstream.
const DefaultRemote = "origin"

// Adapter defines the VCS operations repomonitor relies on.
type Adapter interface {
	Name() string
	// Identity returns the repository storage location for a directory
	// inside a repository. It fails when dir is not inside a repository.
	Identity(ctx context.Context, dir string) (string, error)
	// Fetch updates the remote-tracking refs of the current branch's remote.
	Fetch(ctx context.Context, dir string) error
	// RemoteTrackingRef returns the remote-tracking ref for the current
	// branch, or an empty string when none exists.
	RemoteTrackingRef(ctx context.Context, dir string) (string, error)
	// LocalTrackingRef returns the current branch's full ref, or an empty
	// string when HEAD is detached.
	LocalTrackingRef(ctx context.Context, dir string) (string, error)
	// HistoryLog returns at most limit positions of ref, most recent first.
	HistoryLog(ctx context.Context, dir, ref string, limit int) ([]model.LogEntry, error)
}

// GitAdapter implements Adapter using the git CLI via gitx.
type GitAdapter struct {
	Runner gitx.Runner
	// Remote is preferred when resolving a remote-tracking ref by name.
	Remote string
}

func NewGitAdapter(runner gitx.Runner) *GitAdapter {
	if runner == nil {
		runner = &gitx.GitRunner{}
	}
	return &GitAdapter{Runner: runner, Remote: DefaultRemote}
}

func (g *GitAdapter) Name() string { return "git" }

func (g *GitAdapter) Identity(ctx context.Context, dir string) (string, error) {
	return gitx.CommonDir(ctx, g.Runner, dir)
}

func (g *GitAdapter) Fetch(ctx context.Context, dir string) error {
	return gitx.Fetch(ctx, g.Runner, dir)
}

func (g *GitAdapter) RemoteTrackingRef(ctx context.Context, dir string) (string, error) {
	upstream, err := gitx.Upstream(ctx, g.Runner, dir)
	if err != nil {
		return "", err
	}
	if upstream != "" {
		return upstream, nil
	}
	head, err := gitx.SymbolicHead(ctx, g.Runner, dir)
	if err != nil || head == "" {
		return "", err
	}
	refs, err := gitx.RemoteRefs(ctx, g.Runner, dir)
	if err != nil {
		return "", err
	}
	return gitx.MatchRemoteRef(refs, head, g.remote()), nil
}

func (g *GitAdapter) LocalTrackingRef(ctx context.Context, dir string) (string, error) {
	return gitx.SymbolicHead(ctx, g.Runner, dir)
}

func (g *GitAdapter) HistoryLog(ctx context.Context, dir, ref string, limit int) ([]model.LogEntry, error) {
	current, err := gitx.ResolveRef(ctx, g.Runner, dir, ref)
	if err != nil {
		return nil, err
	}
	ids, err := gitx.ReflogHashes(ctx, g.Runner, dir, ref, limit)
	if err != nil && !g.reflogMissing(ctx, dir, ref) {
		return nil, err
	}
	return logEntries(historyIDs(current, ids, g.previousID(ctx, dir, ref), limit)), nil
}

func (g *GitAdapter) reflogMissing(ctx context.Context, dir, ref string) bool {
	p, err := gitx.ReflogPath(ctx, g.Runner, dir, ref)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return errors.Is(err, os.ErrNotExist)
}

// previousID returns the position ref had before its oldest reflog entry,
// or an empty string when the log starts at the ref's creation.
func (g *GitAdapter) previousID(ctx context.Context, dir, ref string) string {
	p, err := gitx.ReflogPath(ctx, g.Runner, dir, ref)
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return ""
	}
	entries := gitx.ParseReflog(string(data))
	if len(entries) == 0 {
		return ""
	}
	return entries[len(entries)-1].OldID
}

func (g *GitAdapter) remote() string {
	if g.Remote == "" {
		return DefaultRemote
	}
	return g.Remote
}

// historyIDs completes a reflog listing, most recent first. git clone writes
// no reflog for remote-tracking refs and go-git writes none at all, so the
// ref's current id is prepended when the log lags behind it. A log that
// starts after the ref was created ends with the position it replaced.
func historyIDs(current string, ids []string, previous string, limit int) []string {
	out := make([]string, 0, len(ids)+2)
	if current != "" && (len(ids) == 0 || ids[0] != current) {
		out = append(out, current)
	}
	out = append(out, ids...)
	if len(out) > 0 && !isZeroID(previous) && out[len(out)-1] != previous {
		out = append(out, previous)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func isZeroID(id string) bool {
	return strings.Trim(id, "0") == ""
}

func logEntries(ids []string) []model.LogEntry {
	entries := make([]model.LogEntry, 0, len(ids))
	for i, id := range ids {
		entries = append(entries, model.LogEntry{Index: i, CommitID: id})
	}
	return entries
}
