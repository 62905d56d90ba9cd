package probe

import (
	"errors"
	"fmt"
)

// Probe error kinds. A probe error matches its kind and its cause with
// errors.Is.
var (
	ErrFetchFailed              = errors.New("fetch failed")
	ErrRemoteBranchUnresolved   = errors.New("remote branch unresolved")
	ErrTrackingBranchUnresolved = errors.New("tracking branch unresolved")
	ErrReflogUnreadable         = errors.New("reflog unreadable")
	// ErrNoCommonAncestor is a warning: both logs were read but share no
	// position within the search depth.
	ErrNoCommonAncestor = errors.New("no common ancestor")
	ErrCancelled        = errors.New("cancelled")
)

var kindNames = []struct {
	kind error
	name string
}{
	{ErrCancelled, "cancelled"},
	{ErrFetchFailed, "fetch_failed"},
	{ErrRemoteBranchUnresolved, "remote_branch_unresolved"},
	{ErrTrackingBranchUnresolved, "tracking_branch_unresolved"},
	{ErrReflogUnreadable, "reflog_unreadable"},
	{ErrNoCommonAncestor, "no_common_ancestor"},
}

// Error is returned by Probe.
type Error struct {
	Kind error
	Repo string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Repo, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Repo, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindName returns the snake_case name of err's probe kind, or "panic" /
// "unknown" for errors that did not come from a probe step.
func KindName(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindNames {
		if errors.Is(err, k.kind) {
			return k.name
		}
	}
	if errors.Is(err, errPanic) {
		return "panic"
	}
	return "unknown"
}

// IsSoft reports whether err is a warning rather than a failure.
func IsSoft(err error) bool {
	return errors.Is(err, ErrNoCommonAncestor)
}

var errPanic = errors.New("probe panicked")

// Recovered converts a recovered panic value into an error for repo.
func Recovered(repo string, v any) error {
	return &Error{Kind: errPanic, Repo: repo, Err: fmt.Errorf("%v", v)}
}
