// Package model defines the core data types used throughout repomonitor.
package model

import "time"

// Repository is a local git repository backing one or more projects.
type Repository struct {
	// ID is the repository storage location (the resolved git common dir).
	// Projects that share a repository share an ID.
	ID string `json:"id" yaml:"id"`
	// Path is the directory git commands run in for this repository.
	Path string `json:"path" yaml:"path"`
	// Projects lists every project path that maps to this repository.
	Projects []string `json:"projects,omitempty" yaml:"projects,omitempty"`
}

// LogEntry is a single position recorded in a ref's history log.
type LogEntry struct {
	// Index is the entry's age: 0 is the most recent position.
	Index int `json:"index" yaml:"index"`
	// CommitID is the commit the ref pointed to after this update.
	CommitID string `json:"commit_id" yaml:"commit_id"`
}

// BranchState is the result of probing one repository.
type BranchState struct {
	// TrackingBranchAhead counts positions the local branch has that the
	// remote-tracking ref has not seen.
	TrackingBranchAhead int `json:"tracking_branch_ahead" yaml:"tracking_branch_ahead"`
	// RemoteBranchAhead counts positions the remote-tracking ref has that the
	// local branch has not incorporated.
	RemoteBranchAhead int `json:"remote_branch_ahead" yaml:"remote_branch_ahead"`
	// TrackingRef is the full name of the local branch (for example, "refs/heads/main").
	TrackingRef string `json:"tracking_ref,omitempty" yaml:"tracking_ref,omitempty"`
	// RemoteRef is the full name of the remote-tracking ref (for example, "refs/remotes/origin/main").
	RemoteRef string `json:"remote_ref,omitempty" yaml:"remote_ref,omitempty"`
}

// OverallStatus enumerates the aggregate states of the monitored repositories.
type OverallStatus string

const (
	StatusSynced   OverallStatus = "synced"
	StatusAhead    OverallStatus = "ahead"
	StatusBehind   OverallStatus = "behind"
	StatusDiverged OverallStatus = "diverged"
	StatusBusy     OverallStatus = "busy"
	StatusError    OverallStatus = "error"
)

// DeriveStatus maps summed ahead/behind counts to an overall status.
func DeriveStatus(ahead, behind int) OverallStatus {
	switch {
	case ahead > 0 && behind > 0:
		return StatusDiverged
	case ahead > 0:
		return StatusAhead
	case behind > 0:
		return StatusBehind
	default:
		return StatusSynced
	}
}

// RepoResult records the outcome of probing one repository during a cycle.
type RepoResult struct {
	// RepoID is the repository identity.
	RepoID string `json:"repo_id" yaml:"repo_id"`
	// Path is the directory the probe ran in.
	Path string `json:"path" yaml:"path"`
	// Projects are the project paths backed by this repository.
	Projects []string `json:"projects,omitempty" yaml:"projects,omitempty"`
	// State holds the probe counts. Zero when the probe failed.
	State BranchState `json:"state" yaml:"state"`
	// Error holds the probe error text.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
	// ErrorKind is the probe error kind (for example, "fetch_failed").
	ErrorKind string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	// ErrorClass is a coarse category for git failures (for example, auth/network).
	ErrorClass string `json:"error_class,omitempty" yaml:"error_class,omitempty"`
	// Soft reports that the error is a warning (no common ancestor found).
	Soft bool `json:"soft,omitempty" yaml:"soft,omitempty"`
}

// OK reports whether the probe succeeded.
func (r RepoResult) OK() bool { return r.Error == "" }

// Snapshot is the published aggregate status.
type Snapshot struct {
	// Status is the overall status.
	Status OverallStatus `json:"status" yaml:"status"`
	// Ahead is the summed count of local positions not on the remote.
	Ahead int `json:"ahead" yaml:"ahead"`
	// Behind is the summed count of remote positions not incorporated locally.
	Behind int `json:"behind" yaml:"behind"`
	// UpdatedAt is when the snapshot was published.
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
	// CycleID identifies the monitor cycle that produced the snapshot.
	CycleID string `json:"cycle_id,omitempty" yaml:"cycle_id,omitempty"`
	// Repos holds the per-repository results of the cycle.
	Repos []RepoResult `json:"repos,omitempty" yaml:"repos,omitempty"`
}
