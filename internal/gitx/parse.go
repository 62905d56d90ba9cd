package gitx

import (
	"sort"
	"strings"
)

const (
	// BranchRefPrefix prefixes local branch refs.
	BranchRefPrefix = "refs/heads/"
	// RemoteRefPrefix prefixes remote-tracking refs.
	RemoteRefPrefix = "refs/remotes/"
)

// ParseLines splits command output into trimmed, non-empty lines.
func ParseLines(output string) []string {
	if strings.TrimSpace(output) == "" {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// ReflogEntry is one line of a reflog file.
type ReflogEntry struct {
	OldID   string
	NewID   string
	Message string
}

// ParseReflog parses the raw contents of a reflog file
// ($GIT_DIR/logs/<ref>) and returns entries most recent first.
//
// Each line has the form:
//
//	<old-id> <new-id> <name> <<email>> <unix-time> <tz>\t<message>
func ParseReflog(content string) []ReflogEntry {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	entries := make([]ReflogEntry, 0, len(lines))
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}
		header, message, _ := strings.Cut(line, "\t")
		fields := strings.Fields(header)
		if len(fields) < 2 {
			continue
		}
		entries = append(entries, ReflogEntry{
			OldID:   fields[0],
			NewID:   fields[1],
			Message: strings.TrimSpace(message),
		})
	}
	return entries
}

// ShortBranch strips the refs/heads/ prefix from a full branch ref.
func ShortBranch(ref string) string {
	return strings.TrimPrefix(ref, BranchRefPrefix)
}

// MatchRemoteRef picks the remote-tracking ref for branch from refs. Only
// refs of the form refs/remotes/<remote>/<branch> match. The preferred
// remote wins; otherwise the first match in sorted order is returned.
func MatchRemoteRef(refs []string, branch, preferredRemote string) string {
	branch = ShortBranch(strings.TrimSpace(branch))
	if branch == "" {
		return ""
	}
	var matches []string
	for _, ref := range refs {
		rest, ok := strings.CutPrefix(ref, RemoteRefPrefix)
		if !ok {
			continue
		}
		remote, name, ok := strings.Cut(rest, "/")
		if !ok || remote == "" || name != branch {
			continue
		}
		if remote == preferredRemote {
			return ref
		}
		matches = append(matches, ref)
	}
	if len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[0]
}

// RemoteRefFor builds the remote-tracking ref name for a remote and a merge
// ref (for example, "origin" + "refs/heads/main" → "refs/remotes/origin/main").
func RemoteRefFor(remote, merge string) string {
	remote = strings.TrimSpace(remote)
	merge = ShortBranch(strings.TrimSpace(merge))
	if remote == "" || remote == "." || merge == "" {
		return ""
	}
	return RemoteRefPrefix + remote + "/" + merge
}
