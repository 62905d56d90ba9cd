// Package gitx provides helpers for executing git commands and parsing
// their output. It shells out to the installed git binary.
package gitx

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Runner executes git commands in a given repo directory.
// This interface allows mocking in tests.
type Runner interface {
	// Run executes a git command in the given directory and returns
	// combined stdout/stderr output.
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// GitRunner is the default Runner implementation that shells out to git.
type GitRunner struct {
	// GitBin is the path to the git binary. Defaults to "git".
	GitBin string
}

// Run executes a git command.
func (g *GitRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	bin := g.GitBin
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	// Never block a background fetch on a credential prompt.
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil && text != "" {
		return text, fmt.Errorf("%w: %s", err, text)
	}
	return text, err
}

// CommonDir returns the absolute git common directory for dir. Linked
// worktrees and subdirectories of one clone all share a common dir.
func CommonDir(ctx context.Context, r Runner, dir string) (string, error) {
	out, err := r.Run(ctx, dir, "rev-parse", "--path-format=absolute", "--git-common-dir")
	if err != nil {
		// git < 2.31 has no --path-format; fall back to a possibly relative path.
		out, err = r.Run(ctx, dir, "rev-parse", "--git-common-dir")
		if err != nil {
			return "", fmt.Errorf("git rev-parse --git-common-dir: %w", err)
		}
	}
	common := strings.TrimSpace(out)
	if common == "" {
		return "", fmt.Errorf("git rev-parse --git-common-dir: empty output for %s", dir)
	}
	if !filepath.IsAbs(common) {
		common = filepath.Join(dir, common)
	}
	return CanonicalPath(common), nil
}

// CanonicalPath cleans p and resolves symlinks when possible.
func CanonicalPath(p string) string {
	p = filepath.Clean(p)
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	return p
}

// SymbolicHead returns the full ref HEAD points to (for example,
// "refs/heads/main"). It returns an empty string when HEAD is detached.
func SymbolicHead(ctx context.Context, r Runner, dir string) (string, error) {
	out, err := r.Run(ctx, dir, "symbolic-ref", "--quiet", "HEAD")
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(out), nil
}

// Upstream returns the full remote-tracking ref configured as the current
// branch's upstream, or an empty string when none is configured or the
// upstream is a local branch.
func Upstream(ctx context.Context, r Runner, dir string) (string, error) {
	out, err := r.Run(ctx, dir, "rev-parse", "--symbolic-full-name", "@{upstream}")
	if err != nil {
		return "", nil
	}
	ref := strings.TrimSpace(out)
	if !strings.HasPrefix(ref, RemoteRefPrefix) {
		return "", nil
	}
	return ref, nil
}

// RemoteRefs lists every remote-tracking ref in the repository.
func RemoteRefs(ctx context.Context, r Runner, dir string) ([]string, error) {
	out, err := r.Run(ctx, dir, "for-each-ref", "--format=%(refname)", "refs/remotes")
	if err != nil {
		return nil, fmt.Errorf("git for-each-ref: %w", err)
	}
	return ParseLines(out), nil
}

// Fetch runs a fetch of the current branch's configured remote with
// submodule recursion disabled.
func Fetch(ctx context.Context, r Runner, dir string) error {
	_, err := r.Run(ctx, dir, "-c", "fetch.recurseSubmodules=false", "fetch", "--prune", "--no-recurse-submodules")
	return err
}

// ReflogHashes returns up to limit commit ids from ref's reflog, most recent
// first.
func ReflogHashes(ctx context.Context, r Runner, dir, ref string, limit int) ([]string, error) {
	args := []string{"reflog", "show", "--format=%H"}
	if limit > 0 {
		args = append(args, "-n", strconv.Itoa(limit))
	}
	args = append(args, ref, "--")
	out, err := r.Run(ctx, dir, args...)
	if err != nil {
		return nil, fmt.Errorf("git reflog %s: %w", ref, err)
	}
	return ParseLines(out), nil
}

// ResolveRef returns the commit id ref currently points to.
func ResolveRef(ctx context.Context, r Runner, dir, ref string) (string, error) {
	out, err := r.Run(ctx, dir, "rev-parse", "--verify", ref)
	if err != nil {
		return "", fmt.Errorf("git rev-parse %s: %w", ref, err)
	}
	return strings.TrimSpace(out), nil
}

// ReflogPath returns the absolute path of ref's reflog file. The file may
// not exist.
func ReflogPath(ctx context.Context, r Runner, dir, ref string) (string, error) {
	out, err := r.Run(ctx, dir, "rev-parse", "--git-path", "logs/"+ref)
	if err != nil {
		return "", fmt.Errorf("git rev-parse --git-path logs/%s: %w", ref, err)
	}
	p := strings.TrimSpace(out)
	if p == "" {
		return "", fmt.Errorf("git rev-parse --git-path logs/%s: empty output", ref)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	return p, nil
}
