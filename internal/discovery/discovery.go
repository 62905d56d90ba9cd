// Package discovery finds the projects repomonitor watches and maps them to
// the repositories that back them.
package discovery

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Result represents a discovered project directory.
type Result struct {
	Path   string // absolute path to the working tree root
	GitDir string // linked git dir when .git is a file
	Bare   bool   // true if bare repo
}

// Options configures the discovery scan.
type Options struct {
	Roots          []string
	Exclude        []string // glob patterns to skip
	FollowSymlinks bool
}

// Scan walks all roots and returns discovered repos.
// It skips directories matching exclude patterns and does not recurse
// into .git directories or matched exclusions.
func Scan(ctx context.Context, opts Options) ([]Result, error) {
	visited := make(map[string]struct{})
	var results []Result
	skipDirs := make(map[string]struct{})

	for _, root := range opts.Roots {
		if root == "" {
			continue
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		if err := walkRoot(ctx, absRoot, opts, visited, skipDirs, &results); err != nil {
			return nil, err
		}
	}

	return results, nil
}

// MatchesExclude checks whether a path matches any of the given exclude
// glob patterns.
func MatchesExclude(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	slashPath := filepath.ToSlash(path)
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		match, err := doublestar.Match(pattern, slashPath)
		if err != nil {
			continue
		}
		if match {
			return true
		}
	}
	return false
}

func walkRoot(ctx context.Context, root string, opts Options, visited map[string]struct{}, skipDirs map[string]struct{}, results *[]Result) error {
	realRoot := root
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		realRoot = resolved
	}
	if _, ok := visited[realRoot]; ok {
		return nil
	}
	visited[realRoot] = struct{}{}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		isLink := d.Type()&os.ModeSymlink != 0
		if !d.IsDir() && !isLink {
			return nil
		}
		if isLink && !opts.FollowSymlinks {
			return nil
		}

		if _, ok := skipDirs[path]; ok {
			return fs.SkipDir
		}
		if d.Name() == ".git" {
			return fs.SkipDir
		}
		if MatchesExclude(path, opts.Exclude) {
			return skip(d)
		}

		isRepoRoot, bare, gitdir := detectRepo(path)
		if isRepoRoot {
			if gitdir != "" {
				skipDirs[gitdir] = struct{}{}
			}
			*results = append(*results, Result{Path: path, GitDir: gitdir, Bare: bare})
			return skip(d)
		}

		if isLink {
			target, err := filepath.EvalSymlinks(path)
			if err != nil {
				return nil
			}
			info, err := os.Stat(target)
			if err != nil || !info.IsDir() {
				return nil
			}
			return walkRoot(ctx, target, opts, visited, skipDirs, results)
		}

		return nil
	})
}

// skip stops descent into a directory; WalkDir never descends into
// symlinks, and SkipDir on a non-directory would end the parent's walk.
func skip(d fs.DirEntry) error {
	if d.IsDir() {
		return fs.SkipDir
	}
	return nil
}

func detectRepo(dir string) (isRepo, bare bool, gitdir string) {
	gitPath := filepath.Join(dir, ".git")
	if info, err := os.Stat(gitPath); err == nil {
		if info.Mode().IsRegular() {
			if linked, ok := gitdirFromFile(gitPath); ok {
				return true, false, linked
			}
			return false, false, ""
		}
		return true, false, ""
	}

	// Bare repo heuristic: HEAD file and objects dir.
	if _, err := os.Stat(filepath.Join(dir, "HEAD")); err == nil {
		if info, err := os.Stat(filepath.Join(dir, "objects")); err == nil && info.IsDir() {
			return true, true, ""
		}
	}
	return false, false, ""
}

func gitdirFromFile(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	content := strings.TrimSpace(string(data))
	if !strings.HasPrefix(content, "gitdir:") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(content, "gitdir:"))
	if raw == "" {
		return "", false
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw), true
	}
	return filepath.Clean(filepath.Join(filepath.Dir(path), raw)), true
}
