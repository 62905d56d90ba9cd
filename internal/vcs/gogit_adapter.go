// SPDX-License-Identifier: MIT
package vcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/skaphos/repomonitor/internal/gitx"
	"github.com/skaphos/repomonitor/internal/model"
)

// GoGitAdapter implements Adapter in pure Go on top of go-git. It needs no
// git binary. go-git never appends to reflogs, so HistoryLog completes the
// on-disk log with the ref's current position.
type GoGitAdapter struct {
	// Remote is fetched when the branch has no configured remote, and is
	// preferred when resolving a remote-tracking ref by name.
	Remote string
	// Auth is passed to fetches. Nil lets go-git pick (ssh-agent for ssh URLs).
	Auth transport.AuthMethod
}

func NewGoGitAdapter() *GoGitAdapter {
	return &GoGitAdapter{Remote: DefaultRemote}
}

func (g *GoGitAdapter) Name() string { return "go-git" }

func (g *GoGitAdapter) Identity(_ context.Context, dir string) (string, error) {
	_, storage, err := g.open(dir)
	if err != nil {
		return "", err
	}
	return gitx.CanonicalPath(commonDir(storage.Filesystem().Root())), nil
}

// Fetch updates the branch remote's refs and, like git fetch, appends a
// reflog entry for every remote-tracking ref that moved.
func (g *GoGitAdapter) Fetch(ctx context.Context, dir string) error {
	repo, storage, err := g.open(dir)
	if err != nil {
		return err
	}
	remote := g.branchRemote(repo)
	before, err := remoteRefHashes(repo, remote)
	if err != nil {
		return err
	}
	err = repo.FetchContext(ctx, &git.FetchOptions{RemoteName: remote, Auth: g.Auth})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("go-git fetch %s: %w", remote, classifyGoGitError(err))
	}
	after, err := remoteRefHashes(repo, remote)
	if err != nil {
		return err
	}
	logs := logsFS(storage)
	now := time.Now()
	for name, hash := range after {
		old := before[name]
		if old == hash {
			continue
		}
		if err := appendReflog(logs, name, old, hash, now); err != nil {
			return err
		}
	}
	return nil
}

func (g *GoGitAdapter) RemoteTrackingRef(_ context.Context, dir string) (string, error) {
	repo, _, err := g.open(dir)
	if err != nil {
		return "", err
	}
	head := symbolicHead(repo)
	if head == "" {
		return "", nil
	}
	if cfg, err := repo.Config(); err == nil {
		if branch, ok := cfg.Branches[gitx.ShortBranch(head)]; ok && branch != nil {
			upstream := gitx.RemoteRefFor(branch.Remote, branch.Merge.String())
			if upstream != "" {
				if _, err := repo.Reference(plumbing.ReferenceName(upstream), false); err == nil {
					return upstream, nil
				}
			}
		}
	}
	refs, err := remoteRefNames(repo)
	if err != nil {
		return "", err
	}
	return gitx.MatchRemoteRef(refs, head, g.remote()), nil
}

func (g *GoGitAdapter) LocalTrackingRef(_ context.Context, dir string) (string, error) {
	repo, _, err := g.open(dir)
	if err != nil {
		return "", err
	}
	return symbolicHead(repo), nil
}

func (g *GoGitAdapter) HistoryLog(_ context.Context, dir, ref string, limit int) ([]model.LogEntry, error) {
	repo, storage, err := g.open(dir)
	if err != nil {
		return nil, err
	}
	current, err := repo.Reference(plumbing.ReferenceName(ref), true)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}
	entries, err := readReflog(logsFS(storage), ref)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	previous := ""
	for _, entry := range entries {
		ids = append(ids, entry.NewID)
		previous = entry.OldID
	}
	return logEntries(historyIDs(current.Hash().String(), ids, previous, limit)), nil
}

func (g *GoGitAdapter) open(dir string) (*git.Repository, *filesystem.Storage, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", dir, err)
	}
	storage, ok := repo.Storer.(*filesystem.Storage)
	if !ok {
		return nil, nil, fmt.Errorf("open %s: repository storage is not on disk", dir)
	}
	return repo, storage, nil
}

func (g *GoGitAdapter) branchRemote(repo *git.Repository) string {
	head := symbolicHead(repo)
	if head != "" {
		if cfg, err := repo.Config(); err == nil {
			if branch, ok := cfg.Branches[gitx.ShortBranch(head)]; ok && branch != nil && branch.Remote != "" && branch.Remote != "." {
				return branch.Remote
			}
		}
	}
	return g.remote()
}

func (g *GoGitAdapter) remote() string {
	if g.Remote == "" {
		return DefaultRemote
	}
	return g.Remote
}

func symbolicHead(repo *git.Repository) string {
	head, err := repo.Reference(plumbing.HEAD, false)
	if err != nil || head.Type() != plumbing.SymbolicReference {
		return ""
	}
	if !head.Target().IsBranch() {
		return ""
	}
	return head.Target().String()
}

func remoteRefNames(repo *git.Repository) ([]string, error) {
	iter, err := repo.References()
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer iter.Close()
	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Name().IsRemote() {
			names = append(names, ref.Name().String())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	return names, nil
}

// commonDir follows a linked worktree's pointer to the shared repository.
func commonDir(root string) string {
	data, err := os.ReadFile(filepath.Join(root, "commondir"))
	if err != nil {
		return root
	}
	common := strings.TrimSpace(string(data))
	if !filepath.IsAbs(common) {
		common = filepath.Join(root, common)
	}
	return common
}

// logsFS returns the filesystem branch and remote reflogs live in.
func logsFS(storage *filesystem.Storage) billy.Filesystem {
	fs := storage.Filesystem()
	if common := commonDir(fs.Root()); common != fs.Root() {
		return osfs.New(common)
	}
	return fs
}

func remoteRefHashes(repo *git.Repository, remote string) (map[string]plumbing.Hash, error) {
	iter, err := repo.References()
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer iter.Close()
	prefix := gitx.RemoteRefPrefix + remote + "/"
	hashes := map[string]plumbing.Hash{}
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() == plumbing.HashReference && strings.HasPrefix(ref.Name().String(), prefix) {
			hashes[ref.Name().String()] = ref.Hash()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	return hashes, nil
}

func appendReflog(fs billy.Filesystem, ref string, old, hash plumbing.Hash, now time.Time) error {
	name := path.Join("logs", ref)
	if err := fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return fmt.Errorf("create reflog dir for %s: %w", ref, err)
	}
	f, err := fs.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open reflog %s: %w", ref, err)
	}
	line := fmt.Sprintf("%s %s repomonitor <repomonitor@localhost> %d %s\tfetch: %s\n",
		old, hash, now.Unix(), now.Format("-0700"), fetchMessage(old))
	if _, err := f.Write([]byte(line)); err != nil {
		_ = f.Close()
		return fmt.Errorf("write reflog %s: %w", ref, err)
	}
	return f.Close()
}

func fetchMessage(old plumbing.Hash) string {
	if old.IsZero() {
		return "storing head"
	}
	return "fast-forward"
}

func readReflog(fs billy.Filesystem, ref string) ([]gitx.ReflogEntry, error) {
	f, err := fs.Open(path.Join("logs", ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open reflog %s: %w", ref, err)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read reflog %s: %w", ref, err)
	}
	return gitx.ParseReflog(string(data)), nil
}

func classifyGoGitError(err error) error {
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrInvalidAuthMethod):
		return fmt.Errorf("%w: %w", gitx.ErrAuthFailure, err)
	case errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, transport.ErrEmptyRemoteRepository),
		errors.Is(err, git.ErrRemoteNotFound):
		return fmt.Errorf("%w: %w", gitx.ErrMissingRemoteRef, err)
	default:
		return err
	}
}
