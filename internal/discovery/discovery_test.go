package discovery_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/repomonitor/internal/discovery"
	"github.com/skaphos/repomonitor/internal/model"
	"github.com/skaphos/repomonitor/internal/vcs"
)

// identityStub resolves project paths through a fixed table.
type identityStub struct {
	ids   map[string]string
	calls []string
}

func (s *identityStub) Name() string { return "stub" }
func (s *identityStub) Identity(_ context.Context, dir string) (string, error) {
	s.calls = append(s.calls, dir)
	if id, ok := s.ids[dir]; ok {
		return id, nil
	}
	return "", errors.New("not a git repository")
}
func (s *identityStub) Fetch(context.Context, string) error { return nil }
func (s *identityStub) RemoteTrackingRef(context.Context, string) (string, error) {
	return "", nil
}
func (s *identityStub) LocalTrackingRef(context.Context, string) (string, error) {
	return "", nil
}
func (s *identityStub) HistoryLog(context.Context, string, string, int) ([]model.LogEntry, error) {
	return nil, nil
}

var _ = Describe("Discovery", func() {
	It("matches exclude patterns", func() {
		Expect(discovery.MatchesExclude("C:/code/repo/.git", []string{"**/.git/**"})).To(BeTrue())
		Expect(discovery.MatchesExclude("C:/code/repo", []string{"**/node_modules/**"})).To(BeFalse())
	})

	It("scans for git repositories", func() {
		root := GinkgoT().TempDir()
		repo := filepath.Join(root, "repo1")
		Expect(exec.Command("git", "init", repo).Run()).To(Succeed())

		results, err := discovery.Scan(context.Background(), discovery.Options{
			Roots: []string{root},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Path).To(Equal(repo))
		Expect(results[0].Bare).To(BeFalse())
	})

	It("respects exclude patterns during scan", func() {
		root := GinkgoT().TempDir()
		repo := filepath.Join(root, "vendor", "repo2")
		Expect(exec.Command("git", "init", repo).Run()).To(Succeed())

		results, err := discovery.Scan(context.Background(), discovery.Options{
			Roots:   []string{root},
			Exclude: []string{"**/vendor/**"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
	})

	It("detects linked .git directories", func() {
		root := GinkgoT().TempDir()
		repo := filepath.Join(root, "repo3")
		Expect(exec.Command("git", "init", repo).Run()).To(Succeed())

		gitDir := filepath.Join(root, "repo3.gitdir")
		Expect(os.Rename(filepath.Join(repo, ".git"), gitDir)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(repo, ".git"), []byte("gitdir: "+gitDir), 0o644)).To(Succeed())

		results, err := discovery.Scan(context.Background(), discovery.Options{
			Roots: []string{root},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Path).To(Equal(repo))
		Expect(results[0].GitDir).To(Equal(gitDir))
	})
})

var _ = Describe("Lister", func() {
	It("groups projects that share a repository", func() {
		stub := &identityStub{ids: map[string]string{
			"/work/app":         "/work/app/.git",
			"/work/app/web":     "/work/app/.git",
			"/work/app-feature": "/work/app/.git",
			"/work/lib":         "/work/lib/.git",
		}}
		lister := &discovery.Lister{
			Projects: []string{"/work/lib", "/work/app/web", "/work/app", "/work/app-feature", "/work/app"},
			Adapter:  stub,
		}
		repos, err := lister.ListRepositories(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(repos).To(Equal([]model.Repository{
			{
				ID:       "/work/app/.git",
				Path:     "/work/app",
				Projects: []string{"/work/app", "/work/app-feature", "/work/app/web"},
			},
			{ID: "/work/lib/.git", Path: "/work/lib", Projects: []string{"/work/lib"}},
		}))
		Expect(stub.calls).To(HaveLen(4))
	})

	It("skips projects outside any repository", func() {
		stub := &identityStub{ids: map[string]string{"/work/app": "/work/app/.git"}}
		lister := &discovery.Lister{Projects: []string{"/work/app", "/tmp/scratch"}, Adapter: stub}
		repos, err := lister.ListRepositories(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(repos).To(HaveLen(1))
		Expect(repos[0].ID).To(Equal("/work/app/.git"))
	})

	It("combines explicit projects with scanned roots and skips bare repositories", func() {
		root := GinkgoT().TempDir()
		repo := filepath.Join(root, "repo")
		_, err := git.PlainInit(repo, false)
		Expect(err).NotTo(HaveOccurred())
		_, err = git.PlainInit(filepath.Join(root, "mirror.git"), true)
		Expect(err).NotTo(HaveOccurred())
		sub := filepath.Join(repo, "pkg")
		Expect(os.MkdirAll(sub, 0o755)).To(Succeed())

		lister := &discovery.Lister{
			Projects: []string{sub},
			Roots:    []string{root},
			Adapter:  vcs.NewGoGitAdapter(),
		}
		repos, err := lister.ListRepositories(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(repos).To(HaveLen(1))
		Expect(repos[0].Projects).To(ConsistOf(repo, sub))
		Expect(repos[0].Path).To(Equal(repo))
		Expect(strings.HasSuffix(repos[0].ID, ".git")).To(BeTrue())
	})

	It("stops when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		lister := &discovery.Lister{Projects: []string{"/work/app"}, Adapter: &identityStub{}}
		_, err := lister.ListRepositories(ctx)
		Expect(err).To(MatchError(context.Canceled))
	})
})
