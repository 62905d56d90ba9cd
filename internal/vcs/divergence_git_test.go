// SPDX-License-Identifier: MIT
package vcs_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/repomonitor/internal/gitx"
	"github.com/skaphos/repomonitor/internal/model"
	"github.com/skaphos/repomonitor/internal/probe"
	"github.com/skaphos/repomonitor/internal/vcs"
)

func gitCmd(dir string, args ...string) string {
	GinkgoHelper()
	full := append([]string{
		"-c", "user.name=Dev",
		"-c", "user.email=dev@example.com",
		"-c", "init.defaultBranch=main",
		"-c", "commit.gpgsign=false",
	}, args...)
	out, err := (&gitx.GitRunner{}).Run(context.Background(), dir, full...)
	Expect(err).NotTo(HaveOccurred(), out)
	return out
}

func gitCommit(dir, name string) {
	GinkgoHelper()
	Expect(os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644)).To(Succeed())
	gitCmd(dir, "add", name)
	gitCmd(dir, "commit", "-m", "add "+name)
}

// counts returns ahead then behind.
func counts(s model.BranchState) [2]int {
	return [2]int{s.TrackingBranchAhead, s.RemoteBranchAhead}
}

var _ = Describe("divergence against clones made by git", func() {
	var (
		ctx   context.Context
		seed  string
		local string
	)

	BeforeEach(func() {
		if _, err := exec.LookPath("git"); err != nil {
			Skip("git is not installed")
		}
		ctx = context.Background()
		root := GinkgoT().TempDir()
		gitCmd(root, "init", "--bare", "remote.git")
		gitCmd(root, "clone", "remote.git", "seed")
		seed = filepath.Join(root, "seed")
		gitCommit(seed, "first.txt")
		gitCmd(seed, "push", "origin", "HEAD:main")
		gitCmd(root, "clone", "remote.git", "local")
		local = filepath.Join(root, "local")
	})

	check := func(adapter vcs.Adapter) (model.BranchState, error) {
		return probe.New(adapter, 0, nil).Probe(ctx, model.Repository{
			ID:   filepath.Join(local, ".git"),
			Path: local,
		})
	}

	gitBackend := func() vcs.Adapter { return vcs.NewGitAdapter(nil) }
	goGitBackend := func() vcs.Adapter { return vcs.NewGoGitAdapter() }

	DescribeTable("a fresh clone is synchronized",
		func(newAdapter func() vcs.Adapter) {
			state, err := check(newAdapter())
			Expect(err).NotTo(HaveOccurred())
			Expect(counts(state)).To(Equal([2]int{0, 0}))
			Expect(state.TrackingRef).To(Equal("refs/heads/main"))
			Expect(state.RemoteRef).To(Equal("refs/remotes/origin/main"))
		},
		Entry("git", gitBackend),
		Entry("go-git", goGitBackend),
	)

	DescribeTable("a local commit is ahead",
		func(newAdapter func() vcs.Adapter) {
			gitCommit(local, "local.txt")
			state, err := check(newAdapter())
			Expect(err).NotTo(HaveOccurred())
			Expect(counts(state)).To(Equal([2]int{1, 0}))
		},
		Entry("git", gitBackend),
		Entry("go-git", goGitBackend),
	)

	DescribeTable("a pushed commit from elsewhere is behind after the fetch",
		func(newAdapter func() vcs.Adapter) {
			gitCommit(seed, "second.txt")
			gitCmd(seed, "push", "origin", "HEAD:main")
			state, err := check(newAdapter())
			Expect(err).NotTo(HaveOccurred())
			Expect(counts(state)).To(Equal([2]int{0, 1}))
		},
		Entry("git", gitBackend),
		Entry("go-git", goGitBackend),
	)

	DescribeTable("commits on both sides diverge",
		func(newAdapter func() vcs.Adapter) {
			gitCommit(seed, "second.txt")
			gitCmd(seed, "push", "origin", "HEAD:main")
			gitCommit(local, "local.txt")
			state, err := check(newAdapter())
			Expect(err).NotTo(HaveOccurred())
			Expect(counts(state)).To(Equal([2]int{1, 1}))
		},
		Entry("git", gitBackend),
		Entry("go-git", goGitBackend),
	)

	It("records the fetched move in the remote-tracking reflog with go-git", func() {
		gitCommit(seed, "second.txt")
		gitCmd(seed, "push", "origin", "HEAD:main")
		Expect(vcs.NewGoGitAdapter().Fetch(ctx, local)).To(Succeed())
		data, err := os.ReadFile(filepath.Join(local, ".git", "logs", "refs", "remotes", "origin", "main"))
		Expect(err).NotTo(HaveOccurred())
		entries := gitx.ParseReflog(string(data))
		Expect(entries).NotTo(BeEmpty())
		Expect(entries[0].Message).To(Equal("fetch: fast-forward"))
		Expect(entries[0].NewID).To(Equal(gitCmd(local, "rev-parse", "refs/remotes/origin/main")))
	})
})
