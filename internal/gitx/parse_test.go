package gitx_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/repomonitor/internal/gitx"
)

var _ = Describe("ParseReflog", func() {
	It("returns entries most recent first", func() {
		content := "0000 aaaa Dev <dev@example.com> 1700000000 +0000\tbranch: Created from HEAD\n" +
			"aaaa bbbb Dev <dev@example.com> 1700000100 +0000\tcommit: second\n" +
			"bbbb cccc Dev <dev@example.com> 1700000200 +0000\tfetch: fast-forward\n"
		entries := gitx.ParseReflog(content)
		Expect(entries).To(HaveLen(3))
		Expect(entries[0].NewID).To(Equal("cccc"))
		Expect(entries[0].OldID).To(Equal("bbbb"))
		Expect(entries[0].Message).To(Equal("fetch: fast-forward"))
		Expect(entries[2].NewID).To(Equal("aaaa"))
	})

	It("skips blank and malformed lines", func() {
		entries := gitx.ParseReflog("\ngarbage\naaaa bbbb X <x> 1 +0000\tmsg\n\n")
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].NewID).To(Equal("bbbb"))
	})

	It("handles an empty log", func() {
		Expect(gitx.ParseReflog("")).To(BeEmpty())
	})
})

var _ = Describe("MatchRemoteRef", func() {
	refs := []string{
		"refs/remotes/fork/main",
		"refs/remotes/origin/HEAD",
		"refs/remotes/origin/feature/main",
		"refs/remotes/origin/main",
	}

	It("prefers the preferred remote", func() {
		Expect(gitx.MatchRemoteRef(refs, "main", "origin")).To(Equal("refs/remotes/origin/main"))
	})

	It("falls back to the first match in sorted order", func() {
		Expect(gitx.MatchRemoteRef(refs, "main", "upstream")).To(Equal("refs/remotes/fork/main"))
	})

	It("accepts full branch refs and nested branch names", func() {
		Expect(gitx.MatchRemoteRef(refs, "refs/heads/feature/main", "origin")).To(Equal("refs/remotes/origin/feature/main"))
	})

	It("does not match on a suffix only", func() {
		Expect(gitx.MatchRemoteRef([]string{"refs/remotes/origin/feature/main"}, "main", "origin")).To(BeEmpty())
	})

	It("returns empty for an empty branch", func() {
		Expect(gitx.MatchRemoteRef(refs, "", "origin")).To(BeEmpty())
	})
})

var _ = Describe("RemoteRefFor", func() {
	It("builds the remote-tracking ref", func() {
		Expect(gitx.RemoteRefFor("origin", "refs/heads/main")).To(Equal("refs/remotes/origin/main"))
	})

	It("rejects local upstreams", func() {
		Expect(gitx.RemoteRefFor(".", "refs/heads/main")).To(BeEmpty())
		Expect(gitx.RemoteRefFor("", "refs/heads/main")).To(BeEmpty())
	})
})

var _ = Describe("ParseLines", func() {
	It("drops blank lines", func() {
		Expect(gitx.ParseLines(" a \n\n b\n")).To(Equal([]string{"a", "b"}))
		Expect(gitx.ParseLines("  ")).To(BeNil())
	})
})
