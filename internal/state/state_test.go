package state_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/repomonitor/internal/model"
	"github.com/skaphos/repomonitor/internal/state"
)

var _ = Describe("State", func() {
	It("saves and loads the last snapshot", func() {
		path := filepath.Join(GinkgoT().TempDir(), "nested", "state.yaml")
		st := &state.State{
			PID:       42,
			UpdatedAt: time.Now().UTC().Truncate(time.Second),
			Snapshot: model.Snapshot{
				Status: model.StatusDiverged,
				Ahead:  2,
				Behind: 1,
				Repos: []model.RepoResult{
					{RepoID: "/src/a/.git", Path: "/src/a", State: model.BranchState{TrackingBranchAhead: 2, RemoteBranchAhead: 1}},
				},
			},
		}
		Expect(state.Save(st, path)).To(Succeed())

		loaded, err := state.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.PID).To(Equal(42))
		Expect(loaded.UpdatedAt.Equal(st.UpdatedAt)).To(BeTrue())
		Expect(loaded.Snapshot.Status).To(Equal(model.StatusDiverged))
		Expect(loaded.FindRepo("/src/a/.git")).NotTo(BeNil())
		Expect(loaded.FindRepo("/src/b/.git")).To(BeNil())
	})

	It("finds a result by id, path, or project", func() {
		st := &state.State{Snapshot: model.Snapshot{Repos: []model.RepoResult{
			{RepoID: "/src/a/.git", Path: "/src/a", Projects: []string{"/src/a", "/src/a/tools"}},
			{RepoID: "/src/b/.git", Path: "/src/b"},
		}}}
		Expect(st.FindRepo("/src/b/.git").Path).To(Equal("/src/b"))
		Expect(st.FindRepo("/src/b/").RepoID).To(Equal("/src/b/.git"))
		Expect(st.FindRepo("/src/a/tools").RepoID).To(Equal("/src/a/.git"))
		Expect(st.FindRepo("/src/c")).To(BeNil())
		Expect(st.FindRepo("")).To(BeNil())
	})

	It("leaves no temporary files behind", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "state.yaml")
		Expect(state.Save(&state.State{PID: 1}, path)).To(Succeed())
		Expect(state.Save(&state.State{PID: 2}, path)).To(Succeed())
		entries, err := os.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
	})

	It("rejects a nil state", func() {
		Expect(state.Save(nil, filepath.Join(GinkgoT().TempDir(), "state.yaml"))).NotTo(Succeed())
	})

	It("reports a missing file", func() {
		_, err := state.Load(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("detects stale state", func() {
		now := time.Now()
		st := &state.State{UpdatedAt: now.Add(-3 * time.Hour)}
		Expect(st.Stale(now, 2*time.Hour)).To(BeTrue())
		Expect(st.Stale(now, 4*time.Hour)).To(BeFalse())
		Expect(st.Stale(now, 0)).To(BeFalse())
		Expect((&state.State{}).Stale(now, time.Hour)).To(BeTrue())
	})
})

var _ = Describe("Writer", func() {
	It("saves each published snapshot and releases on exit", func() {
		path := filepath.Join(GinkgoT().TempDir(), "state.yaml")
		w := state.NewWriter(path, 1234)
		Expect(w.Path()).To(Equal(path))

		Expect(w.StatusChanged(model.Snapshot{Status: model.StatusBusy})).To(Succeed())
		loaded, err := state.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.PID).To(Equal(1234))
		Expect(loaded.StartedAt).NotTo(BeZero())
		Expect(loaded.Snapshot.Status).To(Equal(model.StatusBusy))

		Expect(w.StatusChanged(model.Snapshot{Status: model.StatusAhead, Ahead: 3})).To(Succeed())
		Expect(w.Release()).To(Succeed())
		loaded, err = state.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.PID).To(BeZero())
		Expect(loaded.Snapshot.Ahead).To(Equal(3))
	})
})
