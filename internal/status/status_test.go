package status_test

import (
	"bytes"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/skaphos/repomonitor/internal/model"
	"github.com/skaphos/repomonitor/internal/status"
)

type recorder struct {
	mu   sync.Mutex
	seen []model.Snapshot
}

func (r *recorder) StatusChanged(s model.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
	return nil
}

func (r *recorder) statuses() []model.OverallStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.OverallStatus, 0, len(r.seen))
	for _, s := range r.seen {
		out = append(out, s.Status)
	}
	return out
}

func publishCounts(b *status.Board, ahead, behind int) {
	b.Publish(model.Snapshot{Status: model.DeriveStatus(ahead, behind), Ahead: ahead, Behind: behind})
}

var _ = Describe("Board", func() {
	var (
		logs  *bytes.Buffer
		board *status.Board
	)

	BeforeEach(func() {
		logs = &bytes.Buffer{}
		log := logrus.New()
		log.SetOutput(logs)
		board = status.NewBoard(log)
	})

	It("starts in the error state", func() {
		current := board.Current()
		Expect(current.Status).To(Equal(model.StatusError))
		Expect(current.Ahead).To(BeZero())
		Expect(current.UpdatedAt).NotTo(BeZero())
	})

	It("notifies a new listener immediately", func() {
		rec := &recorder{}
		board.Subscribe(rec)
		Expect(rec.statuses()).To(Equal([]model.OverallStatus{model.StatusError}))
	})

	It("derives the published status from counts", func() {
		rec := &recorder{}
		board.Subscribe(rec)
		publishCounts(board, 2, 0)
		publishCounts(board, 2, 3)
		publishCounts(board, 0, 0)
		Expect(rec.statuses()).To(Equal([]model.OverallStatus{
			model.StatusError, model.StatusAhead, model.StatusDiverged, model.StatusSynced,
		}))
		Expect(board.Current().Status).To(Equal(model.StatusSynced))
	})

	It("keeps the previous results while busy", func() {
		board.Publish(model.Snapshot{
			Status: model.StatusBehind,
			Behind: 2,
			Repos:  []model.RepoResult{{RepoID: "/a/.git"}},
		})
		board.SetBusy()
		current := board.Current()
		Expect(current.Status).To(Equal(model.StatusBusy))
		Expect(current.Behind).To(Equal(2))
		Expect(current.Repos).To(HaveLen(1))
	})

	It("stops notifying after unsubscribe", func() {
		rec := &recorder{}
		unsubscribe := board.Subscribe(rec)
		unsubscribe()
		unsubscribe()
		publishCounts(board, 1, 0)
		Expect(rec.statuses()).To(HaveLen(1))
	})

	It("isolates failing and panicking listeners", func() {
		board.Subscribe(status.ListenerFunc(func(model.Snapshot) error {
			return errors.New("sink unavailable")
		}))
		board.Subscribe(status.ListenerFunc(func(s model.Snapshot) error {
			if s.Status == model.StatusAhead {
				panic("listener bug")
			}
			return nil
		}))
		rec := &recorder{}
		board.Subscribe(rec)

		Expect(func() { publishCounts(board, 1, 0) }).NotTo(Panic())
		Expect(rec.statuses()).To(ContainElement(model.StatusAhead))
		Expect(logs.String()).To(ContainSubstring("sink unavailable"))
		Expect(logs.String()).To(ContainSubstring("listener bug"))
	})

	It("hands listeners a copy of the results", func() {
		board.Subscribe(status.ListenerFunc(func(s model.Snapshot) error {
			if len(s.Repos) > 0 {
				s.Repos[0].RepoID = "mutated"
			}
			return nil
		}))
		board.Publish(model.Snapshot{Status: model.StatusSynced, Repos: []model.RepoResult{{RepoID: "/a/.git"}}})
		Expect(board.Current().Repos[0].RepoID).To(Equal("/a/.git"))
	})

	It("queues publishes made by a listener behind the current delivery", func() {
		rec := &recorder{}
		board.Subscribe(rec)
		board.Subscribe(status.ListenerFunc(func(s model.Snapshot) error {
			if s.Status == model.StatusSynced {
				publishCounts(board, 1, 0)
			}
			return nil
		}))

		done := make(chan struct{})
		go func() {
			defer close(done)
			publishCounts(board, 0, 0)
		}()
		Eventually(done).Should(BeClosed())
		Expect(rec.statuses()).To(Equal([]model.OverallStatus{
			model.StatusError, model.StatusSynced, model.StatusAhead,
		}))
		Expect(board.Current().Status).To(Equal(model.StatusAhead))
	})

	It("lets a listener subscribe another listener", func() {
		late := &recorder{}
		var once sync.Once
		board.Subscribe(status.ListenerFunc(func(model.Snapshot) error {
			once.Do(func() { board.Subscribe(late) })
			return nil
		}))

		done := make(chan struct{})
		go func() {
			defer close(done)
			publishCounts(board, 0, 2)
		}()
		Eventually(done).Should(BeClosed())
		Expect(late.statuses()).NotTo(BeEmpty())
		Expect(late.statuses()[len(late.statuses())-1]).To(Equal(model.StatusBehind))
	})

	It("drops queued notifications for a listener unsubscribed mid-delivery", func() {
		rec := &recorder{}
		var unsubscribe func()
		board.Subscribe(status.ListenerFunc(func(s model.Snapshot) error {
			if s.Status == model.StatusSynced && unsubscribe != nil {
				unsubscribe()
			}
			return nil
		}))
		unsubscribe = board.Subscribe(rec)

		publishCounts(board, 0, 0)
		Expect(rec.statuses()).To(Equal([]model.OverallStatus{model.StatusError}))
	})

	It("is safe for concurrent readers", func() {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					_ = board.Current()
				}
			}()
		}
		for j := 0; j < 50; j++ {
			publishCounts(board, j, 0)
		}
		wg.Wait()
		Expect(board.Current().Ahead).To(Equal(49))
	})
})

var _ = DescribeTable("Summary",
	func(s model.Snapshot, want string) {
		Expect(status.Summary(s)).To(Equal(want))
	},
	Entry("synced", model.Snapshot{Status: model.StatusSynced}, "Repository: Synchronized"),
	Entry("ahead", model.Snapshot{Status: model.StatusAhead, Ahead: 3}, "Repository: 3 Ahead"),
	Entry("behind", model.Snapshot{Status: model.StatusBehind, Behind: 2}, "Repository: 2 Behind"),
	Entry("diverged", model.Snapshot{Status: model.StatusDiverged, Ahead: 1, Behind: 4}, "Repository: 1 Ahead, 4 Behind"),
	Entry("busy", model.Snapshot{Status: model.StatusBusy}, "Repository: Refreshing"),
	Entry("error", model.Snapshot{Status: model.StatusError}, "Repository Error: See Log for Information"),
)
