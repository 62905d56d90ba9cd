package monitor_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/repomonitor/internal/model"
	"github.com/skaphos/repomonitor/internal/monitor"
	"github.com/skaphos/repomonitor/internal/status"
)

var _ = Describe("Scheduling", func() {
	var (
		lister *fakeLister
		prober *fakeProber
		board  *status.Board
		m      *monitor.Monitor
	)

	newMonitor := func(opts monitor.Options) *monitor.Monitor {
		m = monitor.New(lister, prober, board, opts, nil)
		return m
	}

	BeforeEach(func() {
		lister = &fakeLister{repos: []model.Repository{repo("/a")}}
		prober = newFakeProber(map[string]outcome{"/a/.git": counts(1, 0)})
		board = status.NewBoard(nil)
		m = nil
	})

	AfterEach(func() {
		if m != nil {
			m.Stop()
			m.Wait()
		}
	})

	It("waits the start delay, then reschedules after every cycle", func() {
		newMonitor(monitor.Options{StartDelay: 20 * time.Millisecond, Delay: 20 * time.Millisecond})
		Expect(m.State()).To(Equal("none"))
		Expect(m.Start(context.Background())).To(BeTrue())
		Expect(m.State()).To(Equal("sleeping"))
		Expect(m.Cycles()).To(BeZero())
		Eventually(m.Cycles).Should(BeNumerically(">=", 3))
		Expect(board.Current().Status).To(Equal(model.StatusAhead))
	})

	It("ignores a second start", func() {
		newMonitor(monitor.Options{StartDelay: time.Hour})
		Expect(m.Start(context.Background())).To(BeTrue())
		Expect(m.Start(context.Background())).To(BeFalse())
	})

	It("keeps polling after failed cycles", func() {
		prober = newFakeProber(map[string]outcome{"/a/.git": {err: errors.New("network down")}})
		newMonitor(monitor.Options{StartDelay: time.Millisecond, Delay: 10 * time.Millisecond})
		m.Start(context.Background())
		Eventually(m.Cycles).Should(BeNumerically(">=", 3))
		Expect(board.Current().Status).To(Equal(model.StatusError))
	})

	It("keeps polling after listing failures", func() {
		lister.err = errors.New("workspace unavailable")
		newMonitor(monitor.Options{StartDelay: time.Millisecond, Delay: 10 * time.Millisecond})
		m.Start(context.Background())
		Eventually(m.Cycles).Should(BeNumerically(">=", 2))
	})

	It("wakes a sleeping monitor on refresh", func() {
		newMonitor(monitor.Options{StartDelay: time.Hour, Delay: time.Hour})
		Expect(m.Refresh()).To(BeFalse())
		m.Start(context.Background())

		Expect(m.Refresh()).To(BeTrue())
		Eventually(m.Cycles).Should(BeEquivalentTo(1))
		Eventually(m.State).Should(Equal("sleeping"))

		Expect(m.Refresh()).To(BeTrue())
		Eventually(m.Cycles).Should(BeEquivalentTo(2))
		Consistently(m.Cycles).WithTimeout(50 * time.Millisecond).Should(BeEquivalentTo(2))
	})

	It("runs one follow-up cycle for refreshes made while a cycle runs", func() {
		gate := make(chan struct{})
		prober.gate = gate
		newMonitor(monitor.Options{StartDelay: 0, Delay: time.Hour})
		m.Start(context.Background())

		Eventually(m.State).Should(Equal("running"))
		Expect(m.Refresh()).To(BeTrue())
		Expect(m.Refresh()).To(BeTrue())
		Expect(m.Cycles()).To(BeZero())
		close(gate)

		Eventually(m.Cycles).Should(BeEquivalentTo(2))
		Consistently(m.Cycles).WithTimeout(50 * time.Millisecond).Should(BeEquivalentTo(2))
		Expect(prober.maxInflight.Load()).To(BeEquivalentTo(1))
		Eventually(m.State).Should(Equal("sleeping"))
	})

	It("prevents a pending cycle from starting after stop", func() {
		newMonitor(monitor.Options{StartDelay: 30 * time.Millisecond, Delay: time.Hour})
		m.Start(context.Background())
		Expect(m.Stop()).To(BeTrue())
		Expect(m.Stop()).To(BeFalse())
		m.Wait()

		Consistently(m.Cycles).WithTimeout(80 * time.Millisecond).Should(BeZero())
		Expect(prober.totalCalls()).To(BeZero())
		Expect(m.State()).To(Equal("none"))
		Expect(m.Refresh()).To(BeFalse())
	})

	It("cancels an in-flight cycle on stop", func() {
		prober.gate = make(chan struct{})
		newMonitor(monitor.Options{StartDelay: 0, Delay: time.Hour})
		m.Start(context.Background())
		Eventually(prober.totalCalls).Should(Equal(1))

		m.Stop()
		m.Wait()
		Expect(m.Cycles()).To(BeZero())
		Expect(board.Current().Status).To(Equal(model.StatusError))
	})

	It("can be started again after stop", func() {
		newMonitor(monitor.Options{StartDelay: time.Hour, Delay: time.Hour})
		m.Start(context.Background())
		m.Stop()
		Expect(m.Start(context.Background())).To(BeTrue())
		Expect(m.Refresh()).To(BeTrue())
		Eventually(m.Cycles).Should(BeEquivalentTo(1))
	})

	It("stops when the parent context ends", func() {
		ctx, cancel := context.WithCancel(context.Background())
		newMonitor(monitor.Options{StartDelay: time.Hour})
		m.Start(ctx)
		cancel()
		m.Wait()
		Expect(m.State()).To(Equal("none"))
		Expect(m.Start(context.Background())).To(BeTrue())
	})
})
