package monitor

import (
	"context"
	"time"
)

type schedState int

const (
	stateNone schedState = iota
	stateSleeping
	stateRunning
)

func (s schedState) String() string {
	switch s {
	case stateSleeping:
		return "sleeping"
	case stateRunning:
		return "running"
	default:
		return "none"
	}
}

// State returns "none", "sleeping", or "running".
func (m *Monitor) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.String()
}

// Start arms the schedule: the first cycle runs after StartDelay, then one
// cycle every Delay until Stop or until ctx is done. Start on a started
// monitor does nothing and returns false.
func (m *Monitor) Start(ctx context.Context) bool {
	m.ctlMu.Lock()
	defer m.ctlMu.Unlock()

	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return false
	}
	prev := m.done
	m.mu.Unlock()
	// A stopped loop may still be unwinding its cancelled cycle.
	if prev != nil {
		<-prev
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.mu.Lock()
	m.cancel = cancel
	m.done = done
	m.state = stateSleeping
	select {
	case <-m.wake:
	default:
	}
	m.mu.Unlock()

	go m.loop(loopCtx, done)
	return true
}

// Stop cancels the schedule. A sleeping cycle never starts; a running cycle
// is cancelled and publishes nothing. Stop does not wait; use Wait.
func (m *Monitor) Stop() bool {
	m.ctlMu.Lock()
	defer m.ctlMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel == nil {
		return false
	}
	m.cancel()
	m.cancel = nil
	return true
}

// Wait blocks until the schedule loop has exited.
func (m *Monitor) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Refresh requests a cycle now. A sleeping monitor wakes immediately. During
// a running cycle the request is kept, and one more cycle runs as soon as
// the current one finishes; further requests made meanwhile coalesce into
// it. Refresh returns false, and does nothing, when the monitor is not
// started.
func (m *Monitor) Refresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel == nil || m.state == stateNone {
		return false
	}
	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.state = stateNone
		// The parent context ended without Stop.
		if m.done == done && m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
	}()

	delay := m.opts.StartDelay
	for {
		if !m.sleep(ctx, delay) {
			return
		}
		m.mu.Lock()
		m.state = stateRunning
		// Requests made before this cycle started are served by it.
		select {
		case <-m.wake:
		default:
		}
		m.mu.Unlock()

		_, err := m.RunCycle(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.log.WithError(err).Warn("cycle failed; rescheduling")
		}
		m.setState(stateSleeping)
		delay = m.opts.Delay
		m.log.WithField("delay", delay).Debug("next cycle scheduled")
	}
}

func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	case <-m.wake:
	}
	return ctx.Err() == nil
}

func (m *Monitor) setState(s schedState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}
