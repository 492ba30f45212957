// Package clock abstracts timer creation so heartbeat and idle-close
// behavior can be tested against a controllable clock.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a cancelable pending callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the callback was
	// prevented from running.
	Stop() bool
}

// Clock creates timers.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// New returns the real clock backed by the time package.
func New() Clock { return realClock{} }

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Mock is a manually advanced Clock for tests.
type Mock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*mockTimer
}

type mockTimer struct {
	clock    *Mock
	deadline time.Duration
	f        func()
	stopped  bool
}

// NewMock returns a Mock at time zero.
func NewMock() *Mock { return &Mock{} }

func (m *Mock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &mockTimer{clock: m, deadline: m.now + d, f: f}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the mock clock forward, firing due timers in deadline
// order. Callbacks run on the calling goroutine, outside the clock lock,
// so they may arm new timers.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += d
	m.mu.Unlock()

	for {
		t := m.nextDue()
		if t == nil {
			return
		}
		t.f()
	}
}

func (m *Mock) nextDue() *mockTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	due := make([]*mockTimer, 0, len(m.timers))
	rest := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped && t.deadline <= m.now {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool { return due[i].deadline < due[j].deadline })

	m.timers = append(rest, due[1:]...)
	return due[0]
}

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}
