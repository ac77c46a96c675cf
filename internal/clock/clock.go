package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts wall time so timing-sensitive logic (scan bursts, QRIS
// expiry, payment processing delays) can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// Timer is a cancellable handle for a deferred callback.
type Timer interface {
	Stop() bool
}

// Scheduler issues deferred callbacks. The session controller owns every
// handle it gets back and must stop it before starting a competing attempt.
type Scheduler interface {
	Clock
	AfterFunc(d time.Duration, fn func()) Timer
}

type System struct{}

func (System) Now() time.Time {
	return time.Now()
}

func (System) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Manual is a test scheduler. Time only moves when Advance is called; due
// callbacks fire synchronously on the advancing goroutine, which matches the
// single-threaded event model of a POS terminal.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	timers map[int]*manualTimer
}

type manualTimer struct {
	owner   *Manual
	id      int
	due     time.Time
	fn      func()
	stopped bool
}

func NewManual(start time.Time) *Manual {
	return &Manual{
		now:    start,
		timers: make(map[int]*manualTimer),
	}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	t := &manualTimer{
		owner: m,
		id:    m.nextID,
		due:   m.now.Add(d),
		fn:    fn,
	}
	m.timers[t.id] = t
	return t
}

// Advance moves the clock forward and fires every callback that came due, in
// due order. Callbacks run without the internal lock held so they may
// schedule or stop other timers.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	due := make([]*manualTimer, 0, len(m.timers))
	for _, t := range m.timers {
		if !t.due.After(m.now) {
			due = append(due, t)
		}
	}
	for _, t := range due {
		delete(m.timers, t.id)
	}
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].due.Before(due[j].due) })
	for _, t := range due {
		t.fn()
	}
}

func (t *manualTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()

	if t.stopped {
		return false
	}
	t.stopped = true
	if _, pending := t.owner.timers[t.id]; !pending {
		return false
	}
	delete(t.owner.timers, t.id)
	return true
}
