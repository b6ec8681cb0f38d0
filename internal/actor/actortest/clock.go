package actortest

import (
	"sort"
	"sync"
	"time"

	"github.com/justinchuby/vscode-interactive-graphviz/internal/actor"
)

// FakeClock is a manually driven Clock for tests.
//
// Timers created through AfterFunc fire only when Advance or Set moves the
// clock past their deadline. Callbacks run on the goroutine that moved the
// clock, outside the clock's lock, in deadline order.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int64
	timers []*fakeTimer
}

var _ actor.Clock = (*FakeClock)(nil)

type fakeTimer struct {
	clock *FakeClock
	seq   int64
	at    time.Time
	fn    func()
	// fired or stopped
	done bool
}

// NewFakeClock returns a FakeClock starting at the given time.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now implements actor.Clock.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc implements actor.Clock.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) actor.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, seq: c.seq, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Stop implements actor.Timer.
func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.clock.prune()
	return true
}

// Set moves the clock to t, firing every timer due at or before t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	due := c.collectDue()
	c.mu.Unlock()

	for _, tm := range due {
		tm.fn()
	}
}

// Advance moves time forward by d, firing due timers.
func (c *FakeClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

// PendingTimers returns the number of timers that have neither fired nor been
// stopped.
func (c *FakeClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// NextDeadline returns the earliest pending timer deadline.
func (c *FakeClock) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return time.Time{}, false
	}
	next := c.timers[0].at
	for _, t := range c.timers[1:] {
		if t.at.Before(next) {
			next = t.at
		}
	}
	return next, true
}

// collectDue marks and removes all timers due at c.now. Callers hold c.mu.
func (c *FakeClock) collectDue() []*fakeTimer {
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.done && !t.at.After(c.now) {
			t.done = true
			due = append(due, t)
		}
	}
	c.prune()
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	return due
}

func (c *FakeClock) prune() {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.done {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(c.timers); i++ {
		c.timers[i] = nil
	}
	c.timers = live
}
