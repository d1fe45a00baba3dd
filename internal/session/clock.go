package session

import (
	"sort"
	"sync"
	"time"
)

// Clock schedules the periodic and one-shot callbacks the session relies on.
type Clock interface {
	Now() time.Time
	// Every calls fn once per period until the returned Stopper is stopped.
	Every(period time.Duration, fn func()) Stopper
	// AfterFunc calls fn once after d unless stopped first.
	AfterFunc(d time.Duration, fn func()) Stopper
}

type Stopper interface {
	Stop()
}

// RealClock is backed by the runtime timers.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Every(period time.Duration, fn func()) Stopper {
	t := &realTicker{ticker: time.NewTicker(period), done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-t.ticker.C:
				fn()
			case <-t.done:
				return
			}
		}
	}()
	return t
}

func (RealClock) AfterFunc(d time.Duration, fn func()) Stopper {
	return realTimer{time.AfterFunc(d, fn)}
}

type realTicker struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *realTicker) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() { r.t.Stop() }

// ManualClock only moves when Advance is called. Due callbacks run
// synchronously on the caller's goroutine, in deadline order, with no clock
// lock held so they may schedule or stop other callbacks.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	events map[int]*manualEvent
}

type manualEvent struct {
	id     int
	at     time.Time
	period time.Duration
	fn     func()
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start, events: make(map[int]*manualEvent)}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Every(period time.Duration, fn func()) Stopper {
	return c.schedule(period, period, fn)
}

func (c *ManualClock) AfterFunc(d time.Duration, fn func()) Stopper {
	return c.schedule(d, 0, fn)
}

func (c *ManualClock) schedule(d, period time.Duration, fn func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	ev := &manualEvent{id: c.nextID, at: c.now.Add(d), period: period, fn: fn}
	c.events[ev.id] = ev
	return manualStopper{clock: c, id: ev.id}
}

// Pending reports how many callbacks are scheduled.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Advance moves the clock forward by d, firing everything that falls due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		ev := c.nextDue(target)
		if ev == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = ev.at
		if ev.period > 0 {
			ev.at = ev.at.Add(ev.period)
		} else {
			delete(c.events, ev.id)
		}
		fn := ev.fn
		c.mu.Unlock()

		fn()
	}
}

func (c *ManualClock) nextDue(target time.Time) *manualEvent {
	due := make([]*manualEvent, 0, len(c.events))
	for _, ev := range c.events {
		if !ev.at.After(target) {
			due = append(due, ev)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].id < due[j].id
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}

type manualStopper struct {
	clock *ManualClock
	id    int
}

func (s manualStopper) Stop() {
	s.clock.mu.Lock()
	defer s.clock.mu.Unlock()
	delete(s.clock.events, s.id)
}
