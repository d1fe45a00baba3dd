package session

import (
	"sync"
	"time"
)

type TimerPhase string

const (
	TimerIdle    TimerPhase = "idle"
	TimerArmed   TimerPhase = "armed"
	TimerRunning TimerPhase = "running"
	TimerExpired TimerPhase = "expired"
)

type timerEvent int

const (
	timerArm timerEvent = iota
	timerStart
	timerTick
	timerExpire
	timerReset
)

var timerTransitions = map[TimerPhase]map[timerEvent]TimerPhase{
	TimerIdle: {
		timerArm:   TimerArmed,
		timerReset: TimerIdle,
	},
	TimerArmed: {
		timerArm:   TimerArmed,
		timerStart: TimerRunning,
		timerReset: TimerIdle,
	},
	TimerRunning: {
		timerTick:   TimerRunning,
		timerExpire: TimerExpired,
		timerReset:  TimerIdle,
	},
	TimerExpired: {
		timerArm:   TimerArmed,
		timerReset: TimerIdle,
	},
}

// TimerState is a point-in-time view of the countdown.
type TimerState struct {
	Phase     TimerPhase `json:"phase"`
	Remaining int        `json:"remaining_seconds"`
	Active    bool       `json:"active"`
	Expired   bool       `json:"expired"`
}

// Timer counts down the active timed question one second at a time.
// The expiry callback runs at most once per Arm, outside the timer's lock.
type Timer struct {
	mu        sync.Mutex
	clock     Clock
	phase     TimerPhase
	remaining int
	onExpire  func()
	ticker    Stopper
	// generation invalidates ticks from a ticker that was already stopped.
	generation int
}

func NewTimer(clock Clock) *Timer {
	return &Timer{clock: clock, phase: TimerIdle}
}

func (t *Timer) fire(ev timerEvent) bool {
	next, ok := timerTransitions[t.phase][ev]
	if !ok {
		return false
	}
	t.phase = next
	return true
}

// Arm loads a countdown of seconds without starting it.
func (t *Timer) Arm(seconds int, onExpire func()) error {
	if seconds <= 0 {
		return ErrInvalidDuration
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.fire(timerArm) {
		return ErrInvalidTransition
	}
	t.remaining = seconds
	t.onExpire = onExpire
	return nil
}

// Start begins the countdown. It reports false, and does nothing, unless
// the timer is armed.
func (t *Timer) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.fire(timerStart) {
		return false
	}
	t.generation++
	gen := t.generation
	t.ticker = t.clock.Every(time.Second, func() { t.tick(gen) })
	return true
}

func (t *Timer) tick(gen int) {
	t.mu.Lock()
	if gen != t.generation || !t.fire(timerTick) {
		t.mu.Unlock()
		return
	}

	t.remaining--
	if t.remaining > 0 {
		t.mu.Unlock()
		return
	}

	t.remaining = 0
	t.fire(timerExpire)
	t.stopTicker()
	cb := t.onExpire
	t.onExpire = nil
	t.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Reset stops any countdown and returns to idle.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.fire(timerReset)
	t.stopTicker()
	t.generation++
	t.remaining = 0
	t.onExpire = nil
}

func (t *Timer) stopTicker() {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
}

func (t *Timer) Snapshot() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()

	return TimerState{
		Phase:     t.phase,
		Remaining: t.remaining,
		Active:    t.phase == TimerRunning,
		Expired:   t.phase == TimerExpired,
	}
}
