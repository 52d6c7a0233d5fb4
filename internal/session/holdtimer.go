package session

import (
	"errors"
	"sync"
	"time"
)

var ErrTimerExpired = errors.New("hold timer already expired")

// HoldTimer is the single countdown clock for one reservation session. It
// ticks once per second, can pause and resume without losing the remaining
// budget, and fires its expiration callback exactly once. A tick queued
// behind a pause is discarded, not applied late.
type HoldTimer struct {
	mu        sync.Mutex
	remaining int
	paused    bool
	expired   bool
	stopped   bool

	onExpire func()
	stopCh   chan struct{}
}

// NewHoldTimer creates a timer that will invoke onExpire when the budget
// reaches zero. The callback runs on the timer goroutine; a panic inside it
// is swallowed and the timer still lands in the expired state.
func NewHoldTimer(onExpire func()) *HoldTimer {
	return &HoldTimer{onExpire: onExpire}
}

// Start sets the budget and begins ticking
func (t *HoldTimer) Start(totalSeconds int) error {
	t.mu.Lock()
	if t.expired {
		t.mu.Unlock()
		return ErrTimerExpired
	}
	if t.stopCh != nil {
		close(t.stopCh)
	}
	t.remaining = totalSeconds
	t.paused = false
	t.stopped = false
	stopCh := make(chan struct{})
	t.stopCh = stopCh
	t.mu.Unlock()

	go t.run(stopCh)
	return nil
}

// Reset replaces the budget for a new hold. Only valid while unexpired.
func (t *HoldTimer) Reset(totalSeconds int) error {
	return t.Start(totalSeconds)
}

func (t *HoldTimer) run(stopCh chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if done := t.tick(); done {
				return
			}
		}
	}
}

// tick applies one second of elapsed time. The paused and expired checks
// share the mutex with Pause and Stop, so a tick that was already queued
// when Pause took effect is discarded here rather than applied.
func (t *HoldTimer) tick() bool {
	t.mu.Lock()
	if t.paused || t.expired || t.stopped {
		done := t.expired || t.stopped
		t.mu.Unlock()
		return done
	}

	t.remaining--
	if t.remaining > 0 {
		t.mu.Unlock()
		return false
	}

	// zero crossing: flip to expired under the lock so a duplicate tick
	// can never fire the callback a second time
	t.remaining = 0
	t.expired = true
	cb := t.onExpire
	t.mu.Unlock()

	if cb != nil {
		t.fire(cb)
	}
	return true
}

// fire runs the expiration callback, containing any panic it raises. The
// expired transition has already happened and is not retried.
func (t *HoldTimer) fire(cb func()) {
	defer func() { _ = recover() }()
	cb()
}

// Pause stops the countdown without resetting the remaining value.
// Consecutive calls are idempotent.
func (t *HoldTimer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.expired {
		return
	}
	t.paused = true
}

// Resume continues the countdown from where it left off
func (t *HoldTimer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.expired {
		return
	}
	t.paused = false
}

// Stop halts the timer permanently without expiring it. Used when a session
// completes or is cancelled before the hold runs out.
func (t *HoldTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.stopCh != nil {
		close(t.stopCh)
		t.stopCh = nil
	}
}

// Remaining returns the seconds left on the hold
func (t *HoldTimer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Paused reports whether the countdown is paused
func (t *HoldTimer) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Expired reports whether the hold has run out
func (t *HoldTimer) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expired
}
