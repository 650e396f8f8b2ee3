package controller

import (
	"sync"
	"time"
)

// restartThrottle paces recovery attempts. Each recorded restart within the
// window counts toward the threshold; once reached, Penalty reports an extra
// delay to add on top of the settle delay so a crash-looping sidecar is not
// hammered. A session that comes back Ready resets the count.
type restartThrottle struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	penalty   time.Duration

	count     int
	lastStart time.Time
}

func newRestartThrottle(threshold int, window, penalty time.Duration) *restartThrottle {
	return &restartThrottle{
		threshold: threshold,
		window:    window,
		penalty:   penalty,
	}
}

// RecordRestart notes that a recovery is starting now and returns the extra
// delay the caller should add to its settle delay.
func (t *restartThrottle) RecordRestart(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.lastStart.IsZero() && now.Sub(t.lastStart) > t.window {
		t.count = 0
	}
	t.lastStart = now
	t.count++

	if t.count >= t.threshold {
		return t.penalty
	}
	return 0
}

// Reset clears the restart count. Called when the session reaches Ready.
func (t *restartThrottle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count = 0
	t.lastStart = time.Time{}
}

func (t *restartThrottle) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}
