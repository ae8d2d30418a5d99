package scheduler

import (
	"fmt"
	"sync"
	"time"
)

const (
	defaultMaxInactive         = 6 * time.Hour
	defaultMaxConsecutiveFails = 5
)

// healthState tracks pipeline progress. A success is a tick that actually
// generated or published a draft; idle ticks touch nothing. Two independent
// thresholds trip it: too long without such a success, or too many failed
// ticks in a row.
type healthState struct {
	mu sync.Mutex

	maxInactive  time.Duration
	maxFails     int
	lastSuccess  time.Time
	consecutive  int
	started      time.Time
	hasSucceeded bool
}

func newHealthState(maxInactive time.Duration, maxFails int) *healthState {
	if maxInactive <= 0 {
		maxInactive = defaultMaxInactive
	}
	if maxFails <= 0 {
		maxFails = defaultMaxConsecutiveFails
	}
	return &healthState{
		maxInactive: maxInactive,
		maxFails:    maxFails,
		started:     time.Now(),
	}
}

func (h *healthState) recordSuccess(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastSuccess = now
	h.hasSucceeded = true
	h.consecutive = 0
}

func (h *healthState) recordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutive++
}

// failing returns a non-empty reason when a threshold is exceeded.
func (h *healthState) failing(now time.Time) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.consecutive >= h.maxFails {
		return fmt.Sprintf("%d consecutive failed cycles", h.consecutive)
	}

	reference := h.started
	if h.hasSucceeded {
		reference = h.lastSuccess
	}
	if inactive := now.Sub(reference); inactive > h.maxInactive {
		return fmt.Sprintf("no generated or published draft for %s", inactive.Round(time.Second))
	}
	return ""
}
