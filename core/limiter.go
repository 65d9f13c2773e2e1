package core

import "sync"

// StepLimiter counts steps against a fixed maximum. The coordinator uses one
// per run for the step budget and workers use one per turn to bound their
// reasoning loop.
type StepLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewStepLimiter creates a limiter allowing max steps. If max <= 0, unlimited
// steps are allowed.
func NewStepLimiter(max int) *StepLimiter {
	return &StepLimiter{max: max}
}

// Take records one step and reports whether it is still within the limit.
// Once Take returns false, every later call returns false as well.
func (l *StepLimiter) Take() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	return l.max <= 0 || l.count <= l.max
}

// Count returns the number of steps taken so far, including a rejected one.
func (l *StepLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Remaining returns how many steps are left before hitting the limit.
func (l *StepLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max <= 0 {
		return -1 // unlimited
	}
	if l.count >= l.max {
		return 0
	}
	return l.max - l.count
}
