package core

import (
	"errors"
	"fmt"
)

// ErrIterationLimit is returned once a limiter exceeded its ceiling.
var ErrIterationLimit = errors.New("iteration limit reached")

// IterationLimiter enforces a ceiling on the number of model round trips a
// single turn may perform. It is owned by one turn and not shared.
type IterationLimiter struct {
	max   int
	count int
}

// NewIterationLimiter creates a limiter. If max <= 0, unlimited calls are allowed.
func NewIterationLimiter(max int) *IterationLimiter {
	return &IterationLimiter{max: max}
}

// Increment increases the counter and returns ErrIterationLimit if the ceiling is exceeded.
func (l *IterationLimiter) Increment() error {
	l.count++
	if l.max > 0 && l.count > l.max {
		return fmt.Errorf("%w: %d", ErrIterationLimit, l.max)
	}
	return nil
}

// Count returns the number of increments so far.
func (l *IterationLimiter) Count() int { return l.count }

// Remaining returns how many increments are left, or -1 when unlimited.
func (l *IterationLimiter) Remaining() int {
	if l.max <= 0 {
		return -1
	}
	if r := l.max - l.count; r > 0 {
		return r
	}
	return 0
}
