package web

// limiter.go bounds how many previews decode at the same time.
//
// A preview holds the whole uploaded file and decodes it, so the server caps
// parallel previews with a semaphore. A request that cannot get a slot within
// maxWait fails with ErrTooManyPreviews instead of queueing indefinitely.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyPreviews is returned when every preview slot stays busy for the
// whole wait. Clients should retry after a short delay.
var ErrTooManyPreviews = errors.New("too many concurrent previews, please try again later")

// DefaultMaxConcurrentPreviews is used when no limit is configured.
const DefaultMaxConcurrentPreviews = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 10 * time.Second

// Limiter is a counting semaphore for preview requests.
type Limiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// NewLimiter allows at most maxConcurrent previews at once.
func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentPreviews
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &Limiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting up to the limiter's maxWait. The caller must
// Release the slot afterwards.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	default:
	}

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-timer.C:
		return ErrTooManyPreviews
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// Active returns the number of previews currently holding a slot.
func (l *Limiter) Active() int { return int(l.active.Load()) }

// Capacity returns the maximum number of concurrent previews.
func (l *Limiter) Capacity() int { return cap(l.slots) }

// WaitForDrain blocks until every slot is free or ctx is done. It does so by
// taking all the slots itself and handing them straight back.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	taken := 0
	defer func() {
		for ; taken > 0; taken-- {
			<-l.slots
		}
	}()

	for taken < cap(l.slots) {
		select {
		case l.slots <- struct{}{}:
			taken++
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// LimiterStatus is a snapshot of the limiter, reported by /healthz.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *Limiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.Active(),
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
	}
}
