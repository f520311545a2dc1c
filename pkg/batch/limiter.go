package batch

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the default number of concurrent fetch chains.
const DefaultConcurrency = 10

// Limiter is a counting permit structure bounding in-flight fetch chains.
// It is safe for concurrent use and is meant to be shared process-wide.
type Limiter struct {
	sem    *semaphore.Weighted
	size   int
	parent *Limiter

	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewLimiter creates a limiter with n permits; n <= 0 uses DefaultConcurrency.
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		n = DefaultConcurrency
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n)), size: n}
}

// Sub returns a limiter allowing at most n of l's permits to be held through
// it. Permits taken through the sub-limiter also count against l. n <= 0 or
// n >= l.Size() returns l itself.
func (l *Limiter) Sub(n int) *Limiter {
	if n <= 0 || n >= l.size {
		return l
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n)), size: n, parent: l}
}

// Acquire blocks until a permit is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if l.parent != nil {
		if err := l.parent.Acquire(ctx); err != nil {
			l.sem.Release(1)
			return err
		}
	}
	n := l.inFlight.Add(1)
	for {
		peak := l.peak.Load()
		if n <= peak || l.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if l.parent == nil {
		openalexBatchInFlight.Inc()
	}
	return nil
}

// Release returns a permit taken by Acquire.
func (l *Limiter) Release() {
	l.inFlight.Add(-1)
	if l.parent != nil {
		l.parent.Release()
	} else {
		openalexBatchInFlight.Dec()
	}
	l.sem.Release(1)
}

// Size returns the number of permits.
func (l *Limiter) Size() int {
	return l.size
}

// InFlight returns the number of permits currently held.
func (l *Limiter) InFlight() int {
	return int(l.inFlight.Load())
}

// Peak returns the highest number of permits held at once.
func (l *Limiter) Peak() int {
	return int(l.peak.Load())
}
