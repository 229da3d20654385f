package update

import (
	"context"
	"sync"
	"time"
)

// Timer is a sleep that another goroutine can cut short.
// Cancel wakes every Sleep in progress. The zero value is ready to use.
type Timer struct {
	mu      sync.Mutex
	gen     uint64
	wake    chan struct{}
	pending int
}

// Sleep blocks for d. It reports true when d elapsed and false when the
// sleep was cancelled or ctx ended. d <= 0 returns true at once and cannot
// be cancelled.
func (t *Timer) Sleep(ctx context.Context, d time.Duration) bool {
	return t.SleepSince(ctx, t.Mark(), d)
}

// Mark returns the current cancel generation for SleepSince.
func (t *Timer) Mark() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

// SleepSince is Sleep that also counts a Cancel issued after mark was taken,
// so a cancel racing with the start of the sleep is not lost.
func (t *Timer) SleepSince(ctx context.Context, mark uint64, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t.mu.Lock()
	if t.gen != mark {
		t.mu.Unlock()
		return false
	}
	if t.wake == nil {
		t.wake = make(chan struct{})
	}
	wake := t.wake
	t.pending++
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.pending--
		t.mu.Unlock()
	}()

	tm := time.NewTimer(d)
	defer tm.Stop()
	select {
	case <-tm.C:
		return true
	case <-wake:
		return false
	case <-ctx.Done():
		return false
	}
}

// Cancel wakes all pending sleeps and returns how many there were.
func (t *Timer) Cancel() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.pending
	t.gen++
	if t.wake != nil {
		close(t.wake)
	}
	t.wake = make(chan struct{})
	return n
}

// Pending reports how many sleeps are in progress.
func (t *Timer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}
