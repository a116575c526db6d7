package manager

import (
	"context"
	"time"
)

// Acquire waits for the single in-flight slot. ctx is honored only while
// waiting. The returned release func must be called exactly once.
func (s *SharedInstance) Acquire(ctx context.Context) (func(), error) {
	start := time.Now()
	select {
	case s.genCh <- struct{}{}:
	case <-ctx.Done():
		return func() {}, ctx.Err()
	}
	if s.freed {
		<-s.genCh
		return func() {}, ErrClosed
	}
	s.metrics.SlotAcquired(time.Since(start))
	released := false
	return func() {
		if released {
			return
		}
		released = true
		s.metrics.SlotReleased()
		<-s.genCh
	}, nil
}

// Busy reports whether a generation currently holds the slot.
func (s *SharedInstance) Busy() bool { return len(s.genCh) > 0 }
