// Package concurrency holds the small atomic primitives shared by the
// server's call-concurrency limit and its graceful-stop signal.
package concurrency

import "sync/atomic"

// Semaphore bounds concurrent in-flight calls (spec.md §4.5's
// "a server may bound concurrent calls"), matching the
// add(-1)/block-on-empty-channel/add(1)/unblock shape the teacher's
// handler-quota primitive used to throttle concurrent stream handling.
type Semaphore struct {
	unbounded bool
	n         atomic.Int64
	wait      chan struct{}
}

// NewSemaphore returns a Semaphore with n permits. n <= 0 means
// unbounded: Acquire/Release become no-ops.
func NewSemaphore(n int) *Semaphore {
	s := &Semaphore{wait: make(chan struct{}, 1)}
	if n <= 0 {
		s.unbounded = true
		return s
	}
	s.n.Store(int64(n))
	return s
}

func (s *Semaphore) Acquire() {
	if s.unbounded {
		return
	}
	if s.n.Add(-1) < 0 {
		// Ran out of quota; block until a release happens.
		<-s.wait
	}
}

func (s *Semaphore) Release() {
	if s.unbounded {
		return
	}
	if s.n.Add(1) <= 0 {
		// An acquire was waiting on us.
		s.wait <- struct{}{}
	}
}
