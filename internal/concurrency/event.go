package concurrency

import "sync"

// Event is a one-shot broadcast signal, used by Server.GracefulStop to
// tell handleStream that shutdown has started, so calls arriving after
// it are refused. Calls already past that check and Serve's accept
// loop do not watch it.
type Event struct {
	c chan struct{}
	o sync.Once
}

func NewEvent() *Event {
	return &Event{c: make(chan struct{})}
}

// Fire closes the event's channel, reporting whether this call was the
// one that fired it.
func (e *Event) Fire() bool {
	fired := false
	e.o.Do(func() {
		close(e.c)
		fired = true
	})
	return fired
}

func (e *Event) Done() <-chan struct{} { return e.c }
