// Package event provides the wait/wake primitive kernel code blocks on.
package event

import (
	"context"
	"sync"
)

// Event wakes every waiter each time Wake is called. Waiters re-check their
// own condition after waking, so a Wake between the check and the wait is
// never lost. The zero value is ready to use.
type Event struct {
	mu sync.Mutex
	ch chan struct{}
}

func (e *Event) channel() chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ch == nil {
		e.ch = make(chan struct{})
	}
	return e.ch
}

// Wake releases all current waiters.
func (e *Event) Wake() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ch != nil {
		close(e.ch)
		e.ch = nil
	}
}

// Wait blocks until cond returns true or ctx is done. cond is evaluated after
// registering for wake-ups.
func (e *Event) Wait(ctx context.Context, cond func() bool) error {
	for {
		ch := e.channel()
		if cond() {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
