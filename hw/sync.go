package hw

import (
	"sync/atomic"
	"time"
)

// Cond wakes up goroutines waiting for an event that is signalled from
// interrupt context. Signal neither blocks nor takes locks. A waiter only sees
// signals that happen after it called Next or Wait.
type Cond struct {
	ch atomic.Pointer[chan struct{}]
}

// Next returns a channel that is closed on the next call to Signal.
func (c *Cond) Next() <-chan struct{} {
	for {
		if p := c.ch.Load(); p != nil {
			return *p
		}
		ch := make(chan struct{})
		if c.ch.CompareAndSwap(nil, &ch) {
			return ch
		}
	}
}

// Signal wakes up all current waiters.
func (c *Cond) Signal() {
	if p := c.ch.Swap(nil); p != nil {
		close(*p)
	}
}

// Wait blocks until the next Signal or until timeout passed. Returns false on
// timeout.
func (c *Cond) Wait(timeout time.Duration) bool {
	return WaitChan(c.Next(), timeout)
}

// WaitChan waits for ch to be closed or until timeout passed.
func WaitChan(ch <-chan struct{}, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}
