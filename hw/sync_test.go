package hw_test

import (
	"testing"
	"time"

	"github.com/clktmr/de/hw"
)

func TestCond(t *testing.T) {
	var c hw.Cond

	if c.Wait(time.Millisecond) {
		t.Fatal("wait without signal should time out")
	}

	ch := c.Next()
	c.Signal()
	if !hw.WaitChan(ch, time.Second) {
		t.Fatal("signal lost")
	}

	// Signals without waiters are not remembered.
	c.Signal()
	if c.Wait(time.Millisecond) {
		t.Fatal("stale signal delivered")
	}

	done := make(chan bool)
	go func() { done <- c.Wait(time.Second) }()
	for {
		c.Signal()
		select {
		case ok := <-done:
			if !ok {
				t.Fatal("waiter timed out")
			}
			return
		case <-time.After(time.Millisecond):
		}
	}
}
