// ABOUTME: Repeating scheduled callbacks with explicit cancel handles
// ABOUTME: Driven by an injectable clock so tests can advance virtual time
package sched

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Task is a running repeating callback
type Task struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Every calls fn with the tick time every interval until Stop is called.
// The ticker is created before Every returns, so a mock clock advanced
// right afterwards will fire it.
func Every(clk clock.Clock, interval time.Duration, fn func(now time.Time)) *Task {
	if clk == nil {
		clk = clock.New()
	}

	t := &Task{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	ticker := clk.Ticker(interval)

	go func() {
		defer close(t.done)
		defer ticker.Stop()

		for {
			select {
			case <-t.stop:
				return
			case now := <-ticker.C:
				// Stop may have raced with the tick
				select {
				case <-t.stop:
					return
				default:
				}
				fn(now)
			}
		}
	}()

	return t
}

// Cancel stops future callbacks without waiting for an in-flight one.
// Safe to call more than once and on a nil Task.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.stopOnce.Do(func() {
		close(t.stop)
	})
}

// Stop cancels the task and waits for an in-flight callback to return.
// Safe to call more than once and on a nil Task.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.Cancel()
	<-t.done
}

// Done is closed once the task loop has exited
func (t *Task) Done() <-chan struct{} {
	return t.done
}
