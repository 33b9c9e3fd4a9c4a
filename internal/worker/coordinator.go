package worker

import (
	"sync"
	"time"
)

// Coordinator is a one-shot broadcast stop signal shared by a group of
// workers. It can be set from any goroutine, any number of times; only the
// first call has an effect. Waiters that arrive after the signal was set
// return immediately.
type Coordinator struct {
	once  sync.Once
	done  chan struct{}
	cause error
}

// NewCoordinator returns an unset coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{done: make(chan struct{})}
}

// Set requests a stop. It reports whether this call performed the transition.
func (c *Coordinator) Set() bool {
	return c.Trigger(ErrStopRequested)
}

// Trigger requests a stop and records cause if this is the first request.
// It reports whether this call performed the transition.
func (c *Coordinator) Trigger(cause error) bool {
	fired := false
	c.once.Do(func() {
		if cause == nil {
			cause = ErrStopRequested
		}
		c.cause = cause
		close(c.done)
		fired = true
	})
	return fired
}

// IsSet reports whether a stop was requested. It never blocks.
func (c *Coordinator) IsSet() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the coordinator is set or timeout elapses and reports
// whether it was set. A timeout <= 0 waits without bound.
func (c *Coordinator) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-c.done
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-c.done:
		return true
	case <-t.C:
		return c.IsSet()
	}
}

// Done returns a channel that is closed once the coordinator is set.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Cause returns the cause passed to the first Trigger, or nil if unset.
// The close of done orders the write of cause before any reader that
// observed it.
func (c *Coordinator) Cause() error {
	if !c.IsSet() {
		return nil
	}
	return c.cause
}
