package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handle owns one running task.
//
// State machine:
//
//	Created -> Running                [Start]
//	Running -> StopRequested          [RequestStop]
//	Running|StopRequested -> Stopped  [body returned, or cancelled]
//	Running|StopRequested -> Failed   [body returned an error or panicked]
type Handle struct {
	name      string
	group     string
	task      Task
	log       *zap.SugaredLogger
	listeners listeners
	onExit    func(Completion)
	owned     bool // started by a Group's Run rather than by the caller

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state State
	stop  bool // stop requested, guarded by mu
	err   error
}

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// WithHandleLogger sets the handle's logger.
func WithHandleLogger(l *zap.SugaredLogger) HandleOption {
	return func(h *Handle) { h.log = l }
}

// WithHandleListener adds a lifecycle listener.
func WithHandleListener(l Listener) HandleOption {
	return func(h *Handle) { h.listeners = append(h.listeners, l) }
}

// WithCompletion registers a function called once the worker reaches
// Stopped or Failed, before Join returns.
func WithCompletion(fn func(Completion)) HandleOption {
	return func(h *Handle) {
		prev := h.onExit
		h.onExit = func(c Completion) {
			if prev != nil {
				prev(c)
			}
			fn(c)
		}
	}
}

// WithBroadcast sets coord when the worker exits, so siblings watching the
// same coordinator learn that this worker is gone.
func WithBroadcast(coord *Coordinator) HandleOption {
	return WithCompletion(func(c Completion) {
		if c.State == StateFailed {
			coord.Trigger(c.Err)
			return
		}
		coord.Trigger(ErrCompleted)
	})
}

func withGroup(name string) HandleOption {
	return func(h *Handle) {
		h.group = name
		h.owned = true
	}
}

// NewHandle wraps task in a handle named name. The task does not run until
// Start is called.
func NewHandle(name string, task Task, opts ...HandleOption) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		name:   name,
		task:   task,
		log:    zap.NewNop().Sugar(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateCreated,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name returns the worker's identity.
func (h *Handle) Name() string { return h.name }

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err returns the terminal error: a *TaskFailure for Failed, nil otherwise.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Done returns a channel closed once the worker goroutine has finished,
// including completion callbacks.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Start launches the task on its own goroutine.
func (h *Handle) Start() error {
	if !h.task.valid() {
		return fmt.Errorf("worker %q: task has no body", h.name)
	}

	h.mu.Lock()
	if h.state != StateCreated {
		st := h.state
		h.mu.Unlock()
		return fmt.Errorf("%w: worker %q is %s", ErrAlreadyStarted, h.name, st)
	}
	h.transitionLocked(StateRunning, nil)
	h.mu.Unlock()

	h.log.Debugf("worker %s started (%s)", h.name, h.task.mode)
	go h.run()
	return nil
}

// RequestStop asks the worker to stop. A cooperative request sets the stop
// flag, which the loop checks before its next iteration. A forceful request
// also cancels the task's context, which unblocks any context-aware wait in
// the body. Neither waits for the worker to exit; use Join for that.
//
// A request against a worker that is not running returns an error wrapping
// ErrInterruptDelivery.
func (h *Handle) RequestStop(forceful bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case StateRunning:
		h.transitionLocked(StateStopRequested, nil)
	case StateStopRequested:
		// Allows escalating a cooperative request to a forceful one.
	default:
		return fmt.Errorf("%w: worker %q is %s", ErrInterruptDelivery, h.name, h.state)
	}

	h.stop = true
	if forceful {
		h.cancel()
	}
	return nil
}

// Join waits until the worker has exited and returns its terminal error.
// A timeout <= 0 waits without bound. Join may be called any number of
// times and from any goroutine; every call after exit returns the same result.
//
// A group member that Run has not started yet is waited on like a running
// one. A standalone handle that was never started is an error.
func (h *Handle) Join(timeout time.Duration) error {
	if !h.owned && h.State() == StateCreated {
		return fmt.Errorf("%w: worker %q was never started", ErrInvalidState, h.name)
	}

	if timeout <= 0 {
		<-h.done
		return h.Err()
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-h.done:
		return h.Err()
	case <-t.C:
		return fmt.Errorf("%w: worker %q still %s after %v", ErrJoinTimeout, h.name, h.State(), timeout)
	}
}

// IsAlive reports whether the worker goroutine is still executing.
func (h *Handle) IsAlive() bool {
	if h.State() == StateCreated {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *Handle) stopRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stop
}

func (h *Handle) run() {
	err := h.execute()
	h.finish(err)
}

func (h *Handle) execute() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if h.task.mode == Forceful {
		return h.task.block(h.ctx)
	}

	for !h.stopRequested() {
		if h.ctx.Err() != nil {
			return nil
		}
		res, err := h.task.step(h.ctx)
		if err != nil {
			return err
		}
		if res == Stop {
			return nil
		}
	}
	return nil
}

func (h *Handle) finish(err error) {
	h.mu.Lock()
	requested := h.stop
	final := StateStopped
	if err != nil && !(requested && errors.Is(err, context.Canceled)) {
		final = StateFailed
		h.err = &TaskFailure{Worker: h.name, Err: err}
	}
	h.transitionLocked(final, h.err)
	failure := h.err
	h.mu.Unlock()

	h.cancel()

	if failure != nil {
		h.log.Errorw("worker failed", "worker", h.name, "error", err)
	} else {
		h.log.Infow("worker stopped", "worker", h.name, "requested", requested)
	}

	if h.onExit != nil {
		h.onExit(Completion{Worker: h.name, State: final, Err: failure, Requested: requested})
	}
	close(h.done)
}

// transitionLocked must be called with h.mu held so that listeners observe
// transitions in order.
func (h *Handle) transitionLocked(to State, err error) {
	from := h.state
	h.state = to
	h.listeners.worker(WorkerTransition{
		Group:  h.group,
		Worker: h.name,
		From:   from,
		To:     to,
		Err:    err,
		Time:   time.Now(),
	})
}
