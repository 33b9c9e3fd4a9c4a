package worker

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyStarted is returned by Start on a handle that has left Created.
	ErrAlreadyStarted = errors.New("worker already started")

	// ErrJoinTimeout is returned when a join deadline elapses before the
	// worker reaches Stopped or Failed.
	ErrJoinTimeout = errors.New("join timed out")

	// ErrInterruptDelivery reports a stop request that found nothing to stop,
	// usually because the worker exited between the liveness check and the
	// request. Callers log it and move on.
	ErrInterruptDelivery = errors.New("stop request not delivered")

	// ErrUnknownIdentity is returned for a worker name that is not in the group.
	ErrUnknownIdentity = errors.New("unknown worker")

	// ErrDuplicateIdentity is returned when a worker name is added twice.
	ErrDuplicateIdentity = errors.New("duplicate worker")

	// ErrInvalidState is returned for an operation that is not valid in the
	// current lifecycle state (e.g. AddWorker after Run).
	ErrInvalidState = errors.New("invalid state transition")

	// ErrStopRequested is the coordinator cause recorded by Set.
	ErrStopRequested = errors.New("stop requested")

	// ErrCompleted is the coordinator cause recorded when a member finishes
	// naturally and completion propagation is enabled.
	ErrCompleted = errors.New("worker completed")
)

// TaskFailure wraps an unexpected error (or recovered panic) raised by a
// task body. It is never used for cancellation.
type TaskFailure struct {
	Worker string
	Err    error
}

func (e *TaskFailure) Error() string {
	return fmt.Sprintf("worker %q failed: %v", e.Worker, e.Err)
}

func (e *TaskFailure) Unwrap() error { return e.Err }

// DrainTimeoutError lists the workers that had not exited when the group's
// drain deadline passed.
type DrainTimeoutError struct {
	Pending []string
}

func (e *DrainTimeoutError) Error() string {
	return fmt.Sprintf("drain timed out waiting for: %s", strings.Join(e.Pending, ", "))
}

// Is lets errors.Is(err, ErrJoinTimeout) match a drain timeout.
func (e *DrainTimeoutError) Is(target error) bool {
	return target == ErrJoinTimeout
}
