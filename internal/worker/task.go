// Package worker runs long-lived tasks on their own goroutines and stops
// them on demand. A Group owns a set of Handles that share one Coordinator;
// setting the coordinator (from a worker, StopAll, or an interrupt) drains
// the whole group.
package worker

import (
	"context"
	"time"
)

// Mode selects how a task is cancelled.
type Mode int

const (
	// Cooperative tasks are re-invoked in a loop and observe the stop flag
	// between iterations.
	Cooperative Mode = iota

	// Forceful tasks run a single blocking call that only returns when its
	// context is cancelled (or it finishes on its own).
	Forceful
)

func (m Mode) String() string {
	if m == Forceful {
		return "forceful"
	}
	return "cooperative"
}

// Result is returned by one iteration of a cooperative task.
type Result int

const (
	Continue Result = iota
	Stop
)

// StepFunc is one bounded iteration of a cooperative task. ctx is cancelled
// on forceful stop; any wait inside the step must select on it.
type StepFunc func(ctx context.Context) (Result, error)

// BlockFunc is the body of a forceful task. It must return once ctx is done.
// Device writes inside it must be single calls so that returning early never
// leaves a device half-updated.
type BlockFunc func(ctx context.Context) error

// Task is a unit of work owned by exactly one Handle.
type Task struct {
	mode  Mode
	step  StepFunc
	block BlockFunc
}

// Loop builds a cooperative task from a step function.
func Loop(step StepFunc) Task {
	return Task{mode: Cooperative, step: step}
}

// Blocking builds a forceful task from a blocking function.
func Blocking(fn BlockFunc) Task {
	return Task{mode: Forceful, block: fn}
}

// Mode returns the task's cancellation mode.
func (t Task) Mode() Mode { return t.mode }

func (t Task) valid() bool {
	if t.mode == Forceful {
		return t.block != nil
	}
	return t.step != nil
}

// Sleep waits for d or until ctx is done, whichever comes first. It returns
// ctx.Err() if the wait was cut short.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
