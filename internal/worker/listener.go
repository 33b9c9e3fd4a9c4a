package worker

import "time"

// WorkerTransition describes one worker state change.
type WorkerTransition struct {
	Group  string
	Worker string
	From   State
	To     State
	Err    error
	Time   time.Time
}

// GroupTransition describes one group state change.
type GroupTransition struct {
	Group string
	From  GroupState
	To    GroupState
	Time  time.Time
}

// Listener observes lifecycle changes. Implementations are called from
// worker goroutines and must be safe for concurrent use and return quickly.
type Listener interface {
	WorkerTransition(WorkerTransition)
	GroupTransition(GroupTransition)
}

// Completion is sent to a group's sink when a worker reaches Stopped or Failed.
type Completion struct {
	Worker string
	State  State
	Err    error

	// Requested is true when the worker exited after a stop request rather
	// than finishing on its own.
	Requested bool
}

type listeners []Listener

func (ls listeners) worker(t WorkerTransition) {
	for _, l := range ls {
		l.WorkerTransition(t)
	}
}

func (ls listeners) group(t GroupTransition) {
	for _, l := range ls {
		l.GroupTransition(t)
	}
}
