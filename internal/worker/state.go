package worker

// State is the lifecycle state of a single worker.
type State string

const (
	StateCreated       State = "CREATED"
	StateRunning       State = "RUNNING"
	StateStopRequested State = "STOP_REQUESTED"
	StateStopped       State = "STOPPED"
	StateFailed        State = "FAILED"
)

// Terminal reports whether s is Stopped or Failed.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// GroupState is the lifecycle state of a Group.
type GroupState string

const (
	GroupIdle     GroupState = "IDLE"
	GroupRunning  GroupState = "RUNNING"
	GroupDraining GroupState = "DRAINING"
	GroupDone     GroupState = "DONE"
)
