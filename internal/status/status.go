// Package status provides a thread-safe status tracker for the controller.
// It follows worker and group lifecycle as a worker.Listener and is read by
// the HTTP handlers, the MQTT system events and the exit report.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/gpio-controller/internal/worker"
)

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains controller configuration for display.
type Config struct {
	Mode           string
	Chip           string
	IntervalMs     int64
	PollMs         int64
	DrainTimeoutMs int64
	StopOnFirst    bool
	Broker         string
	HTTPPort       string
}

// WorkerStatus is the last known state of one worker.
type WorkerStatus struct {
	Name  string
	State worker.State
	Err   string
	Since time.Time
}

// Counts tallies worker exits.
type Counts struct {
	Stopped int
	Failed  int
}

// Snapshot is a point-in-time view of controller state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	RunID         string
	Group         string
	GroupState    worker.GroupState
	Workers       []WorkerStatus
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Worker returns the named worker's status.
func (s Snapshot) Worker(name string) (WorkerStatus, bool) {
	for _, w := range s.Workers {
		if w.Name == name {
			return w, true
		}
	}
	return WorkerStatus{}, false
}

// Tracker holds mutable controller state behind an RWMutex.
// It implements worker.Listener.
type Tracker struct {
	mu      sync.RWMutex
	snap    Snapshot
	workers map[string]int // index into snap.Workers
}

// NewTracker creates a Tracker with the given run ID, start time and config.
func NewTracker(runID string, startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			RunID:      runID,
			GroupState: worker.GroupIdle,
			StartTime:  startTime,
			Config:     cfg,
		},
		workers: make(map[string]int),
	}
}

// Register lists workers before they start so they show as CREATED.
func (t *Tracker) Register(group string, names []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Group = group
	for _, n := range names {
		if _, ok := t.workers[n]; ok {
			continue
		}
		t.workers[n] = len(t.snap.Workers)
		t.snap.Workers = append(t.snap.Workers, WorkerStatus{Name: n, State: worker.StateCreated})
	}
}

// WorkerTransition implements worker.Listener.
func (t *Tracker) WorkerTransition(tr worker.WorkerTransition) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.workers[tr.Worker]
	if !ok {
		i = len(t.snap.Workers)
		t.workers[tr.Worker] = i
		t.snap.Workers = append(t.snap.Workers, WorkerStatus{Name: tr.Worker})
	}
	w := &t.snap.Workers[i]
	w.State = tr.To
	w.Since = tr.Time
	if tr.Err != nil {
		w.Err = tr.Err.Error()
	}

	switch tr.To {
	case worker.StateStopped:
		t.snap.Counts.Stopped++
	case worker.StateFailed:
		t.snap.Counts.Failed++
	}
}

// GroupTransition implements worker.Listener.
func (t *Tracker) GroupTransition(tr worker.GroupTransition) {
	t.mu.Lock()
	t.snap.Group = tr.Group
	t.snap.GroupState = tr.To
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the controller state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Workers = append([]WorkerStatus(nil), t.snap.Workers...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
