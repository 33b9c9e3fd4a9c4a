package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeouts used when Config leaves them zero.
const (
	DefaultDrainTimeout = 5 * time.Second
	DefaultGracePeriod  = time.Second
)

// Config controls group shutdown policy.
type Config struct {
	// PropagateCompletion stops every member as soon as one member finishes
	// on its own. When false, a finished member leaves its siblings running.
	PropagateCompletion bool

	// DrainTimeout bounds the whole drain phase. Members that have not
	// exited by then are reported in a DrainTimeoutError.
	DrainTimeout time.Duration

	// GracePeriod is how long a cooperative StopAll waits for members to
	// exit before escalating to a forceful stop.
	GracePeriod time.Duration

	// Sink, if set, receives a Completion for every member that exits.
	// Sends never block; size the channel to the number of members.
	Sink chan<- Completion
}

// Option configures a Group.
type Option func(*Group)

// WithLogger sets the group's logger. Members log through a child logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(g *Group) { g.log = l }
}

// WithListener adds a lifecycle listener for the group and all its members.
func WithListener(l Listener) Option {
	return func(g *Group) { g.listeners = append(g.listeners, l) }
}

// WithCoordinator makes the group use coord instead of a private one, so the
// stop signal can be wired up (e.g. to an interrupt bridge) before Run.
func WithCoordinator(coord *Coordinator) Option {
	return func(g *Group) { g.coord = coord }
}

// Group runs a named set of workers that share one Coordinator.
//
//	Idle -> Running     [Run]
//	Running -> Draining [coordinator set]
//	Draining -> Done    [all members joined or drain timeout]
//
// Run is single-use.
type Group struct {
	name      string
	cfg       Config
	coord     *Coordinator
	log       *zap.SugaredLogger
	listeners listeners

	mu       sync.Mutex
	state    GroupState
	order    []string
	members  map[string]*Handle
	exited   int
	failure  error
	graceful bool
}

// NewGroup creates an empty group.
func NewGroup(name string, cfg Config, opts ...Option) *Group {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	g := &Group{
		name:    name,
		cfg:     cfg,
		log:     zap.NewNop().Sugar(),
		state:   GroupIdle,
		members: make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.coord == nil {
		g.coord = NewCoordinator()
	}
	return g
}

// Name returns the group name.
func (g *Group) Name() string { return g.name }

// Coordinator returns the group's shared stop signal.
func (g *Group) Coordinator() *Coordinator { return g.coord }

// State returns the group's lifecycle state.
func (g *Group) State() GroupState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// AddWorker registers a task under a unique name. Only valid before Run.
func (g *Group) AddWorker(name string, task Task) error {
	if !task.valid() {
		return fmt.Errorf("worker %q: task has no body", name)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != GroupIdle {
		return fmt.Errorf("%w: cannot add %q to %s group", ErrInvalidState, name, g.state)
	}
	if _, ok := g.members[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateIdentity, name)
	}

	h := NewHandle(name, task,
		withGroup(g.name),
		WithHandleLogger(g.log.Named(name)),
		WithCompletion(g.onExit),
	)
	h.listeners = g.listeners
	g.members[name] = h
	g.order = append(g.order, name)
	return nil
}

// Members returns worker names in the order they were added.
func (g *Group) Members() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.order...)
}

// Worker returns the handle for name.
func (g *Group) Worker(name string) (*Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.members[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIdentity, name)
	}
	return h, nil
}

// Status returns each member's current state.
func (g *Group) Status() map[string]State {
	g.mu.Lock()
	handles := g.handlesLocked()
	g.mu.Unlock()

	out := make(map[string]State, len(handles))
	for _, h := range handles {
		out[h.Name()] = h.State()
	}
	return out
}

// Run starts every member and blocks until the coordinator is set (by a
// member completing or failing, StopAll, the interrupt bridge, or ctx being
// done). It then drains the group: forcefully stops every member still
// running and joins them all, bounded by the drain timeout.
//
// Run returns the first member's *TaskFailure, a *DrainTimeoutError naming
// members that did not exit, both joined, or nil.
func (g *Group) Run(ctx context.Context) error {
	g.mu.Lock()
	if g.state != GroupIdle {
		st := g.state
		g.mu.Unlock()
		return fmt.Errorf("%w: group %q is %s", ErrInvalidState, g.name, st)
	}
	g.transitionLocked(GroupRunning)
	handles := g.handlesLocked()
	g.mu.Unlock()

	g.log.Infof("starting %d workers", len(handles))
	for _, h := range handles {
		if err := h.Start(); err != nil {
			g.log.Errorf("start %s: %v", h.Name(), err)
			g.coord.Trigger(err)
		}
	}

	select {
	case <-g.coord.Done():
	case <-ctx.Done():
		g.coord.Trigger(ctx.Err())
	}

	g.mu.Lock()
	g.transitionLocked(GroupDraining)
	graceful := g.graceful
	g.mu.Unlock()

	g.log.Infof("draining: %v", g.coord.Cause())
	drainErr := g.drain(handles, graceful)

	g.mu.Lock()
	g.transitionLocked(GroupDone)
	failure := g.failure
	g.mu.Unlock()

	switch {
	case failure != nil && drainErr != nil:
		return errors.Join(failure, drainErr)
	case failure != nil:
		return failure
	default:
		return drainErr
	}
}

// StopAll asks every member to stop and sets the coordinator. A forceful
// stop cancels every member at once; a cooperative one lets members finish
// their current iteration and escalates after the grace period.
func (g *Group) StopAll(forceful bool) {
	g.mu.Lock()
	g.graceful = !forceful
	running := g.state == GroupRunning || g.state == GroupDraining
	handles := g.handlesLocked()
	g.mu.Unlock()

	if running {
		for _, h := range handles {
			if err := h.RequestStop(forceful); err != nil {
				g.log.Debugf("stop %s: %v", h.Name(), err)
			}
		}
	}
	g.coord.Set()
}

// Stop asks a single member to stop without affecting its siblings.
func (g *Group) Stop(name string, forceful bool) error {
	h, err := g.Worker(name)
	if err != nil {
		return err
	}
	return h.RequestStop(forceful)
}

func (g *Group) drain(handles []*Handle, graceful bool) error {
	deadline := time.Now().Add(g.cfg.DrainTimeout)

	if graceful {
		// StopAll may have run before these members were started.
		for _, h := range handles {
			if h.State().Terminal() {
				continue
			}
			if err := h.RequestStop(false); err != nil {
				g.log.Debugf("stop %s: %v", h.Name(), err)
			}
		}
		grace := time.Now().Add(g.cfg.GracePeriod)
		if grace.After(deadline) {
			grace = deadline
		}
		waitUntil(handles, grace)
	}

	for _, h := range handles {
		if h.State().Terminal() {
			continue
		}
		if err := h.RequestStop(true); err != nil {
			// The worker exited between the check and the request.
			g.log.Debugf("stop %s: %v", h.Name(), err)
		}
	}

	pending := waitUntil(handles, deadline)
	if len(pending) > 0 {
		for _, name := range pending {
			g.log.Warnf("worker %s did not stop within %v", name, g.cfg.DrainTimeout)
		}
		return &DrainTimeoutError{Pending: pending}
	}
	return nil
}

// waitUntil waits for every handle to finish or the deadline to pass and
// returns the names still running.
func waitUntil(handles []*Handle, deadline time.Time) []string {
	t := time.NewTimer(time.Until(deadline))
	defer t.Stop()

	var pending []string
	expired := false
	for _, h := range handles {
		if !expired {
			select {
			case <-h.Done():
				continue
			case <-t.C:
				expired = true
			}
		}
		select {
		case <-h.Done():
		default:
			pending = append(pending, h.Name())
		}
	}
	return pending
}

func (g *Group) onExit(c Completion) {
	g.mu.Lock()
	g.exited++
	all := g.exited == len(g.members)
	if c.State == StateFailed && g.failure == nil {
		g.failure = c.Err
	}
	g.mu.Unlock()

	if g.cfg.Sink != nil {
		select {
		case g.cfg.Sink <- c:
		default:
			g.log.Warnf("completion sink full, dropped %s %s", c.Worker, c.State)
		}
	}

	switch {
	case c.State == StateFailed:
		g.coord.Trigger(c.Err)
	case !c.Requested && g.cfg.PropagateCompletion:
		g.coord.Trigger(ErrCompleted)
	case all:
		// Nothing left to run.
		g.coord.Trigger(ErrCompleted)
	}
}

func (g *Group) handlesLocked() []*Handle {
	out := make([]*Handle, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.members[name])
	}
	return out
}

func (g *Group) transitionLocked(to GroupState) {
	from := g.state
	g.state = to
	g.listeners.group(GroupTransition{Group: g.name, From: from, To: to, Time: time.Now()})
}
