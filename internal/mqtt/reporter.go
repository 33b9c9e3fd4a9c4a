package mqtt

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sweeney/gpio-controller/internal/worker"
)

// Reporter forwards worker transitions to a Publisher. It implements
// worker.Listener. Transitions are queued and published from a single
// goroutine, so a slow broker never holds up a worker.
type Reporter struct {
	pub   Publisher
	runID string
	log   *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
	queue  chan WorkerEvent
	done   chan struct{}
}

// NewReporter starts a reporter with room for size queued events.
func NewReporter(pub Publisher, runID string, size int, log *zap.SugaredLogger) *Reporter {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r := &Reporter{
		pub:   pub,
		runID: runID,
		log:   log,
		queue: make(chan WorkerEvent, size),
		done:  make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Reporter) loop() {
	defer close(r.done)
	for ev := range r.queue {
		if err := r.pub.PublishWorker(ev); err != nil {
			r.log.Warnf("mqtt: publish %s %s: %v", ev.Worker, ev.To, err)
		}
	}
}

// WorkerTransition implements worker.Listener.
func (r *Reporter) WorkerTransition(t worker.WorkerTransition) {
	ev := WorkerEvent{
		Timestamp: t.Time,
		RunID:     r.runID,
		Group:     t.Group,
		Worker:    t.Worker,
		From:      string(t.From),
		To:        string(t.To),
	}
	if t.Err != nil {
		ev.Error = t.Err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- ev:
	default:
		r.log.Warnf("mqtt: event queue full, dropping %s %s", ev.Worker, ev.To)
	}
}

// GroupTransition implements worker.Listener. Group state travels in the
// STARTUP and SHUTDOWN status snapshots instead.
func (r *Reporter) GroupTransition(worker.GroupTransition) {}

// Close stops accepting events and waits until the queue is published.
func (r *Reporter) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}
