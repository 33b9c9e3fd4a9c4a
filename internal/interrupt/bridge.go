// Package interrupt turns process signals (Ctrl+C, SIGTERM) into a stop
// request on a worker coordinator.
package interrupt

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/sweeney/gpio-controller/internal/worker"
)

// ErrAlreadyRegistered is returned when a signal already has a bridge.
var ErrAlreadyRegistered = errors.New("interrupt handler already registered")

// DefaultSignals are the signals a bridge subscribes to when none are given.
var DefaultSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// Process-wide registry: at most one bridge per signal.
var (
	registryMu sync.Mutex
	registry   = map[os.Signal]*Bridge{}
)

// Bridge delivers the first matching signal to a coordinator. The handler
// goroutine only calls Set; draining happens on whichever goroutine is
// waiting on the coordinator (normally Group.Run).
//
// After the first signal the bridge unsubscribes, so a second Ctrl+C gets
// the default behaviour and terminates the process.
type Bridge struct {
	coord   *worker.Coordinator
	signals []os.Signal
	log     *zap.SugaredLogger

	notify func(chan<- os.Signal, ...os.Signal)
	stop   func(chan<- os.Signal)

	ch       chan os.Signal
	quit     chan struct{}
	done     chan struct{}
	once     sync.Once
	quitOnce sync.Once
	mu       sync.Mutex
	received os.Signal
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithSignals overrides DefaultSignals.
func WithSignals(sigs ...os.Signal) Option {
	return func(b *Bridge) { b.signals = sigs }
}

// WithLogger sets the bridge's logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(b *Bridge) { b.log = l }
}

// Register subscribes to the bridge's signals and starts delivering them to
// coord. Registering a signal that already has a live bridge is rejected
// with ErrAlreadyRegistered; Close the previous bridge first.
func Register(coord *worker.Coordinator, opts ...Option) (*Bridge, error) {
	return register(coord, signal.Notify, signal.Stop, opts...)
}

func register(coord *worker.Coordinator, notify func(chan<- os.Signal, ...os.Signal), stop func(chan<- os.Signal), opts ...Option) (*Bridge, error) {
	b := &Bridge{
		coord:   coord,
		signals: DefaultSignals,
		log:     zap.NewNop().Sugar(),
		notify:  notify,
		stop:    stop,
		ch:      make(chan os.Signal, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	registryMu.Lock()
	for _, s := range b.signals {
		if _, taken := registry[s]; taken {
			registryMu.Unlock()
			return nil, ErrAlreadyRegistered
		}
	}
	for _, s := range b.signals {
		registry[s] = b
	}
	registryMu.Unlock()

	b.notify(b.ch, b.signals...)
	go b.loop()
	b.log.Infof("press Ctrl+C to stop")
	return b, nil
}

func (b *Bridge) loop() {
	defer close(b.done)
	select {
	case s := <-b.ch:
		b.unsubscribe()
		b.mu.Lock()
		b.received = s
		b.mu.Unlock()
		b.log.Infof("received %v, stopping workers", s)
		b.coord.Set()
	case <-b.quit:
	}
}

// Received returns the signal that fired the bridge, or nil.
func (b *Bridge) Received() os.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.received
}

// Done returns a channel closed once the bridge has stopped listening.
func (b *Bridge) Done() <-chan struct{} { return b.done }

// Close unsubscribes the bridge and releases its signals for another
// Register. It is safe to call more than once and after the bridge fired.
func (b *Bridge) Close() error {
	b.unsubscribe()
	b.quitOnce.Do(func() { close(b.quit) })
	<-b.done
	return nil
}

func (b *Bridge) unsubscribe() {
	b.once.Do(func() {
		b.stop(b.ch)
		registryMu.Lock()
		for _, s := range b.signals {
			if registry[s] == b {
				delete(registry, s)
			}
		}
		registryMu.Unlock()
	})
}
