// Package orchestrator maps named button/LED pairs and the display onto
// worker tasks and assembles them into a worker.Group for one operating mode.
package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/gpio-controller/internal/gpio"
	"github.com/sweeney/gpio-controller/internal/worker"
)

// Mode is an operating mode of the controller.
type Mode string

const (
	ModeBlink      Mode = "blink"
	ModeIntensity  Mode = "intensity"
	ModeButtons    Mode = "buttons"
	ModeAllButtons Mode = "all-buttons"
	ModeLCD        Mode = "lcd"
)

// DisplayWorker is the worker name used for the display task.
const DisplayWorker = "lcd"

// pwmSuffix names the software PWM worker paired with an intensity worker.
const pwmSuffix = "-pwm"

var (
	// ErrUnknownPair is returned when a requested color has no pair.
	ErrUnknownPair = errors.New("unknown pair")

	// ErrNoDisplay is returned by ModeLCD when no display is configured.
	ErrNoDisplay = errors.New("no display configured")
)

// Pair is one button and the LED it controls. Each device is used by
// exactly one worker of a group.
type Pair struct {
	Name   string
	Button gpio.Device
	LED    gpio.Device
}

// Settings tune the tasks built for a mode.
type Settings struct {
	// Interval is the blink and intensity step period.
	Interval time.Duration

	// Poll is the button sampling period. Zero uses DefaultPoll.
	Poll time.Duration

	// Duration bounds button mirroring. Zero mirrors until stopped.
	Duration time.Duration

	// StopOnFirst stops every worker once one finishes on its own.
	StopOnFirst bool

	// PWMPeriod is the software PWM cycle for intensity mode.
	PWMPeriod time.Duration

	// Text is written to the display in lcd mode.
	Text string

	DrainTimeout time.Duration
	GracePeriod  time.Duration

	// Sink receives a completion for every worker.
	Sink chan<- worker.Completion
}

// DefaultSettings returns the settings the controller uses when nothing is
// overridden.
func DefaultSettings() Settings {
	return Settings{
		Interval:     time.Second,
		Poll:         DefaultPoll,
		PWMPeriod:    DefaultPWMPeriod,
		DrainTimeout: worker.DefaultDrainTimeout,
		GracePeriod:  worker.DefaultGracePeriod,
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger passed to every group.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithListener adds a lifecycle listener to every group.
func WithListener(l worker.Listener) Option {
	return func(o *Orchestrator) { o.listeners = append(o.listeners, l) }
}

// WithCoordinator makes built groups share coord.
func WithCoordinator(coord *worker.Coordinator) Option {
	return func(o *Orchestrator) { o.coord = coord }
}

// Orchestrator owns the devices and builds groups over them.
type Orchestrator struct {
	pairs     []Pair
	byName    map[string]Pair
	display   gpio.Display
	log       *zap.SugaredLogger
	listeners []worker.Listener
	coord     *worker.Coordinator
}

// New creates an orchestrator. display may be nil when no LCD is attached.
func New(pairs []Pair, display gpio.Display, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		byName:  make(map[string]Pair, len(pairs)),
		display: display,
		log:     zap.NewNop().Sugar(),
	}
	for _, p := range pairs {
		key := strings.ToLower(p.Name)
		if key == "" {
			return nil, errors.New("pair has no name")
		}
		if _, dup := o.byName[key]; dup {
			return nil, fmt.Errorf("duplicate pair %q", p.Name)
		}
		if p.Button == nil || p.LED == nil {
			return nil, fmt.Errorf("pair %q: missing device", p.Name)
		}
		p.Name = key
		o.byName[key] = p
		o.pairs = append(o.pairs, p)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Names returns the pair names in configuration order.
func (o *Orchestrator) Names() []string {
	out := make([]string, len(o.pairs))
	for i, p := range o.pairs {
		out[i] = p.Name
	}
	return out
}

// Select resolves names to pairs, case-insensitively. No names selects every
// pair.
func (o *Orchestrator) Select(names []string) ([]Pair, error) {
	if len(names) == 0 {
		return append([]Pair(nil), o.pairs...), nil
	}
	seen := make(map[string]bool, len(names))
	out := make([]Pair, 0, len(names))
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		p, ok := o.byName[key]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPair, n)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out, nil
}

// Build assembles the group for mode over the selected pairs. The group is
// returned idle; the caller runs it.
func (o *Orchestrator) Build(mode Mode, names []string, s Settings) (*worker.Group, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if s.Interval <= 0 && (mode == ModeBlink || mode == ModeIntensity) {
		return nil, fmt.Errorf("%s: interval must be positive", mode)
	}

	cfg := worker.Config{
		PropagateCompletion: s.StopOnFirst,
		DrainTimeout:        s.DrainTimeout,
		GracePeriod:         s.GracePeriod,
		Sink:                s.Sink,
	}
	opts := []worker.Option{worker.WithLogger(o.log.Named(string(mode)))}
	for _, l := range o.listeners {
		opts = append(opts, worker.WithListener(l))
	}
	if o.coord != nil {
		opts = append(opts, worker.WithCoordinator(o.coord))
	}
	g := worker.NewGroup(string(mode), cfg, opts...)

	if mode == ModeLCD {
		if o.display == nil {
			return nil, ErrNoDisplay
		}
		if err := g.AddWorker(DisplayWorker, TextTask(o.display, s.Text)); err != nil {
			return nil, err
		}
		return g, nil
	}

	if mode == ModeAllButtons {
		names = nil
	}
	pairs, err := o.Select(names)
	if err != nil {
		return nil, err
	}

	for _, p := range pairs {
		switch mode {
		case ModeBlink:
			err = g.AddWorker(p.Name, BlinkTask(p.LED, s.Interval))
		case ModeIntensity:
			pwm := NewSoftPWM(p.LED, s.PWMPeriod)
			if err = g.AddWorker(p.Name+pwmSuffix, pwm.Task()); err == nil {
				err = g.AddWorker(p.Name, IntensityTask(pwm, s.Interval))
			}
		case ModeButtons, ModeAllButtons:
			err = g.AddWorker(p.Name, MirrorTask(p.Button, p.LED, s.Poll, s.Duration))
		default:
			return nil, fmt.Errorf("unknown mode %q", mode)
		}
		if err != nil {
			return nil, err
		}
	}

	o.log.Infof("built %s group with %d workers", mode, len(g.Members()))
	return g, nil
}

// ReadButtons samples every button once.
func (o *Orchestrator) ReadButtons() (map[string]bool, error) {
	out := make(map[string]bool, len(o.pairs))
	for _, p := range o.pairs {
		v, err := p.Button.Read()
		if err != nil {
			return nil, fmt.Errorf("read %s button: %w", p.Name, err)
		}
		out[p.Name] = v
	}
	return out, nil
}

// ParseMode converts a subcommand name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeBlink, ModeIntensity, ModeButtons, ModeAllButtons, ModeLCD:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}
