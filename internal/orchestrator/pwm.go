package orchestrator

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/sweeney/gpio-controller/internal/gpio"
	"github.com/sweeney/gpio-controller/internal/worker"
)

// DefaultPWMPeriod is one on/off cycle of a software PWM.
const DefaultPWMPeriod = 10 * time.Millisecond

// SoftPWM dims a binary line by switching it on for a fraction of every
// period. The line is owned by the task returned from Task; other workers
// only ever touch the level, which is stored atomically.
type SoftPWM struct {
	line   gpio.Device
	period time.Duration
	bits   atomic.Uint64
}

// NewSoftPWM wraps line. A non-positive period uses DefaultPWMPeriod.
func NewSoftPWM(line gpio.Device, period time.Duration) *SoftPWM {
	if period <= 0 {
		period = DefaultPWMPeriod
	}
	return &SoftPWM{line: line, period: period}
}

// Level returns the current duty cycle.
func (p *SoftPWM) Level() float64 {
	return math.Float64frombits(p.bits.Load())
}

// Read reports whether the level is at least half.
func (p *SoftPWM) Read() (bool, error) {
	return p.Level() >= 0.5, nil
}

// Write sets the level to fully on or off.
func (p *SoftPWM) Write(on bool) error {
	if on {
		return p.SetLevel(1)
	}
	return p.SetLevel(0)
}

// SetLevel stores the duty cycle, clamped to [0, 1]. It takes effect at the
// start of the next period.
func (p *SoftPWM) SetLevel(level float64) error {
	p.bits.Store(math.Float64bits(gpio.ClampLevel(level)))
	return nil
}

// Task returns the cooperative worker that drives the line. Each iteration
// is one period, so a stop request is honoured within one period.
func (p *SoftPWM) Task() worker.Task {
	state, known := false, false
	set := func(on bool) error {
		if known && on == state {
			return nil
		}
		if err := p.line.Write(on); err != nil {
			return fmt.Errorf("pwm write: %w", err)
		}
		state, known = on, true
		return nil
	}

	return worker.Loop(func(ctx context.Context) (worker.Result, error) {
		high := time.Duration(p.Level() * float64(p.period))
		low := p.period - high

		if high > 0 {
			if err := set(true); err != nil {
				return worker.Stop, err
			}
			if err := worker.Sleep(ctx, high); err != nil {
				return worker.Stop, err
			}
		}
		if low > 0 {
			if err := set(false); err != nil {
				return worker.Stop, err
			}
			if err := worker.Sleep(ctx, low); err != nil {
				return worker.Stop, err
			}
		}
		return worker.Continue, nil
	})
}
