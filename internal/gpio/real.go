//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "gpio-controller"

// Chip hands out lines from a Linux GPIO character device.
type Chip struct {
	chip *gpiocdev.Chip

	mu    sync.Mutex
	lines []*Line
}

// OpenChip opens the named chip, e.g. "gpiochip0".
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Chip{chip: chip}, nil
}

// Input requests a button line: input with pull-up, active low, so a
// pressed button (pulled to ground) reads true.
func (c *Chip) Input(offset int) (*Line, error) {
	l, err := c.chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.AsActiveLow)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", offset, err)
	}
	return c.track(&Line{line: l, offset: offset}), nil
}

// Output requests an LED line, initially off.
func (c *Chip) Output(offset int) (*Line, error) {
	l, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", offset, err)
	}
	return c.track(&Line{line: l, offset: offset, output: true}), nil
}

func (c *Chip) track(l *Line) *Line {
	c.mu.Lock()
	c.lines = append(c.lines, l)
	c.mu.Unlock()
	return l
}

// Close releases every line handed out by the chip, then the chip itself.
func (c *Chip) Close() error {
	c.mu.Lock()
	lines := c.lines
	c.lines = nil
	c.mu.Unlock()

	var errs []error
	for _, l := range lines {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// Line is a single requested GPIO line.
type Line struct {
	line   *gpiocdev.Line
	offset int
	output bool

	mu     sync.Mutex
	closed bool
}

// Read returns the logical value of the line.
func (l *Line) Read() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false, ErrClosed
	}
	v, err := l.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", l.offset, err)
	}
	return v == 1, nil
}

// Write drives an output line.
func (l *Line) Write(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if !l.output {
		return fmt.Errorf("write pin %d: line is an input", l.offset)
	}
	v := 0
	if on {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return fmt.Errorf("write pin %d: %w", l.offset, err)
	}
	return nil
}

// SetLevel drives the line on for level >= 0.5. Use a software PWM for
// intermediate brightness.
func (l *Line) SetLevel(level float64) error {
	return l.Write(levelOn(level))
}

// Close releases the line. Outputs are driven low and reverted to input
// first so nothing stays lit after exit.
func (l *Line) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	if l.output {
		if err := l.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear pin %d: %w", l.offset, err))
		}
		if err := l.line.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", l.offset, err))
		}
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", l.offset, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
