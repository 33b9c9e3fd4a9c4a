//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Chip is not available on non-Linux platforms.
type Chip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(name string) (*Chip, error) {
	return nil, errUnsupported
}

// Input is not implemented on non-Linux platforms.
func (c *Chip) Input(offset int) (*Line, error) { return nil, errUnsupported }

// Output is not implemented on non-Linux platforms.
func (c *Chip) Output(offset int) (*Line, error) { return nil, errUnsupported }

// OpenLCD is not implemented on non-Linux platforms.
func (c *Chip) OpenLCD(pins LCDPins, cols, rows int) (*LCD, error) { return nil, errUnsupported }

// Close is a no-op on non-Linux platforms.
func (c *Chip) Close() error { return nil }

// Line is not available on non-Linux platforms.
type Line struct{}

func (l *Line) Read() (bool, error)          { return false, errUnsupported }
func (l *Line) Write(on bool) error          { return errUnsupported }
func (l *Line) SetLevel(level float64) error { return errUnsupported }
func (l *Line) Close() error                 { return nil }

// LCD is not available on non-Linux platforms.
type LCD struct{}

func (l *LCD) WriteText(s string) error { return errUnsupported }
func (l *LCD) Close() error             { return nil }
