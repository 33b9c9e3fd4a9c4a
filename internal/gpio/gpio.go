// Package gpio provides the device capabilities the workers drive: digital
// lines (buttons, LEDs) and a character display.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "errors"

// ErrClosed is returned by operations on a released device.
var ErrClosed = errors.New("gpio: device closed")

// Device is a single digital line.
//
// Every method is one synchronous call; a caller interrupted between two
// calls never leaves the line half-written.
type Device interface {
	// Read returns the logical state (true = active/pressed/on).
	Read() (bool, error)

	// Write drives the line on or off.
	Write(on bool) error

	// SetLevel sets the output level in [0, 1]. Binary lines treat any
	// level >= 0.5 as on.
	SetLevel(level float64) error
}

// Display shows text.
type Display interface {
	// WriteText replaces the display contents with s.
	WriteText(s string) error
}

// Default chip and pins (BCM numbering) for the breadboard the controller
// was built around.
const (
	DefaultChip = "gpiochip0"

	PinRedButton    = 2
	PinYellowButton = 3
	PinGreenButton  = 4
	PinBlueButton   = 17

	PinRedLED    = 24
	PinYellowLED = 23
	PinGreenLED  = 18
	PinBlueLED   = 15

	PinLCDRS = 16
	PinLCDE  = 12
)

// DefaultLCDData are the 4-bit mode data pins D4..D7.
var DefaultLCDData = [4]int{1, 7, 8, 25}

// LCDPins selects the lines wired to an HD44780 in 4-bit mode.
type LCDPins struct {
	RS   int
	E    int
	Data [4]int // D4..D7
}

// ClampLevel limits level to [0, 1].
func ClampLevel(level float64) float64 {
	switch {
	case level < 0:
		return 0
	case level > 1:
		return 1
	default:
		return level
	}
}

func levelOn(level float64) bool {
	return ClampLevel(level) >= 0.5
}
