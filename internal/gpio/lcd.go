//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// LCD is a character display on GPIO lines.
type LCD struct {
	*hd44780
	rs   *gpiocdev.Line
	e    *gpiocdev.Line
	data *gpiocdev.Lines
}

// OpenLCD requests the display lines from chip and initialises the controller.
func (c *Chip) OpenLCD(pins LCDPins, cols, rows int) (*LCD, error) {
	rs, err := c.chip.RequestLine(pins.RS, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request lcd rs pin %d: %w", pins.RS, err)
	}
	e, err := c.chip.RequestLine(pins.E, gpiocdev.AsOutput(0))
	if err != nil {
		rs.Close()
		return nil, fmt.Errorf("request lcd e pin %d: %w", pins.E, err)
	}
	data, err := c.chip.RequestLines(pins.Data[:], gpiocdev.AsOutput(0, 0, 0, 0))
	if err != nil {
		rs.Close()
		e.Close()
		return nil, fmt.Errorf("request lcd data pins %v: %w", pins.Data, err)
	}

	l := &LCD{rs: rs, e: e, data: data}
	l.hd44780 = newHD44780(l, cols, rows)
	if err := l.initialise(); err != nil {
		l.release()
		return nil, fmt.Errorf("init lcd: %w", err)
	}
	return l, nil
}

// SetRS implements nibbleBus.
func (l *LCD) SetRS(data bool) error {
	v := 0
	if data {
		v = 1
	}
	return l.rs.SetValue(v)
}

// Send implements nibbleBus.
func (l *LCD) Send(nibble byte) error {
	vals := make([]int, 4)
	for i := range vals {
		vals[i] = int(nibble>>uint(i)) & 1
	}
	if err := l.data.SetValues(vals); err != nil {
		return fmt.Errorf("lcd data: %w", err)
	}
	if err := l.e.SetValue(1); err != nil {
		return fmt.Errorf("lcd enable: %w", err)
	}
	time.Sleep(time.Microsecond)
	if err := l.e.SetValue(0); err != nil {
		return fmt.Errorf("lcd enable: %w", err)
	}
	time.Sleep(100 * time.Microsecond)
	return nil
}

// Close clears the display and releases its lines.
func (l *LCD) Close() error {
	clearErr := l.Clear()
	if err := l.release(); err != nil {
		return err
	}
	return clearErr
}

func (l *LCD) release() error {
	var errs []error
	for _, c := range []interface{ Close() error }{l.data, l.e, l.rs} {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close lcd: %v", errs)
	}
	return nil
}
