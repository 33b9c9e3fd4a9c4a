package gpio

import (
	"strings"
	"sync"
	"time"
)

// HD44780 commands.
const (
	lcdClear        = 0x01
	lcdEntryMode    = 0x06 // increment, no shift
	lcdDisplayOn    = 0x0C // display on, cursor off, blink off
	lcdFunctionSet  = 0x28 // 4-bit bus, 2 lines, 5x8 font
	lcdSetDDRAMAddr = 0x80
)

var lcdRowOffsets = [4]byte{0x00, 0x40, 0x14, 0x54}

// nibbleBus is the 4-bit parallel interface to the controller.
type nibbleBus interface {
	// SetRS selects the data (true) or instruction (false) register.
	SetRS(data bool) error
	// Send puts nibble on D4..D7 and pulses the enable line.
	Send(nibble byte) error
}

// hd44780 drives a character LCD in 4-bit mode.
type hd44780 struct {
	bus   nibbleBus
	cols  int
	rows  int
	delay func(time.Duration)

	mu sync.Mutex
}

func newHD44780(bus nibbleBus, cols, rows int) *hd44780 {
	if rows > len(lcdRowOffsets) {
		rows = len(lcdRowOffsets)
	}
	return &hd44780{bus: bus, cols: cols, rows: rows, delay: time.Sleep}
}

// initialise runs the 4-bit initialisation sequence from the datasheet.
func (d *hd44780) initialise() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.delay(50 * time.Millisecond)
	if err := d.bus.SetRS(false); err != nil {
		return err
	}
	for _, wait := range []time.Duration{4500 * time.Microsecond, 4500 * time.Microsecond, 150 * time.Microsecond} {
		if err := d.bus.Send(0x03); err != nil {
			return err
		}
		d.delay(wait)
	}
	if err := d.bus.Send(0x02); err != nil {
		return err
	}
	for _, cmd := range []byte{lcdFunctionSet, lcdDisplayOn, lcdEntryMode} {
		if err := d.command(cmd); err != nil {
			return err
		}
	}
	return d.clear()
}

// WriteText clears the display and writes s, wrapping at the column limit
// and on '\n'. Text beyond the last row is dropped.
func (d *hd44780) WriteText(s string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.clear(); err != nil {
		return err
	}
	for row, line := range layoutText(s, d.cols, d.rows) {
		if line == "" {
			continue
		}
		if err := d.command(lcdSetDDRAMAddr | lcdRowOffsets[row]); err != nil {
			return err
		}
		for i := 0; i < len(line); i++ {
			if err := d.write(line[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clear blanks the display.
func (d *hd44780) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clear()
}

func (d *hd44780) clear() error {
	if err := d.command(lcdClear); err != nil {
		return err
	}
	d.delay(2 * time.Millisecond)
	return nil
}

func (d *hd44780) command(b byte) error {
	return d.sendByte(false, b)
}

func (d *hd44780) write(b byte) error {
	return d.sendByte(true, b)
}

func (d *hd44780) sendByte(data bool, b byte) error {
	if err := d.bus.SetRS(data); err != nil {
		return err
	}
	if err := d.bus.Send(b >> 4); err != nil {
		return err
	}
	if err := d.bus.Send(b & 0x0F); err != nil {
		return err
	}
	d.delay(50 * time.Microsecond)
	return nil
}

// layoutText splits s into at most rows lines of at most cols printable
// ASCII characters. Characters outside the ROM's ASCII range become '?'.
func layoutText(s string, cols, rows int) []string {
	if cols <= 0 || rows <= 0 {
		return nil
	}
	out := make([]string, 0, rows)
	var cur strings.Builder
	flush := func() bool {
		out = append(out, cur.String())
		cur.Reset()
		return len(out) < rows
	}

	for _, r := range s {
		if r == '\n' {
			if !flush() {
				return out
			}
			continue
		}
		if cur.Len() == cols {
			if !flush() {
				return out
			}
		}
		if r < 0x20 || r > 0x7E {
			r = '?'
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 || len(out) == 0 {
		out = append(out, cur.String())
	}
	return out
}
