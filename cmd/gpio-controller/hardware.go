package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/sweeney/gpio-controller/internal/config"
	"github.com/sweeney/gpio-controller/internal/gpio"
	"github.com/sweeney/gpio-controller/internal/orchestrator"
)

// hardware is the set of devices a run drives, plus whatever releases them.
type hardware struct {
	pairs   []orchestrator.Pair
	display gpio.Display
	closers []io.Closer
}

// Close releases devices in reverse order of acquisition.
func (h *hardware) Close() error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	h.closers = nil
	return errors.Join(errs...)
}

// openHardware requests every configured line from the chip. The display is
// only claimed when withDisplay is set so other modes leave it untouched.
func openHardware(cfg *config.Config, withDisplay bool) (*hardware, error) {
	chip, err := gpio.OpenChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	hw := &hardware{closers: []io.Closer{chip}}

	for _, p := range cfg.Pairs {
		button, err := chip.Input(p.Button)
		if err != nil {
			hw.Close()
			return nil, fmt.Errorf("%s button: %w", p.Name, err)
		}
		led, err := chip.Output(p.LED)
		if err != nil {
			hw.Close()
			return nil, fmt.Errorf("%s led: %w", p.Name, err)
		}
		hw.pairs = append(hw.pairs, orchestrator.Pair{Name: p.Name, Button: button, LED: led})
	}

	if withDisplay && cfg.LCD.Enabled {
		lcd, err := chip.OpenLCD(cfg.LCD.Pins(), cfg.LCD.Cols, cfg.LCD.Rows)
		if err != nil {
			hw.Close()
			return nil, fmt.Errorf("init lcd: %w", err)
		}
		hw.display = lcd
		hw.closers = append(hw.closers, lcd)
	}
	return hw, nil
}

// printState reads each button once and prints it, in configuration order.
func printState(w io.Writer, hw *hardware) error {
	for _, p := range hw.pairs {
		on, err := p.Button.Read()
		if err != nil {
			return fmt.Errorf("read %s button: %w", p.Name, err)
		}
		fmt.Fprintf(w, "%s: %s\n", p.Name, stateString(on))
	}
	return nil
}
