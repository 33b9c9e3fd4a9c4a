package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sweeney/gpio-controller/internal/gpio"
	"github.com/sweeney/gpio-controller/internal/worker"
)

// DefaultPoll is how often a mirror task samples its button.
const DefaultPoll = time.Millisecond

// MirrorTask copies the button state to the LED every poll. With a positive
// duration the task finishes on its own once the duration has elapsed since
// its first iteration.
func MirrorTask(button, led gpio.Device, poll, duration time.Duration) worker.Task {
	if poll <= 0 {
		poll = DefaultPoll
	}
	var deadline time.Time
	last, known := false, false

	return worker.Loop(func(ctx context.Context) (worker.Result, error) {
		if duration > 0 {
			if deadline.IsZero() {
				deadline = time.Now().Add(duration)
			} else if !time.Now().Before(deadline) {
				return worker.Stop, nil
			}
		}

		pressed, err := button.Read()
		if err != nil {
			return worker.Stop, fmt.Errorf("read button: %w", err)
		}
		if !known || pressed != last {
			if err := led.Write(pressed); err != nil {
				return worker.Stop, fmt.Errorf("write led: %w", err)
			}
			last, known = pressed, true
		}

		if err := worker.Sleep(ctx, poll); err != nil {
			return worker.Stop, err
		}
		return worker.Continue, nil
	})
}

// BlinkTask turns the LED on for one interval, then off for one interval.
func BlinkTask(led gpio.Device, interval time.Duration) worker.Task {
	on := true
	return worker.Loop(func(ctx context.Context) (worker.Result, error) {
		if err := led.Write(on); err != nil {
			return worker.Stop, fmt.Errorf("write led: %w", err)
		}
		on = !on
		if err := worker.Sleep(ctx, interval); err != nil {
			return worker.Stop, err
		}
		return worker.Continue, nil
	})
}

// IntensityTask steps the device level through 0, 0.5 and 1, one step per
// interval.
func IntensityTask(dev gpio.Device, interval time.Duration) worker.Task {
	level := 0.0
	return worker.Loop(func(ctx context.Context) (worker.Result, error) {
		if err := dev.SetLevel(level); err != nil {
			return worker.Stop, fmt.Errorf("set level: %w", err)
		}
		level = nextLevel(level)
		if err := worker.Sleep(ctx, interval); err != nil {
			return worker.Stop, err
		}
		return worker.Continue, nil
	})
}

func nextLevel(level float64) float64 {
	return math.Mod(level+0.5, 1.5)
}

// TextTask writes text once and then holds the display until stopped.
// The write is a single call, so a forceful stop never interrupts it
// mid-update.
func TextTask(display gpio.Display, text string) worker.Task {
	return worker.Blocking(func(ctx context.Context) error {
		if err := display.WriteText(text); err != nil {
			return fmt.Errorf("write display: %w", err)
		}
		<-ctx.Done()
		return ctx.Err()
	})
}
