package gpio

import (
	"errors"
	"sync"
)

// FakeDevice is a test double that returns scripted reads and records writes.
// It is safe for concurrent use.
type FakeDevice struct {
	mu sync.Mutex

	// Samples contains scripted Read values. Each call to Read consumes the
	// next sample; once exhausted, the last sample repeats.
	Samples []bool

	// Alternate, if set, makes Read flip between false and true on every call
	// and ignores Samples.
	Alternate bool

	index int
	flip  bool

	// Writes records every value passed to Write (and SetLevel, as on/off).
	Writes []bool

	// Levels records every value passed to SetLevel.
	Levels []float64

	// ReadError and WriteError, if set, are returned by Read and by
	// Write/SetLevel respectively.
	ReadError  error
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeDevice creates a FakeDevice with the given read samples.
func NewFakeDevice(samples ...bool) *FakeDevice {
	return &FakeDevice{Samples: samples}
}

// NewAlternatingDevice creates a FakeDevice whose reads alternate false, true, ...
func NewAlternatingDevice() *FakeDevice {
	return &FakeDevice{Alternate: true}
}

// Read returns the next scripted sample.
func (f *FakeDevice) Read() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return false, f.ReadError
	}
	if f.Closed {
		return false, ErrClosed
	}
	if f.Alternate {
		v := f.flip
		f.flip = !f.flip
		return v, nil
	}
	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	v := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return v, nil
}

// Write records the value.
func (f *FakeDevice) Write(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	if f.Closed {
		return ErrClosed
	}
	f.Writes = append(f.Writes, on)
	return nil
}

// SetLevel records the clamped level.
func (f *FakeDevice) SetLevel(level float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	if f.Closed {
		return ErrClosed
	}
	level = ClampLevel(level)
	f.Levels = append(f.Levels, level)
	f.Writes = append(f.Writes, levelOn(level))
	return nil
}

// Close marks the device as closed.
func (f *FakeDevice) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// WriteLog returns a copy of the recorded writes.
func (f *FakeDevice) WriteLog() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.Writes...)
}

// LevelLog returns a copy of the recorded levels.
func (f *FakeDevice) LevelLog() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.Levels...)
}

// Last returns the most recent written value, or false if none.
func (f *FakeDevice) Last() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Writes) == 0 {
		return false
	}
	return f.Writes[len(f.Writes)-1]
}

// Reset rewinds samples and clears recorded writes.
func (f *FakeDevice) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = 0
	f.flip = false
	f.Writes = nil
	f.Levels = nil
	f.Closed = false
}

// FakeDisplay records text written to it. It is safe for concurrent use.
type FakeDisplay struct {
	mu sync.Mutex

	// Texts contains every string passed to WriteText.
	Texts []string

	// WriteError, if set, is returned by WriteText.
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeDisplay creates an empty FakeDisplay.
func NewFakeDisplay() *FakeDisplay {
	return &FakeDisplay{}
}

// WriteText records s.
func (f *FakeDisplay) WriteText(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Texts = append(f.Texts, s)
	return nil
}

// Close marks the display as closed.
func (f *FakeDisplay) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Current returns the last text written, or "".
func (f *FakeDisplay) Current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Texts) == 0 {
		return ""
	}
	return f.Texts[len(f.Texts)-1]
}
