package gpio

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

type busOp struct {
	rs     bool
	nibble byte
}

// recordingBus captures every nibble with the register it was sent to.
type recordingBus struct {
	rs  bool
	ops []busOp
	err error
}

func (b *recordingBus) SetRS(data bool) error {
	b.rs = data
	return b.err
}

func (b *recordingBus) Send(nibble byte) error {
	if b.err != nil {
		return b.err
	}
	b.ops = append(b.ops, busOp{rs: b.rs, nibble: nibble})
	return nil
}

// bytes reassembles nibble pairs sent after init into bytes.
func (b *recordingBus) bytes(data bool) []byte {
	var out []byte
	for i := 0; i+1 < len(b.ops); i += 2 {
		hi, lo := b.ops[i], b.ops[i+1]
		if hi.rs == data && lo.rs == data {
			out = append(out, hi.nibble<<4|lo.nibble)
		}
	}
	return out
}

func newTestLCD(bus *recordingBus) *hd44780 {
	d := newHD44780(bus, 16, 2)
	d.delay = func(time.Duration) {}
	return d
}

func TestHD44780Init(t *testing.T) {
	bus := &recordingBus{}
	d := newTestLCD(bus)

	if err := d.initialise(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantPrefix := []byte{0x03, 0x03, 0x03, 0x02}
	if len(bus.ops) < len(wantPrefix) {
		t.Fatalf("expected at least %d nibbles, got %d", len(wantPrefix), len(bus.ops))
	}
	for i, n := range wantPrefix {
		if bus.ops[i].rs || bus.ops[i].nibble != n {
			t.Errorf("nibble %d: expected instruction 0x%X, got %+v", i, n, bus.ops[i])
		}
	}

	rest := &recordingBus{ops: bus.ops[len(wantPrefix):]}
	want := []byte{lcdFunctionSet, lcdDisplayOn, lcdEntryMode, lcdClear}
	if got := rest.bytes(false); !reflect.DeepEqual(got, want) {
		t.Errorf("expected commands % X, got % X", want, got)
	}
}

func TestHD44780WriteText(t *testing.T) {
	bus := &recordingBus{}
	d := newTestLCD(bus)

	if err := d.WriteText("Hi\nyou"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := string(bus.bytes(true)); got != "Hiyou" {
		t.Errorf("expected data 'Hiyou', got %q", got)
	}
	wantCmds := []byte{lcdClear, lcdSetDDRAMAddr | 0x00, lcdSetDDRAMAddr | 0x40}
	if got := bus.bytes(false); !reflect.DeepEqual(got, wantCmds) {
		t.Errorf("expected commands % X, got % X", wantCmds, got)
	}
}

func TestHD44780BusError(t *testing.T) {
	bus := &recordingBus{err: errors.New("line busy")}
	d := newTestLCD(bus)

	if err := d.WriteText("x"); err == nil {
		t.Error("expected bus error")
	}
}

func TestLayoutText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", []string{""}},
		{"short", "hi", []string{"hi"}},
		{"newline", "a\nb", []string{"a", "b"}},
		{"wrap", "abcdefghij", []string{"abcd", "efgh"}},
		{"exact", "abcd", []string{"abcd"}},
		{"truncate rows", "a\nb\nc", []string{"a", "b"}},
		{"non ascii", "café", []string{"caf?"}},
		{"trailing newline", "ab\n", []string{"ab"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := layoutText(tt.in, 4, 2)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("layoutText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLayoutTextZeroSize(t *testing.T) {
	if got := layoutText("abc", 0, 2); got != nil {
		t.Errorf("expected nil, got %q", got)
	}
}
