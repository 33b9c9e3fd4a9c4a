// Package config loads the controller's YAML configuration file.
// The defaults reproduce the breadboard the controller was built around;
// a file only needs to list what differs.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/gpio-controller/internal/gpio"
)

// Config is the top-level configuration.
type Config struct {
	// Chip is the GPIO character device, e.g. "gpiochip0".
	Chip string `yaml:"chip"`

	// Pairs maps each color to its button and LED pins (BCM numbering).
	Pairs []PairConfig `yaml:"pairs"`

	LCD    LCDConfig    `yaml:"lcd"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	HTTP   HTTPConfig   `yaml:"http"`
	Worker WorkerConfig `yaml:"worker"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// PairConfig is one button/LED pair.
type PairConfig struct {
	Name   string `yaml:"name"`
	Button int    `yaml:"button"`
	LED    int    `yaml:"led"`
}

// LCDConfig describes an HD44780 display wired in 4-bit mode.
type LCDConfig struct {
	Enabled bool   `yaml:"enabled"`
	RS      int    `yaml:"rs"`
	E       int    `yaml:"e"`
	Data    [4]int `yaml:"data"`
	Cols    int    `yaml:"cols"`
	Rows    int    `yaml:"rows"`
}

// Pins returns the display's pin assignment.
func (c LCDConfig) Pins() gpio.LCDPins {
	return gpio.LCDPins{RS: c.RS, E: c.E, Data: c.Data}
}

// MQTTConfig configures lifecycle publishing. An empty broker disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

// HTTPConfig configures the status server. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// WorkerConfig tunes the worker tasks and group shutdown.
type WorkerConfig struct {
	Interval     Duration `yaml:"interval"`
	Poll         Duration `yaml:"poll"`
	PWMPeriod    Duration `yaml:"pwm_period"`
	DrainTimeout Duration `yaml:"drain_timeout"`
	GracePeriod  Duration `yaml:"grace_period"`
}

// Duration is a time.Duration written as a Go duration string ("250ms", "5s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", node.Line, err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Chip: gpio.DefaultChip,
		Pairs: []PairConfig{
			{Name: "red", Button: gpio.PinRedButton, LED: gpio.PinRedLED},
			{Name: "yellow", Button: gpio.PinYellowButton, LED: gpio.PinYellowLED},
			{Name: "green", Button: gpio.PinGreenButton, LED: gpio.PinGreenLED},
			{Name: "blue", Button: gpio.PinBlueButton, LED: gpio.PinBlueLED},
		},
		LCD: LCDConfig{
			Enabled: true,
			RS:      gpio.PinLCDRS,
			E:       gpio.PinLCDE,
			Data:    gpio.DefaultLCDData,
			Cols:    16,
			Rows:    2,
		},
		MQTT: MQTTConfig{
			TopicPrefix: "gpio/controller",
			ClientID:    "gpio-controller",
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Worker: WorkerConfig{
			Interval:     Duration(time.Second),
			Poll:         Duration(time.Millisecond),
			PWMPeriod:    Duration(10 * time.Millisecond),
			DrainTimeout: Duration(5 * time.Second),
			GracePeriod:  Duration(time.Second),
		},
		LogLevel: "info",
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. A pairs
// list in the document replaces the default pairs entirely.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for mistakes that would only show up
// once the hardware is claimed.
func (c *Config) Validate() error {
	var errs []error
	if c.Chip == "" {
		errs = append(errs, errors.New("chip must be set"))
	}

	names := make(map[string]bool)
	pins := make(map[int]string)
	claim := func(pin int, owner string) {
		if pin < 0 {
			errs = append(errs, fmt.Errorf("%s: pin %d is negative", owner, pin))
			return
		}
		if prev, ok := pins[pin]; ok {
			errs = append(errs, fmt.Errorf("%s: pin %d already used by %s", owner, pin, prev))
			return
		}
		pins[pin] = owner
	}

	for _, p := range c.Pairs {
		key := strings.ToLower(p.Name)
		if key == "" {
			errs = append(errs, errors.New("pair with empty name"))
			continue
		}
		if names[key] {
			errs = append(errs, fmt.Errorf("duplicate pair %q", p.Name))
			continue
		}
		names[key] = true
		claim(p.Button, key+" button")
		claim(p.LED, key+" led")
	}

	if c.LCD.Enabled {
		claim(c.LCD.RS, "lcd rs")
		claim(c.LCD.E, "lcd e")
		for i, d := range c.LCD.Data {
			claim(d, fmt.Sprintf("lcd d%d", i+4))
		}
		if c.LCD.Cols <= 0 || c.LCD.Rows <= 0 || c.LCD.Rows > 4 {
			errs = append(errs, fmt.Errorf("lcd: invalid size %dx%d", c.LCD.Cols, c.LCD.Rows))
		}
	}

	for _, d := range []struct {
		name string
		v    Duration
	}{
		{"interval", c.Worker.Interval},
		{"poll", c.Worker.Poll},
		{"pwm_period", c.Worker.PWMPeriod},
		{"drain_timeout", c.Worker.DrainTimeout},
		{"grace_period", c.Worker.GracePeriod},
	} {
		if d.v <= 0 {
			errs = append(errs, fmt.Errorf("worker.%s must be positive", d.name))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
