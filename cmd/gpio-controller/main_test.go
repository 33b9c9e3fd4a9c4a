package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sweeney/gpio-controller/internal/config"
	"github.com/sweeney/gpio-controller/internal/gpio"
	"github.com/sweeney/gpio-controller/internal/mqtt"
	"github.com/sweeney/gpio-controller/internal/orchestrator"
	"github.com/sweeney/gpio-controller/internal/status"
	"github.com/sweeney/gpio-controller/internal/worker"
)

func TestRootCmdSubcommands(t *testing.T) {
	root := newRootCmd()
	assert.Equal(t, "gpio-controller", root.Use)
	assert.True(t, root.SilenceUsage)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	sort.Strings(names)
	assert.Equal(t, []string{"all-buttons", "blink", "buttons", "intensity", "lcd", "print-state"}, names)
}

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		assert.Equal(t, canonical, got)
	}
}

func TestReadNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "HomeNet")

	info := readNetworkInfo()
	require.NotNil(t, info)
	assert.Equal(t, status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "HomeNet",
	}, *info)
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	assert.Nil(t, readNetworkInfo())
}

// fakeHardware wires four colors to fake devices. Buttons alternate so a
// mirroring LED keeps changing.
func fakeHardware(t *testing.T) (*hardware, map[string]*gpio.FakeDevice, map[string]*gpio.FakeDevice, *gpio.FakeDisplay) {
	t.Helper()
	buttons := make(map[string]*gpio.FakeDevice)
	leds := make(map[string]*gpio.FakeDevice)
	hw := &hardware{}
	for _, c := range []string{"red", "yellow", "green", "blue"} {
		buttons[c] = gpio.NewAlternatingDevice()
		leds[c] = gpio.NewFakeDevice()
		hw.pairs = append(hw.pairs, orchestrator.Pair{Name: c, Button: buttons[c], LED: leds[c]})
	}
	display := gpio.NewFakeDisplay()
	hw.display = display
	return hw, buttons, leds, display
}

func newSession(t *testing.T, mode orchestrator.Mode, pub *mqtt.FakePublisher) *session {
	t.Helper()
	cfg := config.Default()
	cfg.HTTP.Addr = ""
	s := &session{
		mode:     mode,
		settings: orchestrator.DefaultSettings(),
		cfg:      cfg,
		log:      zaptest.NewLogger(t).Sugar(),
		out:      &bytes.Buffer{},
		runID:    "run-test",
	}
	if pub != nil {
		cfg.MQTT.Broker = "tcp://broker:1883"
		s.pub = pub
		s.conn = pub
	}
	return s
}

func systemEvents(pub *mqtt.FakePublisher) []string {
	var out []string
	for _, e := range pub.System() {
		out = append(out, e.Event+":"+e.Reason)
	}
	return out
}

func TestSessionCancelStopsGroup(t *testing.T) {
	hw, _, leds, _ := fakeHardware(t)
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	s := newSession(t, orchestrator.ModeAllButtons, pub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	snap, err := s.run(ctx, hw)
	require.NoError(t, err)

	assert.Equal(t, worker.GroupDone, snap.GroupState)
	assert.Equal(t, 4, snap.Counts.Stopped)
	assert.True(t, snap.MQTTConnected)
	for c, led := range leds {
		assert.NotEmpty(t, led.WriteLog(), "%s LED never written", c)
	}
	assert.Equal(t, []string{"STARTUP:", "SHUTDOWN:CANCELLED"}, systemEvents(pub))
}

func TestSessionDurationCompletes(t *testing.T) {
	hw, _, _, _ := fakeHardware(t)
	pub := mqtt.NewFakePublisher()
	s := newSession(t, orchestrator.ModeButtons, pub)
	s.names = []string{"Red", "blue"}
	s.settings.Duration = 30 * time.Millisecond
	s.settings.StopOnFirst = true

	start := time.Now()
	snap, err := s.run(context.Background(), hw)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, snap.Workers, 2)
	for _, w := range snap.Workers {
		assert.Equal(t, worker.StateStopped, w.State, w.Name)
	}
	assert.Equal(t, []string{"STARTUP:", "SHUTDOWN:COMPLETED"}, systemEvents(pub))

	report := s.out.(*bytes.Buffer).String()
	assert.Contains(t, report, "buttons group DONE")
	assert.Contains(t, report, "red")
	assert.Contains(t, report, "blue")
}

func TestSessionWorkerFailure(t *testing.T) {
	hw, buttons, _, _ := fakeHardware(t)
	buttons["green"].ReadError = errors.New("line gone")
	pub := mqtt.NewFakePublisher()
	s := newSession(t, orchestrator.ModeAllButtons, pub)

	snap, err := s.run(context.Background(), hw)

	var tf *worker.TaskFailure
	require.ErrorAs(t, err, &tf)
	assert.Equal(t, "green", tf.Worker)

	green, ok := snap.Worker("green")
	require.True(t, ok)
	assert.Equal(t, worker.StateFailed, green.State)
	assert.Contains(t, green.Err, "line gone")
	assert.Equal(t, 1, snap.Counts.Failed)
	assert.Equal(t, 3, snap.Counts.Stopped)

	assert.Equal(t, []string{"STARTUP:", "SHUTDOWN:FAILED"}, systemEvents(pub))
	assert.Contains(t, s.out.(*bytes.Buffer).String(), "line gone")
}

func TestSessionPublishesWorkerEvents(t *testing.T) {
	hw, _, _, _ := fakeHardware(t)
	pub := mqtt.NewFakePublisher()
	s := newSession(t, orchestrator.ModeBlink, pub)
	s.names = []string{"red"}
	s.settings.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := s.run(ctx, hw)
	require.NoError(t, err)

	var to []worker.State
	for _, e := range pub.WorkerEvents() {
		assert.Equal(t, "red", e.Worker)
		assert.Equal(t, "run-test", e.RunID)
		assert.Equal(t, "blink", e.Group)
		to = append(to, worker.State(e.To))
	}
	require.NotEmpty(t, to)
	assert.Equal(t, worker.StateRunning, to[0])
	assert.Equal(t, worker.StateStopped, to[len(to)-1])
}

func TestSessionShutdownPayload(t *testing.T) {
	hw, _, _, _ := fakeHardware(t)
	pub := mqtt.NewFakePublisher()
	s := newSession(t, orchestrator.ModeAllButtons, pub)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.run(ctx, hw)
	require.NoError(t, err)

	events := pub.System()
	require.Len(t, events, 2)
	shutdown := events[1]
	assert.True(t, shutdown.Retained)

	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal(shutdown.RawPayload, &sj))
	assert.Equal(t, "SHUTDOWN", sj.Status.Event)
	assert.Equal(t, "run-test", sj.Status.RunID)
	assert.Equal(t, "all-buttons", sj.Status.Group)
	assert.Equal(t, "DONE", sj.Status.GroupState)
	assert.Len(t, sj.Status.Workers, 4)
}

func TestSessionLCD(t *testing.T) {
	hw, _, _, display := fakeHardware(t)
	s := newSession(t, orchestrator.ModeLCD, nil)
	s.settings.Text = "Hello World"

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	snap, err := s.run(ctx, hw)
	require.NoError(t, err)

	assert.Equal(t, "Hello World", display.Current())
	lcd, ok := snap.Worker(orchestrator.DisplayWorker)
	require.True(t, ok)
	assert.Equal(t, worker.StateStopped, lcd.State)
}

func TestSessionUnknownColor(t *testing.T) {
	hw, _, _, _ := fakeHardware(t)
	pub := mqtt.NewFakePublisher()
	s := newSession(t, orchestrator.ModeButtons, pub)
	s.names = []string{"purple"}

	_, err := s.run(context.Background(), hw)
	require.ErrorIs(t, err, orchestrator.ErrUnknownPair)
	assert.Empty(t, pub.System(), "nothing published for a group that never ran")
}

func TestSessionGeneratesRunID(t *testing.T) {
	hw, _, _, _ := fakeHardware(t)
	s := newSession(t, orchestrator.ModeAllButtons, nil)
	s.runID = ""

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	snap, err := s.run(ctx, hw)
	require.NoError(t, err)
	assert.Len(t, snap.RunID, 36)
}

func TestPrintState(t *testing.T) {
	hw := &hardware{pairs: []orchestrator.Pair{
		{Name: "red", Button: gpio.NewFakeDevice(true), LED: gpio.NewFakeDevice()},
		{Name: "blue", Button: gpio.NewFakeDevice(false), LED: gpio.NewFakeDevice()},
	}}
	var out bytes.Buffer
	require.NoError(t, printState(&out, hw))
	assert.Equal(t, "red: ON\nblue: OFF\n", out.String())
}

func TestPrintStateReadError(t *testing.T) {
	button := gpio.NewFakeDevice()
	button.ReadError = errors.New("busy")
	hw := &hardware{pairs: []orchestrator.Pair{{Name: "red", Button: button, LED: gpio.NewFakeDevice()}}}

	err := printState(&bytes.Buffer{}, hw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read red button")
}

type orderCloser struct {
	name  string
	order *[]string
	err   error
}

func (c orderCloser) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestHardwareCloseReverseOrder(t *testing.T) {
	var order []string
	hw := &hardware{closers: []io.Closer{
		orderCloser{name: "chip", order: &order},
		orderCloser{name: "lcd", order: &order, err: errors.New("clear failed")},
	}}

	err := hw.Close()
	require.Error(t, err)
	assert.Equal(t, []string{"lcd", "chip"}, order)
	require.NoError(t, hw.Close(), "second close is a no-op")
}

func TestSignalName(t *testing.T) {
	assert.Equal(t, "SIGINT", signalName(syscall.SIGINT))
	assert.Equal(t, "SIGTERM", signalName(syscall.SIGTERM))
	assert.Equal(t, os.Kill.String(), signalName(os.Kill))
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpio.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chip: gpiochip4\nworker:\n  interval: 2s\n"), 0o644))

	opts := &options{}
	root := newRootCmdWith(opts)
	require.NoError(t, root.ParseFlags([]string{"--config", path, "--interval", "250ms", "--broker", "tcp://b:1883"}))

	cfg, err := loadConfig(root, opts)
	require.NoError(t, err)
	assert.Equal(t, "gpiochip4", cfg.Chip)
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.Interval.Std())
	assert.Equal(t, "tcp://b:1883", cfg.MQTT.Broker)
	assert.Equal(t, ":8080", cfg.HTTP.Addr, "unset flags keep the default")
}

func TestLoadConfigRejectsInvalidFlag(t *testing.T) {
	opts := &options{}
	root := newRootCmdWith(opts)
	require.NoError(t, root.ParseFlags([]string{"--drain-timeout", "0s"}))

	_, err := loadConfig(root, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drain_timeout")
}

func TestSettingsFor(t *testing.T) {
	cfg := config.Default()
	opts := &options{duration: time.Minute, stopOnFirst: true}

	s := settingsFor(cfg, opts, "hi")
	assert.Equal(t, time.Second, s.Interval)
	assert.Equal(t, time.Millisecond, s.Poll)
	assert.Equal(t, 10*time.Millisecond, s.PWMPeriod)
	assert.Equal(t, 5*time.Second, s.DrainTimeout)
	assert.Equal(t, time.Minute, s.Duration)
	assert.True(t, s.StopOnFirst)
	assert.Equal(t, "hi", s.Text)
}

func TestRootCommandModes(t *testing.T) {
	var names []string
	for _, c := range newRootCmd().Commands() {
		names = append(names, c.Name())
	}
	sort.Strings(names)
	assert.Equal(t, []string{"all-buttons", "blink", "buttons", "intensity", "lcd", "print-state"}, names)
}
