// Command gpio-controller drives LEDs, buttons and a character display on a
// Raspberry Pi as a group of cancellable workers.
package main

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/gpio-controller/internal/config"
	"github.com/sweeney/gpio-controller/internal/logging"
	"github.com/sweeney/gpio-controller/internal/orchestrator"
)

// defaultText is written to the display when lcd is given no arguments.
const defaultText = "Hello World"

type options struct {
	configPath string

	chip     string
	broker   string
	httpAddr string
	logLevel string

	colors       []string
	interval     time.Duration
	duration     time.Duration
	drainTimeout time.Duration
	stopOnFirst  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&options{})
}

func newRootCmdWith(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:          "gpio-controller",
		Short:        "Drive LEDs, buttons and an LCD as cancellable workers",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "YAML config file (defaults are built in)")
	pf.StringVar(&opts.chip, "chip", "", "GPIO chip, e.g. gpiochip0")
	pf.StringVar(&opts.broker, "broker", "", "MQTT broker address (empty to disable)")
	pf.StringVar(&opts.httpAddr, "http", "", "HTTP status address (empty to disable)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringSliceVar(&opts.colors, "colors", nil, "button/LED pairs to use (default all)")
	pf.DurationVar(&opts.interval, "interval", 0, "blink and intensity step interval")
	pf.DurationVar(&opts.duration, "duration", 0, "stop watching buttons after this long (0 = until interrupted)")
	pf.DurationVar(&opts.drainTimeout, "drain-timeout", 0, "how long shutdown waits for workers")
	pf.BoolVar(&opts.stopOnFirst, "stop-on-first", false, "stop every worker once one finishes")

	root.AddCommand(
		newModeCmd(opts, orchestrator.ModeBlink, "Blink the selected LEDs on and off"),
		newModeCmd(opts, orchestrator.ModeIntensity, "Cycle the selected LEDs through 0, 50 and 100% brightness"),
		newModeCmd(opts, orchestrator.ModeButtons, "Light each selected LED while its button is pressed"),
		newModeCmd(opts, orchestrator.ModeAllButtons, "Light every LED while its button is pressed"),
		newLCDCmd(opts),
		newPrintStateCmd(opts),
	)
	return root
}

func newModeCmd(opts *options, mode orchestrator.Mode, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(mode),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCommand(cmd, opts, mode, "")
		},
	}
}

func newLCDCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "lcd [text...]",
		Short: "Write text to the display and hold it until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := defaultText
			if len(args) > 0 {
				text = strings.Join(args, " ")
			}
			return runCommand(cmd, opts, orchestrator.ModeLCD, text)
		},
	}
}

func newPrintStateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "print-state",
		Short: "Print each button's current state and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			hw, err := openHardware(cfg, false)
			if err != nil {
				return err
			}
			defer hw.Close()
			return printState(cmd.OutOrStdout(), hw)
		},
	}
}

func runCommand(cmd *cobra.Command, opts *options, mode orchestrator.Mode, text string) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	hw, err := openHardware(cfg, mode == orchestrator.ModeLCD)
	if err != nil {
		return err
	}
	defer func() {
		if err := hw.Close(); err != nil {
			log.Warnf("release gpio: %v", err)
		}
	}()

	s := session{
		mode:       mode,
		names:      opts.colors,
		settings:   settingsFor(cfg, opts, text),
		cfg:        cfg,
		log:        log,
		out:        cmd.OutOrStdout(),
		interrupts: true,
	}
	if cfg.MQTT.Broker != "" {
		pub, err := newPublisher(cfg, log)
		if err != nil {
			return err
		}
		defer pub.Close()
		s.pub = pub
		s.conn = pub
	}

	_, err = s.run(cmd.Context(), hw)
	return err
}

// loadConfig reads the config file, if any, and applies the flags that were
// set explicitly.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("chip") {
		cfg.Chip = opts.chip
	}
	if flags.Changed("broker") {
		cfg.MQTT.Broker = opts.broker
	}
	if flags.Changed("http") {
		cfg.HTTP.Addr = opts.httpAddr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("interval") {
		cfg.Worker.Interval = config.Duration(opts.interval)
	}
	if flags.Changed("drain-timeout") {
		cfg.Worker.DrainTimeout = config.Duration(opts.drainTimeout)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func settingsFor(cfg *config.Config, opts *options, text string) orchestrator.Settings {
	s := orchestrator.DefaultSettings()
	s.Interval = cfg.Worker.Interval.Std()
	s.Poll = cfg.Worker.Poll.Std()
	s.PWMPeriod = cfg.Worker.PWMPeriod.Std()
	s.DrainTimeout = cfg.Worker.DrainTimeout.Std()
	s.GracePeriod = cfg.Worker.GracePeriod.Std()
	s.Duration = opts.duration
	s.StopOnFirst = opts.stopOnFirst
	s.Text = text
	return s
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
