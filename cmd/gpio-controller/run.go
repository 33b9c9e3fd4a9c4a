package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/gpio-controller/internal/config"
	"github.com/sweeney/gpio-controller/internal/interrupt"
	"github.com/sweeney/gpio-controller/internal/metrics"
	"github.com/sweeney/gpio-controller/internal/mqtt"
	"github.com/sweeney/gpio-controller/internal/orchestrator"
	"github.com/sweeney/gpio-controller/internal/status"
	"github.com/sweeney/gpio-controller/internal/web"
	"github.com/sweeney/gpio-controller/internal/worker"
)

// reporterQueue bounds worker events waiting to be published.
const reporterQueue = 64

// session is one run of a mode: build the group, wire its observers, run it
// until it finishes or is interrupted, then report.
type session struct {
	mode     orchestrator.Mode
	names    []string
	settings orchestrator.Settings
	cfg      *config.Config
	log      *zap.SugaredLogger
	out      io.Writer

	// pub is nil when MQTT is disabled. conn reports its connection state.
	pub  mqtt.Publisher
	conn mqtt.ConnectionStatus

	// interrupts subscribes SIGINT/SIGTERM for the duration of the run.
	interrupts bool

	runID string
	now   func() time.Time
}

func (s *session) run(ctx context.Context, hw *hardware) (status.Snapshot, error) {
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	if s.out == nil {
		s.out = io.Discard
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tracker := status.NewTracker(s.runID, s.now(), status.Config{
		Mode:           string(s.mode),
		Chip:           s.cfg.Chip,
		IntervalMs:     s.settings.Interval.Milliseconds(),
		PollMs:         s.settings.Poll.Milliseconds(),
		DrainTimeoutMs: s.settings.DrainTimeout.Milliseconds(),
		StopOnFirst:    s.settings.StopOnFirst,
		Broker:         s.cfg.MQTT.Broker,
		HTTPPort:       s.cfg.HTTP.Addr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	collector := metrics.New()

	coord := worker.NewCoordinator()
	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(s.log),
		orchestrator.WithListener(tracker),
		orchestrator.WithListener(collector),
		orchestrator.WithCoordinator(coord),
	}
	var reporter *mqtt.Reporter
	if s.pub != nil {
		reporter = mqtt.NewReporter(s.pub, s.runID, reporterQueue, s.log)
		defer reporter.Close()
		orchOpts = append(orchOpts, orchestrator.WithListener(reporter))
	}

	orch, err := orchestrator.New(hw.pairs, hw.display, orchOpts...)
	if err != nil {
		return status.Snapshot{}, err
	}
	group, err := orch.Build(s.mode, s.names, s.settings)
	if err != nil {
		return status.Snapshot{}, err
	}
	tracker.Register(group.Name(), group.Members())

	var bridge *interrupt.Bridge
	if s.interrupts {
		bridge, err = interrupt.Register(coord, interrupt.WithLogger(s.log))
		if err != nil {
			return status.Snapshot{}, err
		}
		defer bridge.Close()
	}

	s.publishSystem(tracker, "STARTUP", "")
	s.log.Infow("started", "mode", s.mode, "workers", group.Members(), "run_id", s.runID)

	var srv *web.Server
	if s.cfg.HTTP.Addr != "" {
		srv = web.New(s.cfg.HTTP.Addr, tracker, web.WithMetrics(collector.Handler()), web.WithStopper(group))
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		err := group.Run(egCtx)
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}
		return err
	})
	if srv != nil {
		s.log.Infof("http status server listening on %s", s.cfg.HTTP.Addr)
		eg.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}
	runErr := eg.Wait()

	if reporter != nil {
		reporter.Close()
	}

	reason := "COMPLETED"
	switch {
	case bridge != nil && bridge.Received() != nil:
		reason = signalName(bridge.Received())
	case runErr != nil:
		reason = "FAILED"
	case ctx.Err() != nil:
		reason = "CANCELLED"
	}
	snap := s.publishSystem(tracker, "SHUTDOWN", reason)

	fmt.Fprint(s.out, status.FormatReport(snap))
	if runErr != nil {
		s.log.Errorf("%s group: %v", group.Name(), runErr)
	}
	return snap, runErr
}

// publishSystem refreshes the tracker's connection state and publishes a
// retained system event carrying the snapshot.
func (s *session) publishSystem(tracker *status.Tracker, event, reason string) status.Snapshot {
	if s.conn != nil {
		tracker.SetMQTTConnected(s.conn.IsConnected())
	}
	snap := tracker.Snapshot()
	if s.pub == nil {
		return snap
	}
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := s.pub.PublishSystem(ev); err != nil {
		s.log.Warnf("failed to publish %s event: %v", event, err)
	} else {
		s.log.Debugf("published %s event", event)
	}
	return snap
}

func signalName(sig os.Signal) string {
	switch sig {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return sig.String()
	}
}

func newPublisher(cfg *config.Config, log *zap.SugaredLogger) (*mqtt.RealPublisher, error) {
	return mqtt.NewRealPublisher(mqtt.Options{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		Log:         log.Named("mqtt"),
	})
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
