package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/gpio-controller/internal/worker"
)

func TestFormatPayload(t *testing.T) {
	event := WorkerEvent{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		RunID:     "run-1",
		Group:     "buttons",
		Worker:    "red",
		From:      "RUNNING",
		To:        "STOPPED",
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"worker":{"timestamp":"2026-02-02T22:18:12Z","run_id":"run-1","group":"buttons","name":"red","from":"RUNNING","to":"STOPPED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatPayloadWithError(t *testing.T) {
	event := WorkerEvent{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 500, time.UTC),
		Group:     "buttons",
		Worker:    "green",
		From:      "RUNNING",
		To:        "FAILED",
		Error:     "read button: line gone",
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Worker.Error != "read button: line gone" {
		t.Errorf("unexpected error field: %s", parsed.Worker.Error)
	}
	if parsed.Worker.Timestamp != "2026-02-02T22:18:12.0000005Z" {
		t.Errorf("unexpected timestamp: %s", parsed.Worker.Timestamp)
	}
	if parsed.Worker.RunID != "" {
		t.Errorf("expected empty run id, got %s", parsed.Worker.RunID)
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	event := WorkerEvent{
		Timestamp: time.Date(2026, 2, 2, 17, 0, 0, 0, loc),
		Worker:    "blue",
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	json.Unmarshal(payload, &parsed)
	if parsed.Worker.Timestamp != "2026-02-02T22:00:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.Worker.Timestamp)
	}
}

func TestTopics(t *testing.T) {
	if got := WorkerTopic(DefaultTopicPrefix); got != "gpio/controller/workers" {
		t.Errorf("unexpected worker topic: %s", got)
	}
	if got := SystemTopic("lab/pi/"); got != "lab/pi/system" {
		t.Errorf("unexpected system topic: %s", got)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	tests := []struct {
		name     string
		event    SystemEvent
		expected string
	}{
		{
			"shutdown",
			SystemEvent{Timestamp: time.Date(2026, 2, 3, 19, 10, 0, 0, time.UTC), Event: "SHUTDOWN", Reason: "SIGTERM"},
			`{"system":{"timestamp":"2026-02-03T19:10:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`,
		},
		{
			"will",
			SystemEvent{Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC), Event: "SHUTDOWN", Reason: "MQTT_DISCONNECT"},
			`{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`,
		},
		{
			"reconnected omits reason",
			SystemEvent{Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC), Event: "RECONNECTED"},
			`{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := FormatSystemPayload(tt.event)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(payload) != tt.expected {
				t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), tt.expected)
			}
		})
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload passthrough, got %s", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.PublishWorker(WorkerEvent{Timestamp: time.Now(), Worker: "red", To: "RUNNING"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "SHUTDOWN", Reason: "SIGINT", Retained: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.WorkerEvents()) != 1 || f.WorkerEvents()[0].Worker != "red" {
		t.Errorf("unexpected worker events: %+v", f.WorkerEvents())
	}
	if len(f.Payloads) != 1 || len(f.SystemPayloads) != 1 {
		t.Errorf("expected one payload each, got %d/%d", len(f.Payloads), len(f.SystemPayloads))
	}
	sys := f.System()
	if len(sys) != 1 || sys[0].Event != "SHUTDOWN" || !sys[0].Retained {
		t.Errorf("unexpected system events: %+v", sys)
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")
	f.PublishSystemError = errors.New("broker down")

	if err := f.PublishWorker(WorkerEvent{}); err == nil {
		t.Error("expected publish error")
	}
	if err := f.PublishSystem(SystemEvent{}); err == nil {
		t.Error("expected publish system error")
	}
	if len(f.Events) != 0 || len(f.SystemEvents) != 0 {
		t.Error("failed publishes should not be recorded")
	}
}

func TestFakePublisherCloseAndReset(t *testing.T) {
	f := NewFakePublisher()
	f.Connected = true
	f.PublishWorker(WorkerEvent{Worker: "red"})
	f.Close()

	if !f.Closed {
		t.Error("expected Closed=true")
	}
	if !f.IsConnected() {
		t.Error("expected IsConnected=true")
	}

	f.Reset()
	if f.Closed || f.IsConnected() || len(f.Events) != 0 || len(f.Payloads) != 0 {
		t.Error("reset should clear all state")
	}

	// Reusable after reset
	f.PublishWorker(WorkerEvent{Worker: "blue"})
	if len(f.WorkerEvents()) != 1 {
		t.Errorf("expected 1 event after reset, got %d", len(f.WorkerEvents()))
	}
}

func TestReporterForwardsTransitions(t *testing.T) {
	f := NewFakePublisher()
	r := NewReporter(f, "run-7", 8, nil)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.WorkerTransition(worker.WorkerTransition{Group: "blink", Worker: "red", From: worker.StateCreated, To: worker.StateRunning, Time: at})
	r.WorkerTransition(worker.WorkerTransition{Group: "blink", Worker: "red", From: worker.StateRunning, To: worker.StateFailed, Err: errors.New("boom"), Time: at})
	r.GroupTransition(worker.GroupTransition{Group: "blink", To: worker.GroupDraining})
	r.Close()

	events := f.WorkerEvents()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].RunID != "run-7" || events[0].From != "CREATED" || events[0].To != "RUNNING" {
		t.Errorf("event 0: got %+v", events[0])
	}
	if events[1].To != "FAILED" || events[1].Error != "boom" {
		t.Errorf("event 1: got %+v", events[1])
	}
}

// blockingPublisher holds every publish until released.
type blockingPublisher struct {
	*FakePublisher
	release chan struct{}
}

func (b *blockingPublisher) PublishWorker(e WorkerEvent) error {
	<-b.release
	return b.FakePublisher.PublishWorker(e)
}

func TestReporterNeverBlocksWorkers(t *testing.T) {
	pub := &blockingPublisher{FakePublisher: NewFakePublisher(), release: make(chan struct{})}
	r := NewReporter(pub, "", 2, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			r.WorkerTransition(worker.WorkerTransition{Worker: "red", To: worker.StateRunning})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WorkerTransition blocked on a slow publisher")
	}

	close(pub.release)
	r.Close()

	// One in flight plus two queued; the rest were dropped.
	if n := len(pub.WorkerEvents()); n < 2 || n > 3 {
		t.Errorf("expected 2-3 published events, got %d", n)
	}
}

func TestReporterCloseIsIdempotent(t *testing.T) {
	r := NewReporter(NewFakePublisher(), "", 1, nil)
	r.Close()
	r.Close()
	// Transitions after close are ignored.
	r.WorkerTransition(worker.WorkerTransition{Worker: "red"})
}

func TestReporterConcurrentTransitions(t *testing.T) {
	f := NewFakePublisher()
	r := NewReporter(f, "", 1000, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.WorkerTransition(worker.WorkerTransition{Worker: "w", To: worker.StateRunning})
			}
		}()
	}
	wg.Wait()
	r.Close()

	if n := len(f.WorkerEvents()); n != 400 {
		t.Errorf("expected 400 events, got %d", n)
	}
}
