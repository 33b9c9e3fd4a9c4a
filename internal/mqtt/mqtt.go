// Package mqtt publishes worker lifecycle and controller system events to
// MQTT, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"
)

// DefaultTopicPrefix is the topic root for all controller messages.
const DefaultTopicPrefix = "gpio/controller"

// WorkerTopic returns the topic for worker transition events.
func WorkerTopic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/workers"
}

// SystemTopic returns the topic for system lifecycle events.
func SystemTopic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/system"
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishWorker sends a worker transition to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishWorker(event WorkerEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// WorkerEvent is one worker state change.
type WorkerEvent struct {
	Timestamp time.Time
	RunID     string
	Group     string
	Worker    string
	From      string
	To        string
	Error     string
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload for a worker event.
type Payload struct {
	Worker WorkerPayload `json:"worker"`
}

// WorkerPayload contains the worker event details.
type WorkerPayload struct {
	Timestamp string `json:"timestamp"`
	RunID     string `json:"run_id,omitempty"`
	Group     string `json:"group"`
	Name      string `json:"name"`
	From      string `json:"from"`
	To        string `json:"to"`
	Error     string `json:"error,omitempty"`
}

// FormatPayload creates the JSON payload for a worker event.
func FormatPayload(event WorkerEvent) ([]byte, error) {
	payload := Payload{
		Worker: WorkerPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
			RunID:     event.RunID,
			Group:     event.Group,
			Name:      event.Worker,
			From:      event.From,
			To:        event.To,
			Error:     event.Error,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
