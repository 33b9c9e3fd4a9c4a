package status

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	RunID         string       `json:"run_id"`
	Group         string       `json:"group"`
	GroupState    string       `json:"group_state"`
	Workers       []WorkerJSON `json:"workers"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"exit_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// WorkerJSON is the JSON representation of one worker.
type WorkerJSON struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
	Since string `json:"since,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of exit counts.
type CountsJSON struct {
	Stopped int `json:"stopped"`
	Failed  int `json:"failed"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of controller config.
type ConfigJSON struct {
	Mode           string `json:"mode"`
	Chip           string `json:"chip"`
	IntervalMs     int64  `json:"interval_ms"`
	PollMs         int64  `json:"poll_ms"`
	DrainTimeoutMs int64  `json:"drain_timeout_ms"`
	StopOnFirst    bool   `json:"stop_on_first"`
	Broker         string `json:"broker"`
	HTTPPort       string `json:"http_port"`
}

func buildInner(snap Snapshot) StatusInner {
	groupState := string(snap.GroupState)
	if groupState == "" {
		groupState = "UNKNOWN"
	}

	workers := make([]WorkerJSON, 0, len(snap.Workers))
	for _, w := range snap.Workers {
		wj := WorkerJSON{Name: w.Name, State: string(w.State), Error: w.Err}
		if !w.Since.IsZero() {
			wj.Since = w.Since.UTC().Format(time.RFC3339Nano)
		}
		workers = append(workers, wj)
	}

	return StatusInner{
		RunID:         snap.RunID,
		Group:         snap.Group,
		GroupState:    groupState,
		Workers:       workers,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        CountsJSON{Stopped: snap.Counts.Stopped, Failed: snap.Counts.Failed},
		Config: ConfigJSON{
			Mode:           snap.Config.Mode,
			Chip:           snap.Config.Chip,
			IntervalMs:     snap.Config.IntervalMs,
			PollMs:         snap.Config.PollMs,
			DrainTimeoutMs: snap.Config.DrainTimeoutMs,
			StopOnFirst:    snap.Config.StopOnFirst,
			Broker:         snap.Config.Broker,
			HTTPPort:       snap.Config.HTTPPort,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatReport returns the per-worker exit report printed on shutdown.
func FormatReport(snap Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s group %s after %v\n", snap.Group, snap.GroupState, snap.Uptime().Truncate(time.Millisecond))
	for _, w := range snap.Workers {
		if w.Err != "" {
			fmt.Fprintf(&b, "  %-12s %s (%s)\n", w.Name, w.State, w.Err)
		} else {
			fmt.Fprintf(&b, "  %-12s %s\n", w.Name, w.State)
		}
	}
	return b.String()
}
