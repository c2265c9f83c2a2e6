package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/letterbox/internal/clock"
)

// StateJSON is the payload published on the state topic.
type StateJSON struct {
	Enabled   bool               `json:"enabled"`
	On        bool               `json:"on"`
	Timestamp clock.CalendarTime `json:"timestamp"`
}

// StatusJSON is the JSON representation served on /status.
type StatusJSON struct {
	State         StateJSON  `json:"state"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	ClockSynced   bool       `json:"clock_synced"`
	WiFi          WiFiStatus `json:"wifi"`
	MQTT          MQTTStatus `json:"mqtt"`
}

// WiFiStatus reports the WiFi connection projection.
type WiFiStatus struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool `json:"connected"`
}

func buildState(snap Snapshot) StateJSON {
	return StateJSON{
		Enabled:   snap.Enabled,
		On:        snap.On,
		Timestamp: snap.Timestamp,
	}
}

// FormatState returns the state-topic payload for snap.
func FormatState(snap Snapshot) []byte {
	data, _ := json.Marshal(buildState(snap))
	return data
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	sj := StatusJSON{
		State:         buildState(snap),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		ClockSynced:   snap.ClockSynced,
		WiFi:          WiFiStatus{Connected: snap.WiFiConnected, Address: snap.Address},
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected},
	}
	data, _ := json.MarshalIndent(sj, "", "  ")
	return data
}
