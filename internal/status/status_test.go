package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/letterbox/internal/clock"
	"github.com/sweeney/letterbox/internal/logic"
)

func boolPtr(b bool) *bool { return &b }

var testStamp = clock.CalendarTime{Year: 2026, Month: 1, Day: 1, Weekday: 3}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, testStamp)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Timestamp != testStamp {
		t.Errorf("Timestamp: got %v, want %v", snap.Timestamp, testStamp)
	}
	if snap.Enabled || snap.On {
		t.Error("expected Enabled=false On=false initially")
	}
	if snap.MQTTConnected || snap.WiFiConnected {
		t.Error("expected connections false initially")
	}
}

func TestApplyLeavesAbsentFieldsUntouched(t *testing.T) {
	tr := NewTracker(time.Now(), testStamp)

	snap := tr.Apply(logic.Command{On: boolPtr(true)})
	if !snap.On || snap.Enabled {
		t.Errorf("after on=true: got %+v", snap.DeviceState())
	}

	snap = tr.Apply(logic.Command{Enabled: boolPtr(true)})
	if !snap.Enabled || !snap.On {
		t.Errorf("after enabled=true: got %+v", snap.DeviceState())
	}

	if got := tr.Snapshot().DeviceState(); got != snap.DeviceState() {
		t.Errorf("Apply result disagrees with Snapshot: %+v vs %+v", snap.DeviceState(), got)
	}
}

func TestStamp(t *testing.T) {
	tr := NewTracker(time.Now(), clock.CalendarTime{})
	tr.Stamp(testStamp)
	if tr.Snapshot().Timestamp != testStamp {
		t.Errorf("Timestamp: got %v", tr.Snapshot().Timestamp)
	}
}

func TestConnectionProjections(t *testing.T) {
	tr := NewTracker(time.Now(), testStamp)

	tr.SetWiFi(true, "192.168.1.42")
	tr.SetMQTTConnected(true)
	tr.SetClockSynced(true)
	snap := tr.Snapshot()
	if !snap.WiFiConnected || snap.Address != "192.168.1.42" {
		t.Errorf("wifi: got %v %q", snap.WiFiConnected, snap.Address)
	}
	if !snap.MQTTConnected || !snap.ClockSynced {
		t.Error("expected MQTT connected and clock synced")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartTime: start, Now: start.Add(90 * time.Second)}
	if snap.Uptime() != 90*time.Second {
		t.Errorf("Uptime: got %v, want 90s", snap.Uptime())
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), testStamp)
	snap := tr.Snapshot()
	tr.Apply(logic.Command{Enabled: boolPtr(true)})
	if snap.Enabled {
		t.Error("snapshot changed after tracker mutation")
	}
}

func TestFormatState(t *testing.T) {
	tr := NewTracker(time.Now(), testStamp)
	tr.Apply(logic.Command{Enabled: boolPtr(true)})

	data := FormatState(tr.Snapshot())

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(parsed) != 3 {
		t.Errorf("expected exactly enabled/on/timestamp, got %s", data)
	}
	if string(parsed["enabled"]) != "true" || string(parsed["on"]) != "false" {
		t.Errorf("unexpected flags: %s", data)
	}
	if string(parsed["timestamp"]) != "[2026,1,1,3,0,0,0,0]" {
		t.Errorf("unexpected timestamp: %s", parsed["timestamp"])
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		On:            true,
		Timestamp:     testStamp,
		StartTime:     start,
		Now:           start.Add(3661 * time.Second),
		WiFiConnected: true,
		Address:       "10.0.0.9",
		MQTTConnected: true,
	}

	var sj StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !sj.State.On || sj.State.Enabled {
		t.Errorf("state: got %+v", sj.State)
	}
	if sj.UptimeSeconds != 3661 {
		t.Errorf("uptime: got %d, want 3661", sj.UptimeSeconds)
	}
	if sj.StartTime != "2026-01-01T00:00:00Z" {
		t.Errorf("start_time: got %q", sj.StartTime)
	}
	if !sj.WiFi.Connected || sj.WiFi.Address != "10.0.0.9" || !sj.MQTT.Connected {
		t.Errorf("connections: got %+v %+v", sj.WiFi, sj.MQTT)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), testStamp)
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Apply(logic.Command{On: boolPtr(i%2 == 0)})
			tr.SetMQTTConnected(i%2 == 0)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = tr.Snapshot()
		}
	}()
	wg.Wait()
}
