// Package status provides a thread-safe tracker for the letterbox device
// state. It is read by the state publisher, the HTTP handlers and the
// indicator LEDs, and written by the command handler and the ticker.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/letterbox/internal/clock"
	"github.com/sweeney/letterbox/internal/logic"
)

// Snapshot is a point-in-time view of device state.
// It is a value type and stays valid after the lock is released.
type Snapshot struct {
	Enabled       bool
	On            bool
	Timestamp     clock.CalendarTime
	StartTime     time.Time
	Now           time.Time
	WiFiConnected bool
	Address       string
	MQTTConnected bool
	ClockSynced   bool
}

// Uptime returns the duration since the device runtime started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// DeviceState returns the flag portion of the snapshot.
func (s Snapshot) DeviceState() logic.DeviceState {
	return logic.DeviceState{Enabled: s.Enabled, On: s.On}
}

// Tracker holds mutable device state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with default flags (both false).
func NewTracker(startTime time.Time, timestamp clock.CalendarTime) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Timestamp: timestamp,
		},
		now: time.Now,
	}
}

// Apply writes cmd into the device flags and returns the resulting snapshot.
// The mutation and the returned copy are taken under one lock.
func (t *Tracker) Apply(cmd logic.Command) Snapshot {
	t.mu.Lock()
	s := cmd.Apply(t.snap.DeviceState())
	t.snap.Enabled = s.Enabled
	t.snap.On = s.On
	snap := t.snap
	t.mu.Unlock()
	snap.Now = t.now()
	return snap
}

// Stamp sets the timestamp carried by the next state publication.
func (t *Tracker) Stamp(ts clock.CalendarTime) {
	t.mu.Lock()
	t.snap.Timestamp = ts
	t.mu.Unlock()
}

// SetWiFi sets the WiFi connection projection and address.
func (t *Tracker) SetWiFi(connected bool, addr string) {
	t.mu.Lock()
	t.snap.WiFiConnected = connected
	t.snap.Address = addr
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetClockSynced records whether the last NTP sync succeeded.
func (t *Tracker) SetClockSynced(ok bool) {
	t.mu.Lock()
	t.snap.ClockSynced = ok
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the device state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
