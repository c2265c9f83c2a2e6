package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/letterbox/internal/clock"
	"github.com/sweeney/letterbox/internal/gpio"
	"github.com/sweeney/letterbox/internal/indicator"
	"github.com/sweeney/letterbox/internal/mqtt"
	"github.com/sweeney/letterbox/internal/orchestrator"
	"github.com/sweeney/letterbox/internal/outputs"
	"github.com/sweeney/letterbox/internal/status"
	"github.com/sweeney/letterbox/internal/web"
	"github.com/sweeney/letterbox/internal/wifi"
)

func noBlink(context.Context, gpio.Output, indicator.Pattern) error { return nil }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// TestIntegrationFullFlow drives a booted runtime through MQTT and HTTP
// using fakes for the station, broker and shift register.
func TestIntegrationFullFlow(t *testing.T) {
	station := wifi.NewFakeStation(map[string][]wifi.Status{
		"home":  {wifi.Disconnected},
		"phone": {wifi.Connecting, wifi.Connected},
	})
	client := mqtt.NewFakeClient()
	reg := gpio.NewFakeShiftRegister()
	enable := gpio.NewFakeOutput()
	statusLED := gpio.NewFakeOutput()
	stringLED := gpio.NewFakeOutput()

	stamp := clock.CalendarTime{Year: 2026, Month: 2, Day: 2, Hour: 22, Minute: 18, Second: 12}
	tracker := status.NewTracker(time.Now(), stamp)
	bank := outputs.NewBank(outputs.DefaultCount)
	rtc := clock.NewSoftRTC(nil)
	rtc.SetDateTime(stamp)

	o := &orchestrator.Orchestrator{
		Options: orchestrator.Options{
			Primary:       wifi.Credentials{SSID: "home"},
			Fallback:      &wifi.Credentials{SSID: "phone"},
			GuardInterval: time.Millisecond,
			PublishPeriod: 10 * time.Millisecond,
			FlushInterval: 2 * time.Millisecond,
		},
		Tracker:   tracker,
		WiFi:      wifi.NewSupervisor(station, wifi.Options{Timeout: 3 * time.Millisecond, Poll: time.Millisecond}),
		RTC:       rtc,
		Channel:   mqtt.NewChannel(client, mqtt.NewTopics("letterbox1"), tracker, time.Minute, time.Millisecond),
		Flusher:   outputs.NewFlusher(bank, reg, enable),
		StatusLED: statusLED,
		StringLED: stringLED,
		Indicate:  noBlink,
	}
	ts := httptest.NewServer(web.New(":0", bank, tracker).Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	waitFor(t, "steady state", func() bool { return o.Phase() == orchestrator.PhaseSteadyState })

	if got := station.Joined; len(got) != 2 || got[0] != "home" || got[1] != "phone" {
		t.Errorf("join order: got %v", got)
	}
	if !enable.Level() {
		waitFor(t, "output enable", enable.Level)
	}

	// Initial state is published right after connect.
	first := client.PublishedTo("letterbox1/state")
	if len(first) == 0 {
		t.Fatal("expected initial state publish")
	}
	var sj status.StateJSON
	if err := json.Unmarshal(first[0].Payload, &sj); err != nil {
		t.Fatalf("invalid state JSON: %v", err)
	}
	if sj.Enabled || sj.On {
		t.Errorf("initial state should be all off: %+v", sj)
	}

	// Command over MQTT: state, LEDs and echo follow.
	client.Deliver("letterbox1/set", []byte(`{"enabled": true, "on": true}`))
	waitFor(t, "command applied", func() bool {
		s := tracker.Snapshot()
		return s.Enabled && s.On && statusLED.Level() && stringLED.Level()
	})

	// Output over HTTP reaches the shift register.
	resp, err := http.Post(ts.URL+"/outputs/16", "application/json", strings.NewReader(`{"value": 1}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	waitFor(t, "flushed word", func() bool {
		w := reg.Written()
		return len(w) > 0 && w[len(w)-1] == 1<<15
	})

	// Losing the link is fatal.
	station.Drop()
	select {
	case err := <-done:
		var fe *orchestrator.FatalError
		if !errors.As(err, &fe) || !errors.Is(err, wifi.ErrLinkLost) {
			t.Errorf("expected link-loss fault, got %v", err)
		}
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("runtime kept running after link loss")
	}
	cancel()

	if !client.Closed {
		t.Error("broker session should be closed after a fault")
	}

	last := client.PublishedTo("letterbox1/state")
	if err := json.Unmarshal(last[len(last)-1].Payload, &sj); err != nil {
		t.Fatalf("invalid state JSON: %v", err)
	}
	if !sj.Enabled || !sj.On {
		t.Errorf("later publishes should carry the commanded state: %+v", sj)
	}
}

// TestIntegrationMalformedCommand checks a bad payload leaves the runtime
// and its state untouched.
func TestIntegrationMalformedCommand(t *testing.T) {
	station := wifi.NewFakeStation(map[string][]wifi.Status{"home": {wifi.Connected}})
	client := mqtt.NewFakeClient()
	tracker := status.NewTracker(time.Now(), clock.CalendarTime{})

	o := &orchestrator.Orchestrator{
		Options: orchestrator.Options{
			Primary:       wifi.Credentials{SSID: "home"},
			GuardInterval: time.Millisecond,
			PublishPeriod: time.Hour,
		},
		Tracker: tracker,
		WiFi:    wifi.NewSupervisor(station, wifi.Options{Timeout: time.Millisecond, Poll: time.Millisecond}),
		RTC:     clock.NewSoftRTC(nil),
		Channel: mqtt.NewChannel(client, mqtt.NewTopics("letterbox1"), tracker, time.Minute, time.Millisecond),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	waitFor(t, "steady state", func() bool { return o.Phase() == orchestrator.PhaseSteadyState })

	// one from connect, one from the first periodic tick
	waitFor(t, "initial publishes", func() bool { return len(client.PublishedTo("letterbox1/state")) == 2 })

	client.Deliver("letterbox1/set", []byte(`{"enabled": tr`))
	client.Deliver("letterbox1/set", []byte(`{"on": true}`))
	waitFor(t, "valid command", func() bool { return tracker.Snapshot().On })

	if tracker.Snapshot().Enabled {
		t.Error("malformed command must not mutate state")
	}
	if n := len(client.PublishedTo("letterbox1/state")); n != 3 {
		t.Errorf("expected exactly one echo for the valid command, got %d publishes", n)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
