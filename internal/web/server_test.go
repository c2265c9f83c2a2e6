package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/letterbox/internal/clock"
	"github.com/sweeney/letterbox/internal/logic"
	"github.com/sweeney/letterbox/internal/outputs"
	"github.com/sweeney/letterbox/internal/status"
)

func newTestServer(t *testing.T) (*httptest.Server, *outputs.Bank, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := status.NewTracker(start, clock.FromTime(start))
	bank := outputs.NewBank(outputs.DefaultCount)
	srv := New(":0", bank, tr)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, bank, tr
}

func decodeMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return m
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestRegisterEndpoint(t *testing.T) {
	ts, bank, _ := newTestServer(t)
	bank.Set("op1", 1)
	bank.Set("op3", 1)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
	var rj RegisterJSON
	if err := json.NewDecoder(resp.Body).Decode(&rj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if rj.Outputs != 5 {
		t.Errorf("outputs: got %d, want 5", rj.Outputs)
	}
}

func TestGetOutput(t *testing.T) {
	ts, bank, _ := newTestServer(t)
	bank.Set("op5", 1)

	resp, err := http.Get(ts.URL + "/outputs/5")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	m := decodeMap(t, resp)
	if m["name"] != "op5" || m["value"] != float64(1) {
		t.Errorf("unexpected body: %v", m)
	}
	if _, ok := m["error"]; ok {
		t.Error("Ok result should not carry an error field")
	}
}

func TestSetOutput(t *testing.T) {
	ts, bank, _ := newTestServer(t)

	resp := post(t, ts.URL+"/outputs/3", `{"value": 1}`)
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	m := decodeMap(t, resp)
	if m["name"] != "op3" || m["value"] != float64(1) {
		t.Errorf("unexpected body: %v", m)
	}
	if bank.Value() != 1<<2 {
		t.Errorf("register: got %#x, want %#x", bank.Value(), 1<<2)
	}

	resp2 := post(t, ts.URL+"/outputs/3", `{"value": 0}`)
	resp2.Body.Close()
	if bank.Value() != 0 {
		t.Errorf("register after clear: got %#x", bank.Value())
	}
}

func TestUnknownOutput(t *testing.T) {
	ts, bank, _ := newTestServer(t)

	for _, path := range []string{"/outputs/0", "/outputs/17", "/outputs/01", "/outputs/x"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: status %d, want 404", path, resp.StatusCode)
		}
		m := decodeMap(t, resp)
		resp.Body.Close()
		if _, ok := m["error"]; !ok {
			t.Errorf("%s: expected error shape, got %v", path, m)
		}
		if _, ok := m["name"]; ok {
			t.Errorf("%s: error shape should not carry a name", path)
		}
	}

	resp := post(t, ts.URL+"/outputs/99", `{"value": 1}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("POST unknown: status %d, want 404", resp.StatusCode)
	}
	if bank.Value() != 0 {
		t.Errorf("register mutated: %#x", bank.Value())
	}
}

func TestBadBody(t *testing.T) {
	ts, bank, _ := newTestServer(t)

	for _, body := range []string{`{"value": `, `not json`, `{"value": "on"}`} {
		resp := post(t, ts.URL+"/outputs/1", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%q: status %d, want 400", body, resp.StatusCode)
		}
		m := decodeMap(t, resp)
		resp.Body.Close()
		if _, ok := m["error"]; !ok {
			t.Errorf("%q: expected error shape, got %v", body, m)
		}
	}
	if bank.Value() != 0 {
		t.Errorf("register mutated: %#x", bank.Value())
	}
}

func TestInvalidValue(t *testing.T) {
	ts, bank, _ := newTestServer(t)

	resp := post(t, ts.URL+"/outputs/2", `{"value": 7}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
	m := decodeMap(t, resp)
	if m["value"] != float64(7) {
		t.Errorf("error shape should echo the value, got %v", m)
	}
	if bank.Value() != 0 {
		t.Errorf("register mutated: %#x", bank.Value())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/outputs/1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	ts, _, tr := newTestServer(t)
	on := true
	tr.Apply(logic.Command{On: &on})
	tr.SetWiFi(true, "192.168.1.50")
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if !sj.State.On || sj.State.Enabled {
		t.Errorf("state: got %+v", sj.State)
	}
	if !sj.WiFi.Connected || sj.WiFi.Address != "192.168.1.50" {
		t.Errorf("wifi: got %+v", sj.WiFi)
	}
	if !sj.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.StartTime != "2026-01-01T00:00:00Z" {
		t.Errorf("start_time: got %q", sj.StartTime)
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	bank := outputs.NewBank(4)
	tr := status.NewTracker(time.Now(), clock.CalendarTime{})
	srv := New(":0", bank, tr)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
