package wifi

import (
	"context"
	"sync"
)

// FakeStation is a test double that returns scripted link states.
type FakeStation struct {
	mu sync.Mutex

	// Statuses maps an SSID to the states returned by successive Status
	// calls while that SSID is selected. The last entry repeats.
	Statuses map[string][]Status

	// ConnectError, if set, will be returned by Connect.
	ConnectError error

	// StatusError, if set, will be returned by Status.
	StatusError error

	// Address is returned by Addr.
	Address string

	// Joined records every SSID passed to Connect, in order.
	Joined []string

	// Disconnects counts Disconnect calls.
	Disconnects int

	current string
	index   int
}

// NewFakeStation creates a FakeStation with the given per-SSID script.
func NewFakeStation(statuses map[string][]Status) *FakeStation {
	return &FakeStation{Statuses: statuses, Address: "192.168.1.50"}
}

// Connect selects ssid's script.
func (f *FakeStation) Connect(_ context.Context, ssid, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Joined = append(f.Joined, ssid)
	if f.ConnectError != nil {
		return f.ConnectError
	}
	f.current = ssid
	f.index = 0
	return nil
}

// Disconnect clears the selected SSID.
func (f *FakeStation) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Disconnects++
	f.current = ""
	return nil
}

// Status returns the next scripted state for the selected SSID.
func (f *FakeStation) Status(context.Context) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StatusError != nil {
		return Disconnected, f.StatusError
	}
	script := f.Statuses[f.current]
	if len(script) == 0 {
		return Disconnected, nil
	}
	st := script[f.index]
	if f.index < len(script)-1 {
		f.index++
	}
	return st, nil
}

// Addr returns Address.
func (f *FakeStation) Addr(context.Context) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Address
}

// Drop makes every later Status call on the current SSID report Disconnected.
func (f *FakeStation) Drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Statuses[f.current] = []Status{Disconnected}
	f.index = 0
}
