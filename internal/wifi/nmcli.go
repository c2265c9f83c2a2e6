package wifi

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// NMStation joins networks through NetworkManager's nmcli.
type NMStation struct {
	iface string
	run   func(ctx context.Context, args ...string) (string, error)

	mu     sync.Mutex
	result chan error
}

// NewNMStation manages the WiFi interface iface (e.g. "wlan0").
func NewNMStation(iface string) *NMStation {
	return &NMStation{iface: iface, run: runNmcli}
}

func runNmcli(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "nmcli", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("nmcli %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Connect starts "nmcli device wifi connect" in the background; Status
// reports its outcome.
func (n *NMStation) Connect(ctx context.Context, ssid, password string) error {
	args := []string{"--wait", "0", "device", "wifi", "connect", ssid, "ifname", n.iface}
	if password != "" {
		args = append(args, "password", password)
	}
	cmd := exec.CommandContext(ctx, "nmcli", args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start nmcli: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	n.mu.Lock()
	n.result = done
	n.mu.Unlock()
	return nil
}

// Disconnect drops the interface's active connection.
func (n *NMStation) Disconnect(ctx context.Context) error {
	n.mu.Lock()
	n.result = nil
	n.mu.Unlock()
	_, err := n.run(ctx, "device", "disconnect", n.iface)
	return err
}

// Status reads GENERAL.STATE for the interface. A failed connect command
// is reported as an error so the join stops polling early.
func (n *NMStation) Status(ctx context.Context) (Status, error) {
	n.mu.Lock()
	result := n.result
	n.mu.Unlock()
	if result != nil {
		select {
		case err := <-result:
			n.mu.Lock()
			n.result = nil
			n.mu.Unlock()
			if err != nil {
				return Disconnected, fmt.Errorf("nmcli connect: %w", err)
			}
		default:
		}
	}

	out, err := n.run(ctx, "-g", "GENERAL.STATE", "device", "show", n.iface)
	if err != nil {
		return Disconnected, err
	}
	return parseDeviceState(out)
}

// Addr returns the first IPv4 address on the interface, without prefix.
func (n *NMStation) Addr(ctx context.Context) string {
	out, err := n.run(ctx, "-g", "IP4.ADDRESS", "device", "show", n.iface)
	if err != nil {
		return ""
	}
	first, _, _ := strings.Cut(strings.TrimSpace(out), "|")
	addr, _, _ := strings.Cut(strings.TrimSpace(first), "/")
	return addr
}

// parseDeviceState maps NetworkManager's numeric device state
// (e.g. "100 (connected)") onto Status.
func parseDeviceState(out string) (Status, error) {
	field, _, _ := strings.Cut(strings.TrimSpace(out), " ")
	code, err := strconv.Atoi(field)
	if err != nil {
		return Disconnected, fmt.Errorf("parse device state %q: %w", strings.TrimSpace(out), err)
	}
	switch {
	case code == 100:
		return Connected, nil
	case code == 120:
		return Disconnected, errors.New("device state: failed")
	case code >= 40 && code < 100:
		return Connecting, nil
	default:
		return Disconnected, nil
	}
}
