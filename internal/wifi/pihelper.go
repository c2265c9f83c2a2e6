package wifi

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
)

// DefaultPiHelperEnv is where pi-helper writes network state.
const DefaultPiHelperEnv = "/run/pi-helper.env"

// pi-helper env var names.
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

// NetworkInfo is the link description published by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// PiHelperStation reports the link managed by pi-helper. pi-helper owns
// association, so Connect and Disconnect only select which SSID is
// expected; Status re-reads the env file on every call.
type PiHelperStation struct {
	path string
	ssid string
}

// NewPiHelperStation reads state from the env file at path.
func NewPiHelperStation(path string) *PiHelperStation {
	if path == "" {
		path = DefaultPiHelperEnv
	}
	return &PiHelperStation{path: path}
}

// Connect records the SSID the link is expected to be on.
func (p *PiHelperStation) Connect(_ context.Context, ssid, _ string) error {
	p.ssid = ssid
	return nil
}

// Disconnect clears the expected SSID.
func (p *PiHelperStation) Disconnect(context.Context) error {
	p.ssid = ""
	return nil
}

// Status maps pi-helper's NETWORK_STATUS to a link state. When the link is
// WiFi, the reported SSID must match the one requested.
func (p *PiHelperStation) Status(context.Context) (Status, error) {
	info, err := p.Info()
	if err != nil {
		return Disconnected, err
	}
	if info == nil || info.Status != "connected" {
		return Disconnected, nil
	}
	if info.Type == "wifi" && p.ssid != "" && info.SSID != p.ssid {
		return Disconnected, nil
	}
	return Connected, nil
}

// Addr returns pi-helper's NETWORK_IP.
func (p *PiHelperStation) Addr(context.Context) string {
	info, err := p.Info()
	if err != nil || info == nil {
		return ""
	}
	return info.IP
}

// Info reads the env file. It returns nil, nil when NETWORK_STATUS is unset.
func (p *PiHelperStation) Info() (*NetworkInfo, error) {
	env, err := godotenv.Read(p.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.path, err)
	}
	s := env[envNetworkStatus]
	if s == "" {
		return nil, nil
	}
	return &NetworkInfo{
		Type:       env[envNetworkType],
		IP:         env[envNetworkIP],
		Status:     s,
		Gateway:    env[envNetworkGateway],
		WifiStatus: env[envNetworkWifiStatus],
		SSID:       env[envNetworkWifiSSID],
	}, nil
}
