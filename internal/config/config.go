// Package config loads the daemon's static configuration: a YAML file,
// secrets from a dotenv file, and LETTERBOX_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/letterbox/internal/gpio"
	"github.com/sweeney/letterbox/internal/mqtt"
	"github.com/sweeney/letterbox/internal/outputs"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LETTERBOX_"

// Restart modes.
const (
	RestartSupervise = "supervise"
	RestartExit      = "exit"
)

// Station backends.
const (
	StationNM       = "nmcli"
	StationPiHelper = "pi-helper"
)

// Config is the daemon configuration.
type Config struct {
	WiFi       WiFi       `yaml:"wifi"`
	NTP        NTP        `yaml:"ntp"`
	MQTT       MQTT       `yaml:"mqtt"`
	Outputs    Outputs    `yaml:"outputs"`
	Indicators Indicators `yaml:"indicators"`
	HTTP       HTTP       `yaml:"http"`
	Restart    Restart    `yaml:"restart"`
	RTC        RTC        `yaml:"rtc"`
	Publish    Publish    `yaml:"publish"`
}

// WiFi configures the connectivity supervisor.
type WiFi struct {
	Station          string        `yaml:"station"`
	Interface        string        `yaml:"interface"`
	PiHelperEnv      string        `yaml:"pi_helper_env"`
	SSID             string        `yaml:"ssid"`
	Password         string        `yaml:"password"`
	FallbackSSID     string        `yaml:"fallback_ssid"`
	FallbackPassword string        `yaml:"fallback_password"`
	Timeout          time.Duration `yaml:"timeout"`
	Poll             time.Duration `yaml:"poll"`
	GuardInterval    time.Duration `yaml:"guard_interval"`
}

// NTP configures the clock synchronizer. An empty host skips the phase.
type NTP struct {
	Host      string        `yaml:"host"`
	Timeout   time.Duration `yaml:"timeout"`
	UTCOffset time.Duration `yaml:"utc_offset"`
}

// MQTT configures the state channel. An empty broker skips the phase.
type MQTT struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	KeepAlive      time.Duration `yaml:"keepalive"`
	PumpInterval   time.Duration `yaml:"pump_interval"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// Outputs configures the output bank and the shift-register lines.
type Outputs struct {
	Count         int           `yaml:"count"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Chip          string        `yaml:"chip"`
	DataPin       int           `yaml:"data_pin"`
	ClockPin      int           `yaml:"clock_pin"`
	LatchPin      int           `yaml:"latch_pin"`
	EnablePin     int           `yaml:"enable_pin"`
	WatchdogPin   int           `yaml:"watchdog_pin"`
	HalfPeriod    time.Duration `yaml:"half_period"`
}

// Indicators configures the status and string LEDs. Console draws them on
// stdout instead of driving GPIO lines.
type Indicators struct {
	Console   bool `yaml:"console"`
	StatusPin int  `yaml:"status_pin"`
	StringPin int  `yaml:"string_pin"`
}

// HTTP configures the control surface. An empty address disables it.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Restart configures the fault policy.
type Restart struct {
	Mode  string        `yaml:"mode"`
	Delay time.Duration `yaml:"delay"`
}

// RTC selects the persistent clock. An empty device uses a software clock.
type RTC struct {
	Device string `yaml:"device"`
}

// Publish configures the periodic state publisher.
type Publish struct {
	Period time.Duration `yaml:"period"`
}

// Default returns the configuration used for any unset field.
func Default() Config {
	return Config{
		WiFi: WiFi{
			Station:       StationNM,
			Interface:     "wlan0",
			PiHelperEnv:   "/run/pi-helper.env",
			Timeout:       30 * time.Second,
			Poll:          time.Second,
			GuardInterval: time.Second,
		},
		NTP: NTP{
			Host:    "pool.ntp.org",
			Timeout: time.Second,
		},
		MQTT: MQTT{
			ClientID:       "letterbox",
			KeepAlive:      mqtt.DefaultKeepAlive,
			PumpInterval:   mqtt.DefaultPumpInterval,
			ConnectTimeout: mqtt.DefaultConnectTimeout,
			PublishTimeout: mqtt.DefaultPublishTimeout,
		},
		Outputs: Outputs{
			Count:         outputs.DefaultCount,
			FlushInterval: outputs.DefaultFlushInterval,
			Chip:          gpio.DefaultChip,
			DataPin:       gpio.DefaultDataPin,
			ClockPin:      gpio.DefaultClockPin,
			LatchPin:      gpio.DefaultLatchPin,
			EnablePin:     gpio.DefaultEnablePin,
			WatchdogPin:   gpio.DefaultWatchdog,
		},
		Indicators: Indicators{
			StatusPin: gpio.DefaultStatusLED,
			StringPin: gpio.DefaultStringLED,
		},
		HTTP:    HTTP{Addr: ":80"},
		Restart: Restart{Mode: RestartSupervise, Delay: 2 * time.Second},
		Publish: Publish{Period: time.Second},
	}
}

// Load reads the YAML file at path over the defaults, then the dotenv file
// at envFile (if any) into the process environment, then applies
// LETTERBOX_* overrides. Either path may be empty.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, leaving fields absent from data untouched.
// Unknown keys are an error.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Marshal renders cfg as YAML with secrets masked.
func (c Config) Marshal() ([]byte, error) {
	masked := c
	if masked.WiFi.Password != "" {
		masked.WiFi.Password = "********"
	}
	if masked.WiFi.FallbackPassword != "" {
		masked.WiFi.FallbackPassword = "********"
	}
	if masked.MQTT.Password != "" {
		masked.MQTT.Password = "********"
	}
	return yaml.Marshal(masked)
}

type lookupFunc func(string) (string, bool)

// applyEnv overlays the variables a deployment keeps out of the YAML file.
func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"WIFI_SSID":              &c.WiFi.SSID,
		"WIFI_PASSWORD":          &c.WiFi.Password,
		"WIFI_FALLBACK_SSID":     &c.WiFi.FallbackSSID,
		"WIFI_FALLBACK_PASSWORD": &c.WiFi.FallbackPassword,
		"WIFI_STATION":           &c.WiFi.Station,
		"NTP_HOST":               &c.NTP.Host,
		"MQTT_BROKER":            &c.MQTT.Broker,
		"MQTT_CLIENT_ID":         &c.MQTT.ClientID,
		"MQTT_USERNAME":          &c.MQTT.Username,
		"MQTT_PASSWORD":          &c.MQTT.Password,
		"HTTP_ADDR":              &c.HTTP.Addr,
		"RESTART_MODE":           &c.Restart.Mode,
		"RTC_DEVICE":             &c.RTC.Device,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	durs := map[string]*time.Duration{
		"NTP_UTC_OFFSET": &c.NTP.UTCOffset,
		"MQTT_KEEPALIVE": &c.MQTT.KeepAlive,
		"RESTART_DELAY":  &c.Restart.Delay,
	}
	for key, dst := range durs {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
	}

	if v, ok := lookup(EnvPrefix + "OUTPUTS_COUNT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sOUTPUTS_COUNT: %w", EnvPrefix, err)
		}
		c.Outputs.Count = n
	}
	if v, ok := lookup(EnvPrefix + "INDICATORS_CONSOLE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sINDICATORS_CONSOLE: %w", EnvPrefix, err)
		}
		c.Indicators.Console = b
	}
	return nil
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.WiFi.Station {
	case StationNM:
		if c.WiFi.SSID == "" {
			add("wifi.ssid is required with the %s station", StationNM)
		}
	case StationPiHelper:
	default:
		add("wifi.station must be %q or %q, got %q", StationNM, StationPiHelper, c.WiFi.Station)
	}
	if c.WiFi.FallbackPassword != "" && c.WiFi.FallbackSSID == "" {
		add("wifi.fallback_password set without wifi.fallback_ssid")
	}
	if c.WiFi.Poll <= 0 || c.WiFi.Timeout < c.WiFi.Poll {
		add("wifi.timeout (%v) must be at least wifi.poll (%v) and poll positive", c.WiFi.Timeout, c.WiFi.Poll)
	}
	if c.WiFi.GuardInterval <= 0 {
		add("wifi.guard_interval must be positive")
	}
	if c.NTP.Timeout <= 0 {
		add("ntp.timeout must be positive")
	}
	if c.NTP.UTCOffset < -14*time.Hour || c.NTP.UTCOffset > 14*time.Hour {
		add("ntp.utc_offset %v out of range", c.NTP.UTCOffset)
	}
	if c.MQTT.Broker != "" {
		if c.MQTT.ClientID == "" || strings.ContainsAny(c.MQTT.ClientID, "/+#") {
			add("mqtt.client_id %q must be non-empty and free of topic separators", c.MQTT.ClientID)
		}
		if c.MQTT.KeepAlive < time.Second {
			add("mqtt.keepalive must be at least 1s")
		}
	}
	if c.Outputs.Count < 1 || c.Outputs.Count > outputs.Width {
		add("outputs.count must be 1..%d, got %d", outputs.Width, c.Outputs.Count)
	}
	if c.Outputs.FlushInterval <= 0 {
		add("outputs.flush_interval must be positive")
	}
	if c.Publish.Period <= 0 {
		add("publish.period must be positive")
	}
	switch c.Restart.Mode {
	case RestartSupervise, RestartExit:
	default:
		add("restart.mode must be %q or %q, got %q", RestartSupervise, RestartExit, c.Restart.Mode)
	}
	if c.Restart.Delay < 0 {
		add("restart.delay must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Topics returns the state channel topics for the configured client ID.
func (c Config) Topics() mqtt.Topics {
	return mqtt.NewTopics(c.MQTT.ClientID)
}
