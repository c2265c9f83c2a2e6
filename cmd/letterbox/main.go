// Command letterbox joins WiFi, sets the clock, serves device state over
// MQTT, and drives the output bank, restarting from scratch on any fault.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/sweeney/letterbox/internal/clock"
	"github.com/sweeney/letterbox/internal/config"
	"github.com/sweeney/letterbox/internal/gpio"
	"github.com/sweeney/letterbox/internal/indicator"
	"github.com/sweeney/letterbox/internal/mqtt"
	"github.com/sweeney/letterbox/internal/ntp"
	"github.com/sweeney/letterbox/internal/orchestrator"
	"github.com/sweeney/letterbox/internal/outputs"
	"github.com/sweeney/letterbox/internal/status"
	"github.com/sweeney/letterbox/internal/web"
	"github.com/sweeney/letterbox/internal/wifi"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("letterbox", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "YAML config file (defaults and environment only if empty)")
	envFile := fs.String("env-file", "", "dotenv file with secrets, loaded into the environment")
	printConfig := fs.Bool("print-config", false, "Print the resolved config (secrets masked) and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		return err
	}

	if *printConfig {
		data, err := cfg.Marshal()
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		_, err = stdout.Write(data)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg)
}

// serve opens the peripherals once and boots the runtime on top of them
// according to the restart policy.
func serve(ctx context.Context, cfg config.Config) error {
	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer hw.Close()

	var rtc clock.RTC = clock.NewSoftRTC(time.Now)
	if cfg.RTC.Device != "" {
		rtc = clock.NewLinuxRTC(cfg.RTC.Device)
	}

	boot := func(ctx context.Context) error {
		o := newRuntime(cfg, hw, rtc)
		defer hw.quiesce()
		return o.Run(ctx)
	}

	log.Printf("started: station=%s broker=%q ntp=%q outputs=%d http=%q restart=%s",
		cfg.WiFi.Station, cfg.MQTT.Broker, cfg.NTP.Host, cfg.Outputs.Count, cfg.HTTP.Addr, cfg.Restart.Mode)

	if cfg.Restart.Mode == config.RestartExit {
		err = boot(ctx)
	} else {
		err = orchestrator.Supervise(ctx, boot, cfg.Restart.Delay, nil)
	}
	if ctx.Err() != nil {
		log.Printf("shutting down")
		return nil
	}
	return err
}

// newRuntime builds one boot's worth of state. Nothing is shared with a
// previous boot except the peripherals and the persistent clock.
func newRuntime(cfg config.Config, hw *hardware, rtc clock.RTC) *orchestrator.Orchestrator {
	tracker := status.NewTracker(time.Now(), clock.CalendarTime{})
	bank := outputs.NewBank(cfg.Outputs.Count)

	opts := orchestrator.Options{
		Primary:       wifi.Credentials{SSID: cfg.WiFi.SSID, Password: cfg.WiFi.Password},
		GuardInterval: cfg.WiFi.GuardInterval,
		PublishPeriod: cfg.Publish.Period,
		FlushInterval: cfg.Outputs.FlushInterval,
		HTTPAddr:      cfg.HTTP.Addr,
	}
	if cfg.WiFi.FallbackSSID != "" {
		opts.Fallback = &wifi.Credentials{SSID: cfg.WiFi.FallbackSSID, Password: cfg.WiFi.FallbackPassword}
	}

	o := &orchestrator.Orchestrator{
		Options:   opts,
		Tracker:   tracker,
		WiFi:      wifi.NewSupervisor(newStation(cfg), wifi.Options{Timeout: cfg.WiFi.Timeout, Poll: cfg.WiFi.Poll}),
		RTC:       rtc,
		StatusLED: hw.statusLED,
		StringLED: hw.stringLED,
	}

	if cfg.NTP.Host != "" {
		o.Clock = ntp.NewSynchronizer(ntp.NewClient(cfg.NTP.Host, cfg.NTP.Timeout), rtc, cfg.NTP.UTCOffset)
	}

	if cfg.MQTT.Broker != "" {
		client := mqtt.NewRealClient(mqtt.Options{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			KeepAlive:      cfg.MQTT.KeepAlive,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
			PublishTimeout: cfg.MQTT.PublishTimeout,
		})
		o.Channel = mqtt.NewChannel(client, cfg.Topics(), tracker, cfg.MQTT.KeepAlive, cfg.MQTT.PumpInterval)
	}

	if hw.register != nil {
		o.Flusher = outputs.NewFlusher(bank, hw.register, hw.enable)
	}

	if cfg.HTTP.Addr != "" {
		o.HTTP = web.New(cfg.HTTP.Addr, bank, tracker)
	}
	return o
}

func newStation(cfg config.Config) wifi.Station {
	if cfg.WiFi.Station == config.StationPiHelper {
		return wifi.NewPiHelperStation(cfg.WiFi.PiHelperEnv)
	}
	return wifi.NewNMStation(cfg.WiFi.Interface)
}

// hardware is the set of GPIO lines held for the life of the process.
// Any of them may be nil.
type hardware struct {
	watchdog  gpio.Output
	register  gpio.ShiftRegister
	enable    gpio.Output
	statusLED gpio.Output
	stringLED gpio.Output
}

// openHardware drives the watchdog-disable line high before touching
// anything else, then requests the shift-register chain and the LEDs. An
// empty chip name runs without GPIO.
func openHardware(cfg config.Config) (*hardware, error) {
	hw := &hardware{}
	oc := cfg.Outputs

	if cfg.Indicators.Console {
		hw.statusLED = indicator.NewConsole(os.Stdout, "status")
		hw.stringLED = indicator.NewConsole(os.Stdout, "string")
	}
	if oc.Chip == "" {
		log.Printf("gpio: no chip configured, outputs are not driven")
		return hw, nil
	}

	wd, err := gpio.NewRealOutput(oc.Chip, oc.WatchdogPin, false, true)
	if err != nil {
		return nil, fmt.Errorf("watchdog pin: %w", err)
	}
	hw.watchdog = wd

	enable, err := gpio.NewRealOutput(oc.Chip, oc.EnablePin, true, false)
	if err != nil {
		hw.Close()
		return nil, fmt.Errorf("output enable pin: %w", err)
	}
	hw.enable = enable

	pins := gpio.Pins{Data: oc.DataPin, Clock: oc.ClockPin, Latch: oc.LatchPin}
	reg, err := gpio.NewRealShiftRegister(oc.Chip, pins, outputs.Width, oc.HalfPeriod)
	if err != nil {
		hw.Close()
		return nil, fmt.Errorf("shift register: %w", err)
	}
	hw.register = reg

	if !cfg.Indicators.Console {
		led, err := gpio.NewRealOutput(oc.Chip, cfg.Indicators.StatusPin, false, false)
		if err != nil {
			hw.Close()
			return nil, fmt.Errorf("status led: %w", err)
		}
		hw.statusLED = led
		str, err := gpio.NewRealOutput(oc.Chip, cfg.Indicators.StringPin, false, false)
		if err != nil {
			hw.Close()
			return nil, fmt.Errorf("string led: %w", err)
		}
		hw.stringLED = str
	}
	return hw, nil
}

// quiesce returns the outputs to their power-on state between boots: the
// chain disabled and the LEDs off.
func (h *hardware) quiesce() {
	for _, out := range []gpio.Output{h.enable, h.statusLED, h.stringLED} {
		if out == nil {
			continue
		}
		if err := out.Set(false); err != nil {
			log.Printf("gpio: %v", err)
		}
	}
}

// Close releases every line. The watchdog line goes last.
func (h *hardware) Close() error {
	var errs []error
	h.quiesce()
	if h.register != nil {
		errs = append(errs, h.register.Close())
	}
	for _, out := range []gpio.Output{h.enable, h.statusLED, h.stringLED, h.watchdog} {
		if out != nil {
			errs = append(errs, out.Close())
		}
	}
	return errors.Join(errs...)
}
