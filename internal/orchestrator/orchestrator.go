// Package orchestrator sequences the startup phases, runs the steady-state
// tasks, and restarts the whole runtime when any of them faults.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/letterbox/internal/clock"
	"github.com/sweeney/letterbox/internal/gpio"
	"github.com/sweeney/letterbox/internal/indicator"
	"github.com/sweeney/letterbox/internal/mqtt"
	"github.com/sweeney/letterbox/internal/ntp"
	"github.com/sweeney/letterbox/internal/outputs"
	"github.com/sweeney/letterbox/internal/status"
	"github.com/sweeney/letterbox/internal/web"
	"github.com/sweeney/letterbox/internal/wifi"
)

// Phase is a startup phase.
type Phase int

const (
	PhaseBoot Phase = iota
	PhaseWiFiJoin
	PhaseClockSync
	PhaseChannelConnect
	PhaseSteadyState
)

func (p Phase) String() string {
	switch p {
	case PhaseBoot:
		return "boot"
	case PhaseWiFiJoin:
		return "wifi-join"
	case PhaseClockSync:
		return "clock-sync"
	case PhaseChannelConnect:
		return "channel-connect"
	case PhaseSteadyState:
		return "steady-state"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ErrStopped is reported when the steady state ends without a fault and
// without being cancelled.
var ErrStopped = errors.New("runtime stopped")

// FatalError is a fault whose only recovery is a restart.
type FatalError struct {
	Phase Phase
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Options holds the runtime's timing and credentials.
type Options struct {
	Primary  wifi.Credentials
	Fallback *wifi.Credentials

	GuardInterval time.Duration
	PublishPeriod time.Duration
	FlushInterval time.Duration
	HTTPAddr      string
}

func (o Options) withDefaults() Options {
	if o.GuardInterval <= 0 {
		o.GuardInterval = time.Second
	}
	if o.PublishPeriod <= 0 {
		o.PublishPeriod = time.Second
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = outputs.DefaultFlushInterval
	}
	return o
}

// Orchestrator is one boot of the runtime. It is built fresh for every
// restart, so nothing survives a fault.
type Orchestrator struct {
	Options Options

	Tracker *status.Tracker
	WiFi    *wifi.Supervisor
	RTC     clock.RTC

	// Clock is nil when no time server is configured.
	Clock *ntp.Synchronizer

	// Channel is nil when no broker is configured.
	Channel *mqtt.Channel

	// Flusher is nil when the board has no shift-register chain.
	Flusher *outputs.Flusher

	// HTTP is nil when the control surface is disabled.
	HTTP *web.Server

	// StatusLED shows the startup patterns, then follows enabled once the
	// steady state is entered; Blink leaves it off until then.
	StatusLED gpio.Output
	StringLED gpio.Output

	// Indicate shows a startup pattern; nil means indicator.Blink.
	Indicate func(ctx context.Context, led gpio.Output, p indicator.Pattern) error

	phase atomic.Int32
}

// Phase returns the phase the runtime last entered.
func (o *Orchestrator) Phase() Phase { return Phase(o.phase.Load()) }

// Run walks the startup phases and then blocks in the steady state until
// a fault (returned as *FatalError) or ctx is done (ctx's error).
func (o *Orchestrator) Run(ctx context.Context) error {
	o.Options = o.Options.withDefaults()

	o.enter(PhaseBoot)
	o.blink(ctx, indicator.Boot)

	o.enter(PhaseWiFiJoin)
	if _, err := o.WiFi.Join(ctx, o.Options.Primary, o.Options.Fallback); err != nil {
		o.blink(ctx, indicator.WiFiFailed)
		return o.fatal(ctx, err)
	}
	o.Tracker.SetWiFi(true, o.WiFi.Addr())

	if o.Clock != nil {
		o.enter(PhaseClockSync)
		if o.Clock.Sync(ctx) {
			o.Tracker.SetClockSynced(true)
			o.blink(ctx, indicator.ClockSet)
		} else {
			log.Printf("orchestrator: clock not set, continuing")
		}
	}
	o.stamp()

	if o.Channel != nil {
		o.enter(PhaseChannelConnect)
		o.Channel.OnApply(o.applyEffects)
		if err := o.Channel.Open(ctx); err != nil {
			o.blink(ctx, indicator.ChannelFailed)
			return o.fatal(ctx, err)
		}
		defer o.Channel.Close()
		o.blink(ctx, indicator.ChannelUp)
		if err := o.Channel.PublishState(); err != nil {
			return o.fatal(ctx, err)
		}
	}

	o.enter(PhaseSteadyState)
	o.applyEffects(o.Tracker.Snapshot())
	return o.steadyState(ctx)
}

func (o *Orchestrator) steadyState(ctx context.Context) error {
	var ln net.Listener
	if o.HTTP != nil {
		var err error
		ln, err = net.Listen("tcp", o.Options.HTTPAddr)
		if err != nil {
			return o.fatal(ctx, fmt.Errorf("http listen: %w", err))
		}
		log.Printf("orchestrator: http listening on %s", ln.Addr())
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.WiFi.Guard(gctx, o.Options.GuardInterval)
		if errors.Is(err, wifi.ErrLinkLost) {
			o.Tracker.SetWiFi(false, "")
		}
		return err
	})
	g.Go(func() error {
		return Every(gctx, o.Options.PublishPeriod, o.tick)
	})
	if o.Channel != nil {
		g.Go(func() error { return o.Channel.Service(gctx) })
	}
	if o.Flusher != nil {
		g.Go(func() error { return o.Flusher.Run(gctx, o.Options.FlushInterval) })
	}
	if ln != nil {
		g.Go(func() error { return o.HTTP.Run(gctx, ln) })
	}

	err := g.Wait()
	if err == nil {
		err = ErrStopped
	}
	return o.fatal(ctx, err)
}

// tick is the periodic publisher: refresh the timestamp, then publish.
func (o *Orchestrator) tick(context.Context) error {
	o.stamp()
	if o.Channel == nil {
		return nil
	}
	return o.Channel.PublishState()
}

func (o *Orchestrator) stamp() {
	ct, err := o.RTC.DateTime()
	if err != nil {
		log.Printf("orchestrator: read clock: %v", err)
		return
	}
	o.Tracker.Stamp(ct)
}

// applyEffects makes the status LED follow enabled and the string LED
// follow on.
func (o *Orchestrator) applyEffects(snap status.Snapshot) {
	if o.StatusLED != nil {
		if err := o.StatusLED.Set(snap.Enabled); err != nil {
			log.Printf("orchestrator: status led: %v", err)
		}
	}
	if o.StringLED != nil {
		if err := o.StringLED.Set(snap.On); err != nil {
			log.Printf("orchestrator: string led: %v", err)
		}
	}
}

func (o *Orchestrator) blink(ctx context.Context, p indicator.Pattern) {
	if o.StatusLED == nil {
		return
	}
	show := o.Indicate
	if show == nil {
		show = indicator.Blink
	}
	if err := show(ctx, o.StatusLED, p); err != nil && ctx.Err() == nil {
		log.Printf("orchestrator: indicator %s: %v", p.Name, err)
	}
}

func (o *Orchestrator) enter(p Phase) {
	o.phase.Store(int32(p))
	log.Printf("orchestrator: entering %s", p)
}

// fatal wraps err with the current phase unless the runtime is being shut
// down, in which case the shutdown reason wins.
func (o *Orchestrator) fatal(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &FatalError{Phase: o.Phase(), Err: err}
}
