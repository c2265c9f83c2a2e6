// Package indicator flashes coarse diagnostic patterns on the status LED.
package indicator

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/sweeney/letterbox/internal/gpio"
)

// Pattern is Count flashes, each on for Period and off for Period.
type Pattern struct {
	Name   string
	Count  int
	Period time.Duration
}

// Startup patterns, one per phase outcome.
var (
	Boot          = Pattern{Name: "boot", Count: 2, Period: 100 * time.Millisecond}
	WiFiFailed    = Pattern{Name: "wifi-failed", Count: 10, Period: 250 * time.Millisecond}
	ClockSet      = Pattern{Name: "clock-set", Count: 3, Period: 150 * time.Millisecond}
	ChannelUp     = Pattern{Name: "channel-up", Count: 3, Period: 300 * time.Millisecond}
	ChannelFailed = Pattern{Name: "channel-failed", Count: 5, Period: 500 * time.Millisecond}
)

// Duration is the total time the pattern takes to show.
func (p Pattern) Duration() time.Duration {
	return time.Duration(2*p.Count) * p.Period
}

// Blink shows p on led, returning early if ctx is done. The LED is left
// off. Set errors are returned; the caller decides whether they matter.
func Blink(ctx context.Context, led gpio.Output, p Pattern) error {
	defer led.Set(false)
	for i := 0; i < p.Count; i++ {
		if err := led.Set(true); err != nil {
			return fmt.Errorf("indicator %s: %w", p.Name, err)
		}
		if err := wait(ctx, p.Period); err != nil {
			return err
		}
		if err := led.Set(false); err != nil {
			return fmt.Errorf("indicator %s: %w", p.Name, err)
		}
		if err := wait(ctx, p.Period); err != nil {
			return err
		}
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Console stands in for an LED on boards without one wired, printing
// level changes in colour.
type Console struct {
	mu   sync.Mutex
	w    io.Writer
	name string
	on   *color.Color
	off  *color.Color
	last *bool
}

// NewConsole writes level changes for the LED called name to w.
func NewConsole(w io.Writer, name string) *Console {
	return &Console{
		w:    w,
		name: name,
		on:   color.New(color.FgGreen, color.Bold),
		off:  color.New(color.FgHiBlack),
	}
}

// Set prints the new level when it differs from the previous one.
func (c *Console) Set(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last != nil && *c.last == on {
		return nil
	}
	c.last = &on
	var err error
	if on {
		_, err = c.on.Fprintf(c.w, "[%s] ON\n", c.name)
	} else {
		_, err = c.off.Fprintf(c.w, "[%s] off\n", c.name)
	}
	return err
}

// Close does nothing.
func (c *Console) Close() error { return nil }
