package outputs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/letterbox/internal/gpio"
)

// DefaultFlushInterval is how often the register is rewritten.
const DefaultFlushInterval = time.Second

// Flusher pushes the bank to the shift register. The first successful
// write asserts the output-enable line so the chain never shows the
// power-on garbage in its latches.
type Flusher struct {
	bank    *Bank
	reg     gpio.ShiftRegister
	enable  gpio.Output
	enabled bool
}

// NewFlusher creates a Flusher. enable may be nil when the chain's output
// enable is hard-wired.
func NewFlusher(bank *Bank, reg gpio.ShiftRegister, enable gpio.Output) *Flusher {
	return &Flusher{bank: bank, reg: reg, enable: enable}
}

// Flush writes the whole register once, unconditionally.
func (f *Flusher) Flush() error {
	word := f.bank.Value()
	if err := f.reg.Write(word); err != nil {
		return fmt.Errorf("flush outputs %#08x: %w", word, err)
	}
	if !f.enabled && f.enable != nil {
		if err := f.enable.Set(true); err != nil {
			return fmt.Errorf("assert output enable: %w", err)
		}
		log.Printf("outputs: enabled, initial word %#08x", word)
	}
	f.enabled = true
	return nil
}

// Run flushes every interval until ctx is done or a write fails. Writes
// are level-driven: the word goes out even when nothing changed, which
// also restores the chain after a peripheral reset.
func (f *Flusher) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := f.Flush(); err != nil {
				return err
			}
		}
	}
}
