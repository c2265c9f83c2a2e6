//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealShiftRegister bit-bangs a 74HC595 chain over three GPIO lines.
// Data is presented while clock is low and shifted in on the rising edge;
// after the last bit the latch line is pulsed to copy the word to the
// register outputs.
type RealShiftRegister struct {
	chip  *gpiocdev.Chip
	data  *gpiocdev.Line
	clock *gpiocdev.Line
	latch *gpiocdev.Line
	bits  int
	half  time.Duration
}

// NewRealShiftRegister requests the data, clock and latch lines on chip.
// bits is the chain width; half is the half-period of the shift clock
// (zero runs as fast as the line ioctls allow).
func NewRealShiftRegister(chipName string, pins Pins, bits int, half time.Duration) (*RealShiftRegister, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	// Clock idles high and latch idles low, matching the chain's reset state.
	data, err := chip.RequestLine(pins.Data, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request data pin %d: %w", pins.Data, err)
	}
	clock, err := chip.RequestLine(pins.Clock, gpiocdev.AsOutput(1))
	if err != nil {
		data.Close()
		chip.Close()
		return nil, fmt.Errorf("request clock pin %d: %w", pins.Clock, err)
	}
	latch, err := chip.RequestLine(pins.Latch, gpiocdev.AsOutput(0))
	if err != nil {
		clock.Close()
		data.Close()
		chip.Close()
		return nil, fmt.Errorf("request latch pin %d: %w", pins.Latch, err)
	}

	if bits <= 0 || bits > 32 {
		bits = 32
	}
	return &RealShiftRegister{
		chip:  chip,
		data:  data,
		clock: clock,
		latch: latch,
		bits:  bits,
		half:  half,
	}, nil
}

// Write shifts word out MSB first and latches it.
func (r *RealShiftRegister) Write(word uint32) error {
	for i := r.bits - 1; i >= 0; i-- {
		if err := r.clock.SetValue(0); err != nil {
			return fmt.Errorf("clock low: %w", err)
		}
		if err := r.data.SetValue(int(word>>i) & 1); err != nil {
			return fmt.Errorf("data bit %d: %w", i, err)
		}
		r.pause()
		if err := r.clock.SetValue(1); err != nil {
			return fmt.Errorf("clock high: %w", err)
		}
		r.pause()
	}
	if err := r.latch.SetValue(1); err != nil {
		return fmt.Errorf("latch high: %w", err)
	}
	r.pause()
	if err := r.latch.SetValue(0); err != nil {
		return fmt.Errorf("latch low: %w", err)
	}
	return nil
}

func (r *RealShiftRegister) pause() {
	if r.half > 0 {
		time.Sleep(r.half)
	}
}

// Close releases the lines and the chip.
func (r *RealShiftRegister) Close() error {
	var errs []error
	for _, l := range []*gpiocdev.Line{r.data, r.clock, r.latch} {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealOutput drives one GPIO line.
type RealOutput struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealOutput requests pin as an output at the given initial logical
// level. With activeLow set, logical on drives the pin low.
func NewRealOutput(chipName string, pin int, activeLow, initial bool) (*RealOutput, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(level(initial))}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := chip.RequestLine(pin, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request pin %d: %w", pin, err)
	}
	return &RealOutput{chip: chip, line: line}, nil
}

// Set drives the line to on.
func (o *RealOutput) Set(on bool) error {
	if err := o.line.SetValue(level(on)); err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

// Close releases the line and the chip.
func (o *RealOutput) Close() error {
	var errs []error
	if o.line != nil {
		if err := o.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if o.chip != nil {
		if err := o.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func level(on bool) int {
	if on {
		return 1
	}
	return 0
}
