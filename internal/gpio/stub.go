//go:build !linux

package gpio

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealShiftRegister is not available on non-Linux platforms.
type RealShiftRegister struct{}

// NewRealShiftRegister returns an error on non-Linux platforms.
func NewRealShiftRegister(chipName string, pins Pins, bits int, half time.Duration) (*RealShiftRegister, error) {
	return nil, errUnsupported
}

// Write is not implemented on non-Linux platforms.
func (r *RealShiftRegister) Write(word uint32) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealShiftRegister) Close() error {
	return nil
}

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// NewRealOutput returns an error on non-Linux platforms.
func NewRealOutput(chipName string, pin int, activeLow, initial bool) (*RealOutput, error) {
	return nil, errUnsupported
}

// Set is not implemented on non-Linux platforms.
func (o *RealOutput) Set(on bool) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (o *RealOutput) Close() error {
	return nil
}
