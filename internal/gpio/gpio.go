// Package gpio drives digital output lines and the shift-register chain.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// ShiftRegister serializes a parallel word onto a clocked data line and
// latches it onto the register outputs.
type ShiftRegister interface {
	// Write shifts word out, most significant bit first, then pulses latch.
	Write(word uint32) error

	// Close releases GPIO resources.
	Close() error
}

// Output is a single digital output line (LED, enable or watchdog pin).
type Output interface {
	// Set drives the line to its logical on or off level.
	Set(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// Default pin assignments (BCM numbering).
const (
	DefaultChip      = "gpiochip0"
	DefaultDataPin   = 10
	DefaultClockPin  = 11
	DefaultLatchPin  = 12
	DefaultEnablePin = 13 // output enable, active low
	DefaultWatchdog  = 14 // external watchdog disable, held high
	DefaultStatusLED = 15
	DefaultStringLED = 5
)

// Pins names the three lines of a shift-register chain.
type Pins struct {
	Data  int
	Clock int
	Latch int
}
