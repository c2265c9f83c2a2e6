// Package outputs holds the bank of named digital outputs that is shifted
// out to the shift-register chain.
package outputs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Width is the register width in bits (four chained 74HC595s).
const Width = 32

// DefaultCount is the number of outputs exposed by default.
const DefaultCount = 16

// NamePrefix forms output names op1..opN.
const NamePrefix = "op"

var (
	// ErrUnknownOutput is returned for names outside op1..opN.
	ErrUnknownOutput = errors.New("unknown output")

	// ErrInvalidValue is returned for values other than 0 and 1.
	ErrInvalidValue = errors.New("invalid value")
)

// Result is the outcome of a Get or Set: either Ok {name, value} or
// Error {error, value}.
type Result struct {
	Name  string
	Value int
	Err   error
}

// OK reports whether r is the Ok variant.
func (r Result) OK() bool { return r.Err == nil }

type okJSON struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type errorJSON struct {
	Error string `json:"error"`
	Value int    `json:"value"`
}

// MarshalJSON encodes the Ok variant as {"name","value"} and the Error
// variant as {"error","value"}.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(errorJSON{Error: r.Err.Error(), Value: r.Value})
	}
	return json.Marshal(okJSON{Name: r.Name, Value: r.Value})
}

// Name returns the output name for ordinal i (1-based).
func Name(i int) string {
	return NamePrefix + strconv.Itoa(i)
}

// Bank is a fixed-width register where bit i holds output op(i+1).
type Bank struct {
	mu    sync.Mutex
	reg   uint32
	count int
}

// NewBank creates a bank of count outputs, all off. count is clamped to
// 1..Width.
func NewBank(count int) *Bank {
	if count < 1 {
		count = 1
	}
	if count > Width {
		count = Width
	}
	return &Bank{count: count}
}

// Count returns the number of named outputs.
func (b *Bank) Count() int { return b.count }

// Index resolves name to its bit position. Only the canonical spelling
// op1..opN is accepted.
func (b *Bank) Index(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, NamePrefix)
	if !ok || digits == "" || digits[0] == '0' {
		return 0, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 || n > b.count {
		return 0, false
	}
	return n - 1, true
}

// Get returns the value of name.
func (b *Bank) Get(name string) Result {
	bit, ok := b.Index(name)
	if !ok {
		return Result{Err: fmt.Errorf("%w %s", ErrUnknownOutput, name)}
	}
	b.mu.Lock()
	v := int(b.reg>>bit) & 1
	b.mu.Unlock()
	return Result{Name: name, Value: v}
}

// Set writes value (0 or 1) to name and returns the stored value. Unknown
// names and out-of-range values leave the register untouched.
func (b *Bank) Set(name string, value int) Result {
	bit, ok := b.Index(name)
	if !ok {
		return Result{Value: value, Err: fmt.Errorf("%w %s", ErrUnknownOutput, name)}
	}
	if value != 0 && value != 1 {
		return Result{Value: value, Err: fmt.Errorf("%w %d for %s", ErrInvalidValue, value, name)}
	}
	mask := uint32(1) << bit
	b.mu.Lock()
	b.reg = b.reg&^mask | uint32(value)<<bit
	b.mu.Unlock()
	return Result{Name: name, Value: value}
}

// Value returns the whole register.
func (b *Bank) Value() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reg
}
