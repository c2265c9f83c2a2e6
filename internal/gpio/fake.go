package gpio

import "sync"

// FakeShiftRegister records written words for test assertions.
type FakeShiftRegister struct {
	mu sync.Mutex

	// Words contains every word written, in order.
	Words []uint32

	// WriteError, if set, will be returned by Write.
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeShiftRegister creates a FakeShiftRegister for testing.
func NewFakeShiftRegister() *FakeShiftRegister {
	return &FakeShiftRegister{}
}

// Write records word.
func (f *FakeShiftRegister) Write(word uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Words = append(f.Words, word)
	return nil
}

// Written returns a copy of the recorded words.
func (f *FakeShiftRegister) Written() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint32(nil), f.Words...)
}

// Close marks the register as closed.
func (f *FakeShiftRegister) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// FakeOutput records the levels it was driven to.
type FakeOutput struct {
	mu sync.Mutex

	// Levels contains every value passed to Set, in order.
	Levels []bool

	// SetError, if set, will be returned by Set.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeOutput creates a FakeOutput for testing.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records on.
func (f *FakeOutput) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Levels = append(f.Levels, on)
	return nil
}

// Level returns the last value set, or false if never set.
func (f *FakeOutput) Level() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Levels) == 0 {
		return false
	}
	return f.Levels[len(f.Levels)-1]
}

// History returns a copy of all levels set.
func (f *FakeOutput) History() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.Levels...)
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
