package gpio

import (
	"sync"
)

// FakeButton is a test double for Button.
type FakeButton struct {
	mu      sync.Mutex
	level   bool
	enabled bool
	handler func()

	// LevelError is returned by Level when set.
	LevelError error

	// Counters for IRQ mask calls.
	EnableCalls  int
	DisableCalls int

	// Closed is set by Close.
	Closed bool
}

// NewFakeButton creates a released (high) button with edges masked.
func NewFakeButton() *FakeButton {
	return &FakeButton{level: true}
}

// SetEdgeHandler installs the interrupt handler.
func (f *FakeButton) SetEdgeHandler(h func()) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

// Level returns the simulated level.
func (f *FakeButton) Level() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LevelError != nil {
		return false, f.LevelError
	}
	return f.level, nil
}

// SetLevel changes the simulated level without raising an edge.
func (f *FakeButton) SetLevel(high bool) {
	f.mu.Lock()
	f.level = high
	f.mu.Unlock()
}

// Edge changes the level and calls the handler if edges are enabled.
// It reports whether the handler ran.
func (f *FakeButton) Edge(high bool) bool {
	f.mu.Lock()
	f.level = high
	h := f.handler
	on := f.enabled
	f.mu.Unlock()
	if !on || h == nil {
		return false
	}
	h()
	return true
}

// EnableIRQ lets edges reach the handler.
func (f *FakeButton) EnableIRQ() {
	f.mu.Lock()
	f.enabled = true
	f.EnableCalls++
	f.mu.Unlock()
}

// DisableIRQ masks edges.
func (f *FakeButton) DisableIRQ() {
	f.mu.Lock()
	f.enabled = false
	f.DisableCalls++
	f.mu.Unlock()
}

// Enabled reports whether edges currently reach the handler.
func (f *FakeButton) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// Close marks the fake as closed.
func (f *FakeButton) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// FakeOutput records what was driven onto an output line.
type FakeOutput struct {
	mu sync.Mutex

	// Active is true between Init and Deinit.
	Active bool
	// Value is the last driven level.
	Value bool
	// Sets records every Set call in order.
	Sets []bool

	InitCalls   int
	DeinitCalls int

	// InitError is returned by Init when set.
	InitError error
}

// Init marks the line active and driven low.
func (f *FakeOutput) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InitCalls++
	if f.InitError != nil {
		return f.InitError
	}
	f.Active = true
	f.Value = false
	return nil
}

// Set records the driven level.
func (f *FakeOutput) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Value = on
	f.Sets = append(f.Sets, on)
	return nil
}

// Deinit releases the line.
func (f *FakeOutput) Deinit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeinitCalls++
	f.Active = false
	f.Value = false
	return nil
}

// Reset clears all recorded state.
func (f *FakeOutput) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Active = false
	f.Value = false
	f.Sets = nil
	f.InitCalls = 0
	f.DeinitCalls = 0
	f.InitError = nil
}
