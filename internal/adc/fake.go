package adc

import "sync"

// Fake is a test double for Reader. Channel returns queued readings in order
// and repeats the last one when the queue runs dry.
type Fake struct {
	mu       sync.Mutex
	readings []uint16
	last     uint16

	// SupplyMv is returned by Supply.
	SupplyMv uint16

	// SenseScale converts queued readings for ChannelMv. Zero means 1.
	SenseScale float64

	// ChannelError and SupplyError are returned when set.
	ChannelError error
	SupplyError  error

	ChannelReads int
	SupplyReads  int
}

// NewFake creates a Fake returning readings in order.
func NewFake(readings ...uint16) *Fake {
	return &Fake{readings: readings}
}

// Queue appends readings.
func (f *Fake) Queue(readings ...uint16) {
	f.mu.Lock()
	f.readings = append(f.readings, readings...)
	f.mu.Unlock()
}

// Channel returns the next queued reading.
func (f *Fake) Channel() (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next()
}

// ChannelMv returns the next queued reading scaled by SenseScale.
func (f *Fake) ChannelMv() (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := f.next()
	if err != nil {
		return 0, err
	}
	scale := f.SenseScale
	if scale == 0 {
		scale = 1
	}
	return ClampMv(float64(raw) * scale), nil
}

// next pops a reading. Called with mu held.
func (f *Fake) next() (uint16, error) {
	f.ChannelReads++
	if f.ChannelError != nil {
		return 0, f.ChannelError
	}
	if len(f.readings) > 0 {
		f.last = f.readings[0]
		f.readings = f.readings[1:]
	}
	return f.last, nil
}

// Supply returns SupplyMv.
func (f *Fake) Supply() (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SupplyReads++
	if f.SupplyError != nil {
		return 0, f.SupplyError
	}
	return f.SupplyMv, nil
}
