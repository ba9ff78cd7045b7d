//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"
)

// RealButton reads the button from actual hardware using Linux GPIO character device.
type RealButton struct {
	line    *gpiocdev.Line
	enabled atomic.Bool

	mu      sync.RWMutex
	handler func()
}

// NewRealButton requests the button line as input with pull-up and both-edge
// events. Edges are masked until EnableIRQ is called.
func NewRealButton(chip string, pin int) (*RealButton, error) {
	b := &RealButton{}
	line, err := gpiocdev.RequestLine(chip, pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(b.onEvent))
	if err != nil {
		return nil, fmt.Errorf("request button pin %d: %w", pin, err)
	}
	b.line = line
	return b, nil
}

func (b *RealButton) onEvent(gpiocdev.LineEvent) {
	if !b.enabled.Load() {
		return
	}
	b.mu.RLock()
	h := b.handler
	b.mu.RUnlock()
	if h != nil {
		h()
	}
}

// SetEdgeHandler installs the interrupt handler.
func (b *RealButton) SetEdgeHandler(h func()) {
	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()
}

// Level returns the raw line level.
func (b *RealButton) Level() (bool, error) {
	v, err := b.line.Value()
	if err != nil {
		return false, fmt.Errorf("read button pin: %w", err)
	}
	return v != 0, nil
}

// EnableIRQ lets edges reach the handler.
func (b *RealButton) EnableIRQ() { b.enabled.Store(true) }

// DisableIRQ masks edges.
func (b *RealButton) DisableIRQ() { b.enabled.Store(false) }

// Close releases GPIO resources.
// Reconfigures the pin to input with pull-up before closing so the button
// keeps a defined level while nothing owns the line.
func (b *RealButton) Close() error {
	b.DisableIRQ()
	var errs []error
	if b.line != nil {
		if err := b.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure button pin: %w", err))
		}
		if err := b.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button pin: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// RealOutput drives an output line. The line is only requested between Init
// and Deinit so the pin floats back to its boot default when idle.
type RealOutput struct {
	chip string
	pin  int
	line *gpiocdev.Line
}

// NewRealOutput describes an output line without requesting it.
func NewRealOutput(chip string, pin int) *RealOutput {
	return &RealOutput{chip: chip, pin: pin}
}

// Init requests the line as an output driven low.
func (o *RealOutput) Init() error {
	if o.line != nil {
		return o.Set(false)
	}
	line, err := gpiocdev.RequestLine(o.chip, o.pin, gpiocdev.AsOutput(0))
	if err != nil {
		return fmt.Errorf("request output pin %d: %w", o.pin, err)
	}
	o.line = line
	return nil
}

// Set drives the line.
func (o *RealOutput) Set(on bool) error {
	if o.line == nil {
		return fmt.Errorf("output pin %d not initialised", o.pin)
	}
	v := 0
	if on {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set output pin %d: %w", o.pin, err)
	}
	return nil
}

// Deinit drives the line low and releases it.
func (o *RealOutput) Deinit() error {
	if o.line == nil {
		return nil
	}
	var errs []error
	if err := o.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("reset output pin %d: %w", o.pin, err))
	}
	if err := o.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close output pin %d: %w", o.pin, err))
	}
	o.line = nil
	return errors.Join(errs...)
}
