//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealButton is not available on non-Linux platforms.
type RealButton struct{}

// NewRealButton returns an error on non-Linux platforms.
func NewRealButton(chip string, pin int) (*RealButton, error) {
	return nil, errUnsupported
}

// SetEdgeHandler is a no-op on non-Linux platforms.
func (b *RealButton) SetEdgeHandler(h func()) {}

// Level is not implemented on non-Linux platforms.
func (b *RealButton) Level() (bool, error) { return false, errUnsupported }

// EnableIRQ is a no-op on non-Linux platforms.
func (b *RealButton) EnableIRQ() {}

// DisableIRQ is a no-op on non-Linux platforms.
func (b *RealButton) DisableIRQ() {}

// Close is a no-op on non-Linux platforms.
func (b *RealButton) Close() error { return nil }

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// NewRealOutput returns a RealOutput whose methods always fail.
func NewRealOutput(chip string, pin int) *RealOutput { return &RealOutput{} }

// Init is not implemented on non-Linux platforms.
func (o *RealOutput) Init() error { return errUnsupported }

// Set is not implemented on non-Linux platforms.
func (o *RealOutput) Set(on bool) error { return errUnsupported }

// Deinit is a no-op on non-Linux platforms.
func (o *RealOutput) Deinit() error { return nil }
