// Package gpio provides the button input and digital outputs with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Button is an edge-interrupt input line.
type Button interface {
	// SetEdgeHandler installs the interrupt handler. The handler runs on the
	// event goroutine of the line and must only do non-blocking work.
	SetEdgeHandler(h func())

	// Level returns the raw line level (true = high, released).
	Level() (bool, error)

	// EnableIRQ lets edges reach the handler.
	EnableIRQ()

	// DisableIRQ masks edges.
	DisableIRQ()

	// Close releases GPIO resources.
	Close() error
}

// Output is a digital output with explicit init/deinit.
type Output interface {
	// Init requests the line as an output driven low.
	Init() error

	// Set drives the line.
	Set(on bool) error

	// Deinit drives the line low and releases it.
	Deinit() error
}

// Default line offsets on gpiochip0 (BCM numbering).
const (
	DefaultChip         = "gpiochip0"
	DefaultPinButton    = 17
	DefaultPinMeasureEn = 27
	DefaultPinLED       = 22
)
