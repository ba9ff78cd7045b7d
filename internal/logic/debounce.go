package logic

// DebounceResult is the outcome of feeding one raw sample to the Debouncer.
type DebounceResult int

const (
	Unsettled DebounceResult = iota
	SettledLow
	SettledHigh
)

func (r DebounceResult) String() string {
	switch r {
	case SettledLow:
		return "SETTLED_LOW"
	case SettledHigh:
		return "SETTLED_HIGH"
	}
	return "UNSETTLED"
}

// Register patterns. The top three bits are forced to one on every sample so
// that only the low 13 bits take part in the comparison.
const (
	debounceMask     uint16 = 0xE000
	debounceLowMark  uint16 = 0xF000
	debounceHighMark uint16 = 0xFFFF
	debounceSeed     uint16 = 0x0001
)

// DebounceSamples is the number of consecutive identical samples required
// before a level is accepted.
const DebounceSamples = 12

// Debouncer is a shift-register debounce filter for one input line.
// A terminal pattern is only reachable after DebounceSamples identical
// samples that follow an opposite (or seed) bit, so a single noisy sample
// restarts the run.
type Debouncer struct {
	reg uint16
}

// Arm seeds the register. Called on every accepted edge.
func (d *Debouncer) Arm() {
	d.reg = debounceSeed
}

// Reset returns the register to its neutral state.
func (d *Debouncer) Reset() {
	d.reg = 0
}

// Register returns the raw shift register, for diagnostics.
func (d *Debouncer) Register() uint16 {
	return d.reg
}

// Sample shifts in one raw level (true = high) and reports whether the line
// has settled.
func (d *Debouncer) Sample(level bool) DebounceResult {
	var bit uint16
	if level {
		bit = 1
	}
	d.reg = (d.reg << 1) | bit | debounceMask

	switch d.reg {
	case debounceLowMark:
		return SettledLow
	case debounceHighMark:
		return SettledHigh
	}
	return Unsettled
}
