// Package power classifies whether the node runs from battery only or has an
// external supply module attached.
//
// The sense channel sits behind a switched divider. A low raw reading means the
// divider is off or nothing is attached, so the monitor energizes the
// measurement-enable line, waits for the reading to settle and checks it
// against a second, higher threshold.
package power

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/lora-node/internal/adc"
	"github.com/sweeney/lora-node/internal/gpio"
)

// Default thresholds in raw ADC units and the settle delay.
const (
	DefaultLowThreshold  = 50
	DefaultHighThreshold = 500
	DefaultSettleDelay   = 10 * time.Millisecond
)

// Thresholds configures detection.
type Thresholds struct {
	// Low triggers a measurement when the raw reading is below it.
	Low uint16
	// High confirms presence when the settled reading is above it.
	High uint16
	// Settle is how long the enable line is held before re-reading.
	Settle time.Duration
}

// DefaultThresholds returns the standard detection thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Low:    DefaultLowThreshold,
		High:   DefaultHighThreshold,
		Settle: DefaultSettleDelay,
	}
}

// Validate checks that the thresholds are usable.
func (t Thresholds) Validate() error {
	if t.Low >= t.High {
		return fmt.Errorf("power low threshold (%d) must be below high threshold (%d)", t.Low, t.High)
	}
	if t.Settle < 0 {
		return fmt.Errorf("power settle delay must not be negative: %v", t.Settle)
	}
	return nil
}

// Monitor latches external supply presence at boot and scales supply reads.
type Monitor struct {
	adc    adc.Reader
	enable gpio.Output
	th     Thresholds
	sleep  func(time.Duration)
	log    zerolog.Logger

	mu      sync.Mutex
	present bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithSleep replaces the blocking settle wait. Tests pass a recorder.
func WithSleep(f func(time.Duration)) Option {
	return func(m *Monitor) { m.sleep = f }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// NewMonitor creates a Monitor. Presence starts false until Detect runs.
func NewMonitor(r adc.Reader, enable gpio.Output, th Thresholds, opts ...Option) *Monitor {
	m := &Monitor{
		adc:    r,
		enable: enable,
		th:     th,
		sleep:  time.Sleep,
		log:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Detect classifies the power source and latches the result.
// It blocks for the settle delay and must only run before the scheduler starts.
func (m *Monitor) Detect() (bool, error) {
	raw, err := m.adc.Channel()
	if err != nil {
		return false, fmt.Errorf("read sense channel: %w", err)
	}

	present := false
	var settled uint16
	measured := raw < m.th.Low
	if measured {
		settled, err = m.measure(m.adc.Channel)
		if err != nil {
			return false, err
		}
		present = settled > m.th.High
	}

	m.mu.Lock()
	m.present = present
	m.mu.Unlock()

	m.log.Info().
		Uint16("raw", raw).
		Bool("measured", measured).
		Uint16("settled", settled).
		Bool("external", present).
		Msg("power source detected")
	return present, nil
}

// measure energizes the enable line, waits, reads and always releases the line.
func (m *Monitor) measure(read func() (uint16, error)) (v uint16, err error) {
	if err := m.enable.Init(); err != nil {
		return 0, fmt.Errorf("init measurement enable: %w", err)
	}
	defer func() {
		if derr := m.enable.Deinit(); derr != nil {
			err = errors.Join(err, fmt.Errorf("release measurement enable: %w", derr))
		}
	}()

	if err := m.enable.Set(true); err != nil {
		return 0, fmt.Errorf("energize measurement path: %w", err)
	}
	m.sleep(m.th.Settle)

	v, err = read()
	if err != nil {
		return 0, fmt.Errorf("read settled channel: %w", err)
	}
	return v, nil
}

// Present returns the latched classification.
func (m *Monitor) Present() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.present
}

// SetPresent overrides the latched classification.
func (m *Monitor) SetPresent(present bool) {
	m.mu.Lock()
	m.present = present
	m.mu.Unlock()
}

// SupplyLevel returns the supply level in millivolts. With an external module
// attached the sense channel is measured through the halving divider and
// doubled. Otherwise the plain supply read is returned.
func (m *Monitor) SupplyLevel() (uint16, error) {
	if !m.Present() {
		v, err := m.adc.Supply()
		if err != nil {
			return 0, fmt.Errorf("read supply: %w", err)
		}
		return v, nil
	}
	mv, err := m.measure(m.adc.ChannelMv)
	if err != nil {
		return 0, err
	}
	return adc.ClampMv(2 * float64(mv)), nil
}
