// Package indicator drives the status LED. Each signal is a blink pattern;
// finite patterns call a completion hook on the scheduler when they end.
package indicator

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/lora-node/internal/gpio"
	"github.com/sweeney/lora-node/internal/sched"
)

// Signal identifies an indicator pattern.
type Signal int

const (
	JoinProcess Signal = iota
	JoinOK
	JoinNOK
	ButtonProcess
)

func (s Signal) String() string {
	switch s {
	case JoinProcess:
		return "JOIN_PROCESS"
	case JoinOK:
		return "JOIN_OK"
	case JoinNOK:
		return "JOIN_NOK"
	case ButtonProcess:
		return "BUTTON_PROCESS"
	default:
		return fmt.Sprintf("Signal(%d)", int(s))
	}
}

// Indicator shows user-visible state.
type Indicator interface {
	// Start replaces the current pattern with sig. done runs once when a
	// finite pattern ends; it is dropped if the pattern is replaced or stopped.
	Start(sig Signal, done func())

	// Stop ends sig if it is the current pattern.
	Stop(sig Signal)
}

// Pattern is a blink sequence. Blinks of zero repeats until replaced.
type Pattern struct {
	Period time.Duration
	Blinks int
}

// DefaultPatterns returns the built-in patterns.
func DefaultPatterns() map[Signal]Pattern {
	return map[Signal]Pattern{
		JoinProcess:   {Period: 250 * time.Millisecond},
		JoinOK:        {Period: 500 * time.Millisecond, Blinks: 3},
		JoinNOK:       {Period: 100 * time.Millisecond, Blinks: 6},
		ButtonProcess: {Period: time.Second},
	}
}

// Timed plays patterns on an LED using scheduler timers.
// It must be used from the scheduler goroutine.
type Timed struct {
	led      gpio.Output
	log      zerolog.Logger
	patterns map[Signal]Pattern
	timer    *sched.Timer

	active    Signal
	running   bool
	remaining int
	on        bool
	done      func()
}

// NewTimed creates an indicator. led may be nil, in which case patterns only
// advance their timers and log.
func NewTimed(s *sched.Scheduler, led gpio.Output, log zerolog.Logger) *Timed {
	t := &Timed{
		led:      led,
		log:      log,
		patterns: DefaultPatterns(),
	}
	t.timer = s.NewTimer(0, t.step)
	return t
}

// Init claims the LED line.
func (t *Timed) Init() error {
	if t.led == nil {
		return nil
	}
	if err := t.led.Init(); err != nil {
		return fmt.Errorf("init led: %w", err)
	}
	return nil
}

// Close turns the LED off and releases it.
func (t *Timed) Close() error {
	t.timer.Stop()
	t.running = false
	if t.led == nil {
		return nil
	}
	return t.led.Deinit()
}

// Start replaces the current pattern with sig.
func (t *Timed) Start(sig Signal, done func()) {
	p, ok := t.patterns[sig]
	if !ok {
		t.log.Warn().Stringer("signal", sig).Msg("no pattern for signal")
		if done != nil {
			done()
		}
		return
	}
	t.active = sig
	t.running = true
	t.done = done
	t.remaining = 0
	if p.Blinks > 0 {
		t.remaining = 2*p.Blinks - 1
	}
	t.set(true)
	t.timer.SetPeriod(p.Period)
	t.timer.Start()
	t.log.Debug().Stringer("signal", sig).Msg("indicator start")
}

// Stop ends sig if it is the current pattern.
func (t *Timed) Stop(sig Signal) {
	if !t.running || t.active != sig {
		return
	}
	t.timer.Stop()
	t.running = false
	t.done = nil
	t.set(false)
}

// Active returns the current pattern.
func (t *Timed) Active() (Signal, bool) {
	return t.active, t.running
}

func (t *Timed) step() {
	if !t.running {
		return
	}
	t.set(!t.on)
	if t.remaining > 0 {
		t.remaining--
		if t.remaining == 0 {
			t.running = false
			done := t.done
			t.done = nil
			t.set(false)
			if done != nil {
				done()
			}
			return
		}
	}
	t.timer.Start()
}

func (t *Timed) set(on bool) {
	t.on = on
	if t.led == nil {
		return
	}
	if err := t.led.Set(on); err != nil {
		t.log.Warn().Err(err).Msg("led set failed")
	}
}
