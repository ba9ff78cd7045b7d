// Package app is the application layer of the node: the cyclic uplink, the
// button uplink and downlink commands.
package app

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/lora-node/internal/logic"
	"github.com/sweeney/lora-node/internal/lorawan"
	"github.com/sweeney/lora-node/internal/payload"
	"github.com/sweeney/lora-node/internal/sched"
)

const (
	// DefaultDutyCycle is the cyclic uplink period.
	DefaultDutyCycle = 15 * time.Minute
	// MinDutyCycle is the shortest period a downlink may set.
	MinDutyCycle = 10 * time.Second
	// DutyCycleCorrection is added to the stack's next-tx delay before a
	// restricted uplink is retried.
	DutyCycleCorrection = 5 * time.Second
	// CommandPort carries downlink commands.
	CommandPort = 10
)

// Downlink command opcodes.
const (
	OpSetDutyCycle byte = 0x01
	OpSendNow      byte = 0x02
)

// Command is a parsed downlink command.
type Command struct {
	Op        byte
	DutyCycle time.Duration
}

// ParseCommand parses a downlink on the command port.
//
//	0x01 <u32 seconds, big endian>  set the cyclic uplink period
//	0x02                            send an uplink now
func ParseCommand(b []byte) (Command, error) {
	if len(b) == 0 {
		return Command{}, errors.New("empty command")
	}
	switch b[0] {
	case OpSetDutyCycle:
		if len(b) != 5 {
			return Command{}, fmt.Errorf("set duty cycle: length %d, want 5", len(b))
		}
		secs := binary.BigEndian.Uint32(b[1:])
		return Command{Op: OpSetDutyCycle, DutyCycle: time.Duration(secs) * time.Second}, nil
	case OpSendNow:
		if len(b) != 1 {
			return Command{}, fmt.Errorf("send now: length %d, want 1", len(b))
		}
		return Command{Op: OpSendNow}, nil
	default:
		return Command{}, fmt.Errorf("unknown opcode 0x%02X", b[0])
	}
}

// Node is the controller as seen by the application.
type Node interface {
	RequestSend(reason logic.TxReason) logic.SendOutcome
	Join()
	SupplyLevel() (uint16, error)
}

// SettingsStore persists user settings.
type SettingsStore interface {
	SetDutyCycle(ctx context.Context, d time.Duration) error
}

// Config holds the application settings.
type Config struct {
	DutyCycle time.Duration
	DataRate  uint8
	TxPower   int8
}

// App implements the controller hooks and frames uplinks.
// All methods run on the scheduler goroutine.
type App struct {
	cfg   Config
	s     *sched.Scheduler
	store SettingsStore
	log   zerolog.Logger
	node  Node

	cycle       *sched.Timer
	retry       *sched.Timer
	retryReason logic.TxReason

	started  bool
	masked   bool
	deferred bool

	onDutyCycle func(time.Duration)
}

// New creates an App. Bind must be called before the scheduler runs.
func New(cfg Config, s *sched.Scheduler, store SettingsStore, log zerolog.Logger) *App {
	if cfg.DutyCycle <= 0 {
		cfg.DutyCycle = DefaultDutyCycle
	}
	a := &App{
		cfg:   cfg,
		s:     s,
		store: store,
		log:   log,
	}
	a.cycle = s.NewTimer(cfg.DutyCycle, a.onCycle)
	a.retry = s.NewTimer(DutyCycleCorrection, a.onRetry)
	return a
}

// Bind attaches the controller.
func (a *App) Bind(n Node) {
	a.node = n
}

// OnDutyCycleChange registers f to run after every accepted duty cycle
// change. f runs on the scheduler goroutine.
func (a *App) OnDutyCycleChange(f func(time.Duration)) {
	a.onDutyCycle = f
}

// DutyCycle returns the cyclic uplink period.
func (a *App) DutyCycle() time.Duration {
	return a.cfg.DutyCycle
}

// SetDutyCycle changes and persists the cyclic uplink period. A running
// cycle restarts with the new period.
func (a *App) SetDutyCycle(d time.Duration) error {
	if d < MinDutyCycle {
		return fmt.Errorf("duty cycle %v below minimum %v", d, MinDutyCycle)
	}
	a.cfg.DutyCycle = d
	a.cycle.SetPeriod(d)
	if a.started {
		a.cycle.Start()
	}
	if a.onDutyCycle != nil {
		a.onDutyCycle(d)
	}
	if a.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.store.SetDutyCycle(ctx, d); err != nil {
		return fmt.Errorf("persist duty cycle: %w", err)
	}
	return nil
}

// PostJoin starts the cyclic uplink.
func (a *App) PostJoin() {
	a.started = true
	a.cycle.Start()
	a.log.Info().Dur("duty_cycle", a.cfg.DutyCycle).Msg("cyclic uplink started")
}

// UserButtonEvent sends a button uplink.
func (a *App) UserButtonEvent() {
	a.send(logic.TxReasonUserButtonEvent)
}

// DisableIRQs defers cyclic uplinks while a press is being timed.
func (a *App) DisableIRQs() {
	a.masked = true
}

// EnableIRQs flushes a cyclic uplink deferred during a press.
func (a *App) EnableIRQs() {
	a.masked = false
	if a.deferred {
		a.deferred = false
		a.onCycle()
	}
}

// ProcessDownlink executes commands on the command port.
func (a *App) ProcessDownlink(data *lorawan.AppData, rx lorawan.RxParams) {
	if data.Port != CommandPort {
		a.log.Debug().Uint8("port", data.Port).Msg("downlink ignored")
		return
	}
	cmd, err := ParseCommand(data.Buffer)
	if err != nil {
		a.log.Warn().Err(err).Hex("payload", data.Buffer).Msg("bad downlink command")
		return
	}

	switch cmd.Op {
	case OpSetDutyCycle:
		if err := a.SetDutyCycle(cmd.DutyCycle); err != nil {
			a.log.Error().Err(err).Msg("set duty cycle failed")
			return
		}
		a.log.Info().Dur("duty_cycle", cmd.DutyCycle).Msg("duty cycle changed by downlink")
	case OpSendNow:
		a.SendNow()
	}
}

// SendNow queues an immediate uplink. Safe to call from any goroutine.
func (a *App) SendNow() {
	a.s.Post(func() { a.send(logic.TxReasonAppCycleEvent) })
}

// Frame implements the controller framer.
func (a *App) Frame(reason logic.TxReason, data *lorawan.AppData) {
	supply, err := a.node.SupplyLevel()
	if err != nil {
		a.log.Warn().Err(err).Msg("supply read failed")
		supply = 0
	}
	data.Buffer = payload.Encode(data.Buffer, payload.Frame{
		Reason:   reason,
		TxPower:  a.cfg.TxPower,
		DataRate: a.cfg.DataRate,
		SupplyMv: supply,
	})
}

func (a *App) onCycle() {
	if a.masked {
		a.deferred = true
		return
	}
	a.send(logic.TxReasonTimerEvent)
	a.cycle.Start()
}

func (a *App) onRetry() {
	a.send(a.retryReason)
}

func (a *App) send(reason logic.TxReason) {
	out := a.node.RequestSend(reason)
	switch out.Kind {
	case logic.OutcomeDutyCycleRestricted:
		a.retryReason = reason
		a.retry.SetPeriod(out.NextTxIn + DutyCycleCorrection)
		a.retry.Start()
	case logic.OutcomeNoNetwork:
		a.node.Join()
	case logic.OutcomeOtherError:
		a.log.Warn().Stringer("outcome", out).Stringer("reason", reason).Msg("uplink rejected")
	}
}
