package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/lora-node/internal/gpio"
	"github.com/sweeney/lora-node/internal/indicator"
	"github.com/sweeney/lora-node/internal/logic"
	"github.com/sweeney/lora-node/internal/lorawan"
	"github.com/sweeney/lora-node/internal/sched"
)

// Task ids on the scheduler.
const (
	TaskMacProcess sched.TaskID = 0
	TaskJoinRetry  sched.TaskID = 1
)

// DefaultDebouncePeriod is the sampling period of the button.
const DefaultDebouncePeriod = 5 * time.Millisecond

// resetMarkTimeout bounds the store write before a restart.
const resetMarkTimeout = 2 * time.Second

// Hooks is the application side of the controller.
type Hooks interface {
	// PostJoin runs once when the cold-boot join sequence ends.
	PostJoin()
	// ProcessDownlink handles a received frame.
	ProcessDownlink(data *lorawan.AppData, rx lorawan.RxParams)
	// UserButtonEvent runs once per short press.
	UserButtonEvent()
	// EnableIRQs and DisableIRQs bracket a button press.
	EnableIRQs()
	DisableIRQs()
}

// PowerSource is the power monitor.
type PowerSource interface {
	Present() bool
	SupplyLevel() (uint16, error)
}

// ResetStore persists the factory-reset request.
type ResetStore interface {
	MarkFactoryReset(ctx context.Context) error
}

// Restarter restarts the node. The controller leaves input masked after
// calling it, so nothing else runs until the process is replaced.
type Restarter interface {
	Restart(reason string)
}

// Config holds the tunables of the controller.
type Config struct {
	Activation     lorawan.ActivationType
	MsgType        lorawan.MsgType
	Port           uint8
	JoinBudget     uint8
	DebouncePeriod time.Duration
	Thresholds     logic.Thresholds
}

// DefaultConfig returns OTAA, unconfirmed, port 2, budget 3, 5 ms debounce
// and 5000/8000 ms press thresholds.
func DefaultConfig() Config {
	return Config{
		Activation:     lorawan.ActivationOTAA,
		MsgType:        lorawan.Unconfirmed,
		Port:           2,
		JoinBudget:     logic.DefaultJoinAttempts,
		DebouncePeriod: DefaultDebouncePeriod,
		Thresholds:     logic.DefaultThresholds(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.JoinBudget == 0 {
		errs = append(errs, errors.New("join budget must be positive"))
	}
	if c.DebouncePeriod <= 0 {
		errs = append(errs, fmt.Errorf("debounce period must be positive: %v", c.DebouncePeriod))
	}
	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Deps are the collaborators of the controller. OnEvent and OnState are
// optional and run on the scheduler goroutine, so they must not block.
type Deps struct {
	Scheduler  *sched.Scheduler
	Middleware lorawan.Middleware
	Button     gpio.Button
	Power      PowerSource
	Clock      logic.Clock
	Indicator  indicator.Indicator
	Store      ResetStore
	Restarter  Restarter
	Hooks      Hooks
	Framer     Framer
	Log        zerolog.Logger

	OnEvent func(logic.Event)
	OnState func(logic.NodeState)
	// Now stamps events. Defaults to time.Now.
	Now func() time.Time
}

// Controller is the event controller.
type Controller struct {
	cfg  Config
	ctx  *Context
	deps Deps
	log  zerolog.Logger
	gate *Gate
	now  func() time.Time

	debounce *sched.Timer
}

// New creates a Controller. Call Init before the scheduler runs.
func New(cfg Config, deps Deps) *Controller {
	c := &Controller{
		cfg:  cfg,
		ctx:  NewContext(cfg.JoinBudget),
		deps: deps,
		log:  deps.Log,
		now:  deps.Now,
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.gate = NewGate(deps.Middleware, c.ctx, deps.Framer, cfg.Port, cfg.MsgType)
	c.debounce = deps.Scheduler.NewTimer(cfg.DebouncePeriod, c.debounceTick)
	return c
}

// Init registers tasks and callbacks. The button stays masked until the
// cold-boot join sequence ends.
func (c *Controller) Init() {
	s := c.deps.Scheduler
	s.Register(TaskMacProcess, c.deps.Middleware.Process)
	s.Register(TaskJoinRetry, c.joinRetry)
	c.deps.Middleware.SetHandler(c)
	c.deps.Button.DisableIRQ()
	c.deps.Button.SetEdgeHandler(c.onEdge)
	c.pushState()
}

// Start begins the cold-boot join sequence.
func (c *Controller) Start() {
	c.log.Info().
		Uint8("budget", c.ctx.Join.Attempts()).
		Stringer("activation", c.cfg.Activation).
		Msg("starting cold-boot join")
	c.Join()
}

// Join requests a network join. A transport error is booked as a failed
// attempt so the retry chain keeps going.
func (c *Controller) Join() {
	c.ctx.Join.Begin()
	c.deps.Indicator.Start(indicator.JoinProcess, nil)
	if err := c.deps.Middleware.Join(c.cfg.Activation); err != nil {
		c.log.Error().Err(err).Msg("join request failed")
		c.OnJoinResult(lorawan.JoinParams{Success: false, Activation: c.cfg.Activation})
		return
	}
	c.pushState()
}

// RequestSend sends an uplink for reason through the transmission gate.
func (c *Controller) RequestSend(reason logic.TxReason) logic.SendOutcome {
	out := c.gate.RequestSend(reason)
	c.log.Info().
		Stringer("reason", reason).
		Stringer("outcome", out).
		Msg("send requested")
	c.emit(logic.Event{
		Type:     logic.EventTx,
		Reason:   reason,
		Outcome:  out.String(),
		NextTxIn: out.NextTxIn,
	})
	return out
}

// SupplyLevel returns the supply reading through the power monitor.
func (c *Controller) SupplyLevel() (uint16, error) {
	if c.deps.Power == nil {
		return 0, errors.New("no power monitor")
	}
	return c.deps.Power.SupplyLevel()
}

// ExternalPower returns the power classification, including overrides made
// on the monitor after boot.
func (c *Controller) ExternalPower() bool {
	return c.deps.Power != nil && c.deps.Power.Present()
}

// SetMsgType changes the confirmation mode of later uplinks.
func (c *Controller) SetMsgType(mt lorawan.MsgType) {
	c.gate.SetMsgType(mt)
}

// State returns a snapshot of the controller state.
func (c *Controller) State() logic.NodeState {
	st := c.ctx.State()
	st.ExternalPower = c.ExternalPower()
	return st
}

// Context exposes the per-boot state.
func (c *Controller) Context() *Context {
	return c.ctx
}

// onEdge runs in interrupt context (the GPIO event goroutine). It only masks
// the line and hands over to the scheduler.
func (c *Controller) onEdge() {
	c.deps.Button.DisableIRQ()
	c.deps.Scheduler.Post(c.armDebounce)
}

func (c *Controller) armDebounce() {
	c.deps.Hooks.DisableIRQs()
	c.ctx.Debounce.Arm()
	c.debounce.Start()
}

func (c *Controller) debounceTick() {
	level, err := c.deps.Button.Level()
	if err != nil {
		c.log.Error().Err(err).Msg("button read failed")
		c.ctx.Press.Clear()
		c.ctx.Debounce.Reset()
		c.enableInput()
		return
	}

	switch c.ctx.Debounce.Sample(level) {
	case logic.Unsettled:
		c.debounce.Start()
	case logic.SettledLow:
		c.settledLow()
	case logic.SettledHigh:
		c.settledHigh()
	}
}

func (c *Controller) settledLow() {
	c.ctx.Press.Low = c.deps.Clock.Now()
	c.deps.Indicator.Start(indicator.ButtonProcess, nil)
	// Only the line is re-enabled so the release edge re-arms the sampler.
	c.deps.Button.EnableIRQ()
	c.log.Debug().Msg("button pressed")
}

func (c *Controller) settledHigh() {
	if !c.ctx.Press.Pending() {
		c.log.Debug().Msg("stray pulse")
		c.ctx.Debounce.Reset()
		c.emit(logic.Event{Type: logic.EventButtonStray})
		c.enableInput()
		return
	}

	c.ctx.Press.High = c.deps.Clock.Now()
	elapsed := logic.ElapsedMs(c.ctx.Press.Low, c.ctx.Press.High)
	class := logic.ClassifyElapsed(elapsed, c.cfg.Thresholds)
	c.deps.Indicator.Stop(indicator.ButtonProcess)
	c.log.Info().
		Int64("elapsed_ms", elapsed).
		Stringer("class", class).
		Msg("button released")

	switch class {
	case logic.ShortAction:
		c.emit(logic.Event{Type: logic.EventButtonShort, ElapsedMs: elapsed})
		c.deps.Hooks.UserButtonEvent()
	case logic.ResetRequest:
		c.emit(logic.Event{Type: logic.EventButtonReset, ElapsedMs: elapsed})
		c.factoryReset()
		return
	case logic.Ignored:
		c.emit(logic.Event{Type: logic.EventButtonIgnored, ElapsedMs: elapsed})
	}

	c.ctx.Press.Clear()
	c.ctx.Debounce.Reset()
	c.enableInput()
}

func (c *Controller) factoryReset() {
	ctx, cancel := context.WithTimeout(context.Background(), resetMarkTimeout)
	defer cancel()
	if err := c.deps.Store.MarkFactoryReset(ctx); err != nil {
		c.log.Error().Err(err).Msg("persisting reset marker failed")
	}
	c.log.Warn().Msg("factory reset requested, restarting")
	c.deps.Restarter.Restart("factory reset requested")
}

// enableInput re-enables both levels of the input path.
func (c *Controller) enableInput() {
	c.deps.Button.EnableIRQ()
	c.deps.Hooks.EnableIRQs()
}

// OnMacProcess implements lorawan.Handler. Safe from any goroutine.
func (c *Controller) OnMacProcess() {
	c.deps.Scheduler.SetTask(TaskMacProcess)
}

// OnJoinResult implements lorawan.Handler.
func (c *Controller) OnJoinResult(p lorawan.JoinParams) {
	retry := c.ctx.Join.OnResult(p.Success)

	typ := logic.EventJoinFailed
	sig := indicator.JoinNOK
	if p.Success {
		typ = logic.EventJoinOK
		sig = indicator.JoinOK
	}
	c.log.Info().
		Bool("success", p.Success).
		Bool("cold_boot", c.ctx.Join.ColdBoot()).
		Uint8("attempts", c.ctx.Join.Attempts()).
		Msg("join result")
	c.emit(logic.Event{Type: typ, Attempts: c.ctx.Join.Attempts()})

	var done func()
	if retry {
		done = func() { c.deps.Scheduler.SetTask(TaskJoinRetry) }
	}
	c.deps.Indicator.Start(sig, done)
}

func (c *Controller) joinRetry() {
	switch c.ctx.Join.Retry() {
	case logic.RetryJoin:
		c.log.Info().Uint8("attempts", c.ctx.Join.Attempts()).Msg("retrying join")
		c.Join()
	case logic.RetryFinish:
		c.log.Info().
			Bool("joined", c.ctx.Join.Joined()).
			Str("phase", string(c.ctx.Join.Phase())).
			Msg("cold-boot join sequence finished")
		c.emit(logic.Event{Type: logic.EventJoinDone})
		c.enableInput()
		c.deps.Hooks.PostJoin()
	case logic.RetryNone:
	}
}

// OnTxData implements lorawan.Handler.
func (c *Controller) OnTxData(p lorawan.TxParams) {
	c.log.Debug().
		Bool("confirmed", p.Confirmed).
		Bool("ack", p.AckReceived).
		Msg("uplink done")
	c.emit(logic.Event{Type: logic.EventTxDone, Ack: p.AckReceived})
}

// OnRxData implements lorawan.Handler. A downlink ends any press in progress.
func (c *Controller) OnRxData(data *lorawan.AppData, p lorawan.RxParams) {
	c.ctx.Press.Clear()
	if data == nil {
		c.log.Warn().Int16("rssi", p.RSSI).Msg("downlink without application data")
		return
	}
	c.log.Info().
		Uint8("port", data.Port).
		Int("size", len(data.Buffer)).
		Int16("rssi", p.RSSI).
		Msg("downlink received")
	c.emit(logic.Event{Type: logic.EventRx, Port: data.Port, Size: len(data.Buffer)})
	c.deps.Hooks.ProcessDownlink(data, p)
}

func (c *Controller) emit(e logic.Event) {
	e.Timestamp = c.now()
	c.ctx.Counts.Add(e)
	if c.deps.OnEvent != nil {
		c.deps.OnEvent(e)
	}
	c.pushState()
}

func (c *Controller) pushState() {
	if c.deps.OnState != nil {
		c.deps.OnState(c.State())
	}
}
