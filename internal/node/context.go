// Package node is the event controller of the end-node. It wires the button
// debouncer, press classifier, join controller and transmission gate into the
// interrupt, timer and LoRaWAN callbacks, all running on one scheduler.
package node

import (
	"github.com/sweeney/lora-node/internal/logic"
)

// Context is the per-boot state of the controller. It is only touched from
// the scheduler goroutine.
type Context struct {
	Debounce    logic.Debouncer
	Press       logic.PressTimestamps
	Join        *logic.JoinController
	TxReason    logic.TxReason
	LastOutcome logic.SendOutcome
	Counts      logic.EventCounts
}

// NewContext returns the boot state with the given join budget.
func NewContext(joinBudget uint8) *Context {
	return &Context{
		Join:     logic.NewJoinController(joinBudget),
		TxReason: logic.TxReasonUndefined,
	}
}

// State returns a snapshot for status reporting. Power presence is owned by
// the monitor and filled in by the controller.
func (c *Context) State() logic.NodeState {
	last := ""
	if c.LastOutcome.Kind != "" {
		last = c.LastOutcome.String()
	}
	return logic.NodeState{
		ColdBoot:          c.Join.ColdBoot(),
		AttemptsRemaining: c.Join.Attempts(),
		Joined:            c.Join.Joined(),
		Phase:             c.Join.Phase(),
		TxReason:          c.TxReason,
		LastOutcome:       last,
		Counts:            c.Counts,
	}
}
