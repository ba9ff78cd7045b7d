package node

import (
	"time"

	"github.com/sweeney/lora-node/internal/logic"
	"github.com/sweeney/lora-node/internal/lorawan"
)

// Framer fills the shared application buffer for an uplink.
type Framer interface {
	Frame(reason logic.TxReason, data *lorawan.AppData)
}

// Gate records why a transmission is requested and forwards it to the stack.
type Gate struct {
	mw      lorawan.Middleware
	ctx     *Context
	framer  Framer
	msgType lorawan.MsgType
	data    lorawan.AppData
}

// NewGate creates a Gate sending on port with confirmation mode mt.
// framer may be nil, in which case the buffer is sent as is.
func NewGate(mw lorawan.Middleware, ctx *Context, framer Framer, port uint8, mt lorawan.MsgType) *Gate {
	return &Gate{
		mw:      mw,
		ctx:     ctx,
		framer:  framer,
		msgType: mt,
		data:    lorawan.AppData{Port: port},
	}
}

// RequestSend overwrites the recorded reason, frames the buffer and returns
// the outcome of the stack verbatim. It never retries.
func (g *Gate) RequestSend(reason logic.TxReason) logic.SendOutcome {
	g.ctx.TxReason = reason
	if g.framer != nil {
		g.framer.Frame(reason, &g.data)
	}
	st, next := g.mw.Send(&g.data, g.msgType)
	out := outcome(st, next)
	g.ctx.LastOutcome = out
	return out
}

// SetMsgType changes the confirmation mode for later sends.
func (g *Gate) SetMsgType(mt lorawan.MsgType) {
	g.msgType = mt
}

// MsgType returns the current confirmation mode.
func (g *Gate) MsgType() lorawan.MsgType {
	return g.msgType
}

func outcome(st lorawan.Status, next time.Duration) logic.SendOutcome {
	switch st {
	case lorawan.StatusSuccess:
		return logic.SendOutcome{Kind: logic.OutcomeAccepted}
	case lorawan.StatusNoNetworkJoined:
		return logic.SendOutcome{Kind: logic.OutcomeNoNetwork}
	case lorawan.StatusDutyCycleRestricted:
		return logic.SendOutcome{Kind: logic.OutcomeDutyCycleRestricted, NextTxIn: next}
	default:
		return logic.SendOutcome{Kind: logic.OutcomeOtherError, Code: int(st)}
	}
}
