// Package logic contains the pure state machines of the node event controller.
// This package has NO external dependencies (no GPIO, radio, OS, or time.Sleep).
// Time is always injectable via SysTime values or a Clock.
package logic

import (
	"fmt"
	"time"
)

// SysTime is a monotonic time-of-day reading with millisecond subseconds.
type SysTime struct {
	Seconds    uint32
	SubSeconds int16 // milliseconds, 0..999
}

// IsZero reports whether both fields are zero. A zero low timestamp means
// no press is in progress.
func (t SysTime) IsZero() bool {
	return t.Seconds == 0 && t.SubSeconds == 0
}

// SysTimeFromDuration converts a monotonic offset into a SysTime.
func SysTimeFromDuration(d time.Duration) SysTime {
	ms := d.Milliseconds()
	return SysTime{
		Seconds:    uint32(ms / 1000),
		SubSeconds: int16(ms % 1000),
	}
}

// Clock reads the monotonic time-of-day.
type Clock interface {
	Now() SysTime
}

// TxReason records why the most recent transmission was requested.
// The numeric values are the first byte of every uplink frame.
type TxReason uint8

const (
	TxReasonTimerEvent      TxReason = 0
	TxReasonUserButtonEvent TxReason = 1
	TxReasonInputEvent      TxReason = 2
	TxReasonFuotaEvent      TxReason = 3
	TxReasonAppCycleEvent   TxReason = 4
	TxReasonTimeoutEvent    TxReason = 5
	TxReasonUndefined       TxReason = 0xFF
)

func (r TxReason) String() string {
	switch r {
	case TxReasonTimerEvent:
		return "TIMER"
	case TxReasonUserButtonEvent:
		return "USER_BUTTON"
	case TxReasonInputEvent:
		return "INPUT"
	case TxReasonFuotaEvent:
		return "FUOTA"
	case TxReasonAppCycleEvent:
		return "APP_CYCLE"
	case TxReasonTimeoutEvent:
		return "TIMEOUT"
	case TxReasonUndefined:
		return "UNDEFINED"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(r))
}

// OutcomeKind classifies the result of a send request.
type OutcomeKind string

const (
	OutcomeAccepted            OutcomeKind = "ACCEPTED"
	OutcomeNoNetwork           OutcomeKind = "NO_NETWORK"
	OutcomeDutyCycleRestricted OutcomeKind = "DUTY_CYCLE_RESTRICTED"
	OutcomeOtherError          OutcomeKind = "ERROR"
)

// SendOutcome is returned verbatim from the delegated send operation.
type SendOutcome struct {
	Kind     OutcomeKind
	NextTxIn time.Duration // set for OutcomeDutyCycleRestricted
	Code     int           // set for OutcomeOtherError
}

func (o SendOutcome) String() string {
	switch o.Kind {
	case OutcomeDutyCycleRestricted:
		return fmt.Sprintf("%s(%dms)", o.Kind, o.NextTxIn.Milliseconds())
	case OutcomeOtherError:
		return fmt.Sprintf("%s(%d)", o.Kind, o.Code)
	}
	return string(o.Kind)
}

// EventType identifies a node event published to telemetry consumers.
type EventType string

const (
	EventButtonShort   EventType = "BUTTON_SHORT"
	EventButtonReset   EventType = "BUTTON_RESET"
	EventButtonIgnored EventType = "BUTTON_IGNORED"
	EventButtonStray   EventType = "BUTTON_STRAY"
	EventJoinOK        EventType = "JOIN_OK"
	EventJoinFailed    EventType = "JOIN_FAILED"
	EventJoinDone      EventType = "COLD_BOOT_DONE"
	EventTx            EventType = "TX"
	EventTxDone        EventType = "TX_DONE"
	EventRx            EventType = "RX"
)

// Event is a node event to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Reason    TxReason      // TX only
	Outcome   string        // TX only
	ElapsedMs int64         // button events only
	Attempts  uint8         // join events only
	Port      uint8         // RX only
	Size      int           // RX only
	Ack       bool          // TX_DONE only
	NextTxIn  time.Duration // TX only, duty-cycle restriction
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	ShortPresses   int
	ResetPresses   int
	IgnoredPresses int
	StrayPulses    int
	JoinOK         int
	JoinFailed     int
	TxAccepted     int
	TxRejected     int
	RxFrames       int
}

// NodeState is a point-in-time view of the controller state.
type NodeState struct {
	ColdBoot          bool
	AttemptsRemaining uint8
	Joined            bool
	Phase             JoinPhase
	ExternalPower     bool
	TxReason          TxReason
	LastOutcome       string
	Counts            EventCounts
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
