package logic

import (
	"errors"
	"time"
)

// PressClass is the action bucket of a completed button press.
type PressClass int

const (
	ShortAction PressClass = iota
	ResetRequest
	Ignored
)

func (c PressClass) String() string {
	switch c {
	case ShortAction:
		return "SHORT_ACTION"
	case ResetRequest:
		return "RESET_REQUEST"
	}
	return "IGNORED"
}

// Default press thresholds.
const (
	DefaultShortActionBound = 5000 * time.Millisecond
	DefaultResetBound       = 8000 * time.Millisecond
)

// Thresholds are the two ascending press-duration bounds.
type Thresholds struct {
	ShortAction time.Duration // presses shorter than this are short actions
	Reset       time.Duration // presses shorter than this (and >= ShortAction) request a reset
}

// DefaultThresholds returns the 5000 ms / 8000 ms bounds.
func DefaultThresholds() Thresholds {
	return Thresholds{ShortAction: DefaultShortActionBound, Reset: DefaultResetBound}
}

// Validate checks that the bounds are positive and strictly ordered.
func (t Thresholds) Validate() error {
	if t.ShortAction <= 0 {
		return errors.New("short action bound must be positive")
	}
	if t.ShortAction >= t.Reset {
		return errors.New("short action bound must be below reset bound")
	}
	return nil
}

// PressTimestamps holds the edges of the press in progress.
// High is only meaningful while Low is non-zero.
type PressTimestamps struct {
	Low  SysTime
	High SysTime
}

// Pending reports whether a low edge has been recorded.
func (p *PressTimestamps) Pending() bool {
	return !p.Low.IsZero()
}

// Clear forgets both edges.
func (p *PressTimestamps) Clear() {
	*p = PressTimestamps{}
}

// ElapsedMs returns the press duration in milliseconds.
func ElapsedMs(low, high SysTime) int64 {
	return (int64(high.Seconds)-int64(low.Seconds))*1000 +
		(int64(high.SubSeconds) - int64(low.SubSeconds))
}

// Classify buckets the interval between the two edges.
func Classify(low, high SysTime, t Thresholds) PressClass {
	return ClassifyElapsed(ElapsedMs(low, high), t)
}

// ClassifyElapsed buckets an elapsed press duration in milliseconds.
func ClassifyElapsed(elapsedMs int64, t Thresholds) PressClass {
	switch {
	case elapsedMs < t.ShortAction.Milliseconds():
		return ShortAction
	case elapsedMs < t.Reset.Milliseconds():
		return ResetRequest
	default:
		return Ignored
	}
}
