package logic

import "time"

// Add counts one event.
func (c *EventCounts) Add(e Event) {
	switch e.Type {
	case EventButtonShort:
		c.ShortPresses++
	case EventButtonReset:
		c.ResetPresses++
	case EventButtonIgnored:
		c.IgnoredPresses++
	case EventButtonStray:
		c.StrayPulses++
	case EventJoinOK:
		c.JoinOK++
	case EventJoinFailed:
		c.JoinFailed++
	case EventTx:
		if e.Outcome == string(OutcomeAccepted) {
			c.TxAccepted++
		} else {
			c.TxRejected++
		}
	case EventRx:
		c.RxFrames++
	}
}

// Heartbeat decides when a periodic heartbeat is due.
type Heartbeat struct {
	startTime     time.Time
	lastHeartbeat time.Time
}

// NewHeartbeat creates a heartbeat tracker. The startTime is used for
// calculating uptime in heartbeat events.
func NewHeartbeat(startTime time.Time) *Heartbeat {
	return &Heartbeat{
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Check returns heartbeat data if the interval has elapsed since the last
// heartbeat (or startup). Returns nil while the node is not ready (cold-boot
// join sequence still running), if the interval has not elapsed, or if
// interval is <= 0 (disabled).
func (h *Heartbeat) Check(now time.Time, interval time.Duration, ready bool, counts EventCounts) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if !ready {
		return nil
	}

	if now.Sub(h.lastHeartbeat) < interval {
		return nil
	}

	h.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(h.startTime),
		Counts:    counts,
	}
}
