package logic

import (
	"testing"
	"time"
)

func TestCheckHeartbeatDisabledWithZeroInterval(t *testing.T) {
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHeartbeat(startTime)

	if hb := h.Check(startTime.Add(15*time.Minute), 0, true, EventCounts{}); hb != nil {
		t.Error("should not return heartbeat when interval is 0 (disabled)")
	}
	if hb := h.Check(startTime.Add(15*time.Minute), -1*time.Minute, true, EventCounts{}); hb != nil {
		t.Error("should not return heartbeat when interval is negative")
	}
}

func TestCheckHeartbeatBeforeReady(t *testing.T) {
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHeartbeat(startTime)

	if hb := h.Check(startTime.Add(15*time.Minute), 15*time.Minute, false, EventCounts{}); hb != nil {
		t.Error("should not return heartbeat during the cold-boot join sequence")
	}
}

func TestCheckHeartbeatBeforeInterval(t *testing.T) {
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHeartbeat(startTime)

	if hb := h.Check(startTime.Add(14*time.Minute), 15*time.Minute, true, EventCounts{}); hb != nil {
		t.Error("should not return heartbeat before interval")
	}
}

func TestCheckHeartbeatAtInterval(t *testing.T) {
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHeartbeat(startTime)

	checkTime := startTime.Add(15 * time.Minute)
	hb := h.Check(checkTime, 15*time.Minute, true, EventCounts{ShortPresses: 2})
	if hb == nil {
		t.Fatal("should return heartbeat at interval")
	}
	if !hb.Timestamp.Equal(checkTime) {
		t.Errorf("expected timestamp %v, got %v", checkTime, hb.Timestamp)
	}
	if hb.Uptime != 15*time.Minute {
		t.Errorf("expected uptime 15m, got %v", hb.Uptime)
	}
	if hb.Counts.ShortPresses != 2 {
		t.Errorf("expected ShortPresses=2, got %d", hb.Counts.ShortPresses)
	}
}

func TestCheckHeartbeatUpdatesLastTime(t *testing.T) {
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHeartbeat(startTime)

	t1 := startTime.Add(15 * time.Minute)
	if hb := h.Check(t1, 15*time.Minute, true, EventCounts{}); hb == nil {
		t.Fatal("should return first heartbeat")
	}
	if hb := h.Check(t1.Add(time.Second), 15*time.Minute, true, EventCounts{}); hb != nil {
		t.Error("should not return heartbeat immediately after previous")
	}
	if hb := h.Check(t1.Add(15*time.Minute), 15*time.Minute, true, EventCounts{}); hb == nil {
		t.Fatal("should return second heartbeat")
	}
}

func TestEventCountsAdd(t *testing.T) {
	var c EventCounts
	events := []Event{
		{Type: EventButtonShort},
		{Type: EventButtonShort},
		{Type: EventButtonReset},
		{Type: EventButtonIgnored},
		{Type: EventButtonStray},
		{Type: EventJoinFailed},
		{Type: EventJoinFailed},
		{Type: EventJoinOK},
		{Type: EventTx, Outcome: string(OutcomeAccepted)},
		{Type: EventTx, Outcome: "DUTY_CYCLE_RESTRICTED(1000ms)"},
		{Type: EventRx},
		{Type: EventTxDone},
	}
	for _, e := range events {
		c.Add(e)
	}

	want := EventCounts{
		ShortPresses:   2,
		ResetPresses:   1,
		IgnoredPresses: 1,
		StrayPulses:    1,
		JoinOK:         1,
		JoinFailed:     2,
		TxAccepted:     1,
		TxRejected:     1,
		RxFrames:       1,
	}
	if c != want {
		t.Errorf("got %+v, want %+v", c, want)
	}
}
