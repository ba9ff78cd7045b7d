package gpio

import (
	"errors"
	"testing"
)

func TestFakeButtonStartsReleasedAndMasked(t *testing.T) {
	b := NewFakeButton()
	high, err := b.Level()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !high {
		t.Error("expected released (high) level")
	}
	if b.Enabled() {
		t.Error("expected edges masked")
	}
}

func TestFakeButtonEdgeRespectsMask(t *testing.T) {
	b := NewFakeButton()
	calls := 0
	b.SetEdgeHandler(func() { calls++ })

	if b.Edge(false) {
		t.Error("masked edge must not run the handler")
	}
	b.EnableIRQ()
	if !b.Edge(true) {
		t.Error("enabled edge should run the handler")
	}
	b.DisableIRQ()
	b.Edge(false)

	if calls != 1 {
		t.Errorf("expected 1 handler call, got %d", calls)
	}
	if b.EnableCalls != 1 || b.DisableCalls != 1 {
		t.Errorf("mask counters: enable=%d disable=%d", b.EnableCalls, b.DisableCalls)
	}
	high, _ := b.Level()
	if high {
		t.Error("masked edge should still change the level")
	}
}

func TestFakeButtonLevelError(t *testing.T) {
	b := NewFakeButton()
	b.LevelError = errors.New("boom")
	if _, err := b.Level(); err == nil {
		t.Error("expected error")
	}
}

func TestFakeButtonClose(t *testing.T) {
	b := NewFakeButton()
	if err := b.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.Closed {
		t.Error("expected Closed")
	}
}

func TestFakeOutputLifecycle(t *testing.T) {
	o := &FakeOutput{}
	if err := o.Init(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !o.Active || o.Value {
		t.Errorf("after Init: active=%v value=%v", o.Active, o.Value)
	}
	o.Set(true)
	o.Set(false)
	o.Set(true)
	if !o.Value {
		t.Error("expected last value high")
	}
	if len(o.Sets) != 3 {
		t.Errorf("expected 3 recorded sets, got %d", len(o.Sets))
	}
	o.Deinit()
	if o.Active || o.Value {
		t.Errorf("after Deinit: active=%v value=%v", o.Active, o.Value)
	}

	o.Reset()
	if o.InitCalls != 0 || o.DeinitCalls != 0 || o.Sets != nil {
		t.Error("Reset should clear recorded state")
	}
}

func TestFakeOutputInitError(t *testing.T) {
	o := &FakeOutput{InitError: errors.New("busy")}
	if err := o.Init(); err == nil {
		t.Fatal("expected error")
	}
	if o.Active {
		t.Error("failed Init must not activate the line")
	}
}

var (
	_ Button = (*FakeButton)(nil)
	_ Output = (*FakeOutput)(nil)
	_ Button = (*RealButton)(nil)
	_ Output = (*RealOutput)(nil)
)
