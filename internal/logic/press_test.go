package logic

import (
	"testing"
	"time"
)

func TestClassifyElapsedBoundaries(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		elapsed int64
		want    PressClass
	}{
		{0, ShortAction},
		{1, ShortAction},
		{4999, ShortAction},
		{5000, ResetRequest},
		{6500, ResetRequest},
		{7999, ResetRequest},
		{8000, Ignored},
		{8001, Ignored},
		{60000, Ignored},
	}
	for _, tt := range tests {
		if got := ClassifyElapsed(tt.elapsed, th); got != tt.want {
			t.Errorf("elapsed %dms: got %s, want %s", tt.elapsed, got, tt.want)
		}
	}
}

func TestClassifyElapsedAllRanges(t *testing.T) {
	th := DefaultThresholds()
	for ms := int64(0); ms < 10000; ms += 7 {
		got := ClassifyElapsed(ms, th)
		var want PressClass
		switch {
		case ms < 5000:
			want = ShortAction
		case ms < 8000:
			want = ResetRequest
		default:
			want = Ignored
		}
		if got != want {
			t.Fatalf("elapsed %dms: got %s, want %s", ms, got, want)
		}
	}
}

func TestClassifyUsesSecondsAndSubseconds(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name      string
		low, high SysTime
		want      PressClass
		wantMs    int64
	}{
		{"short", SysTime{10, 500}, SysTime{11, 200}, ShortAction, 700},
		{"borrow", SysTime{10, 900}, SysTime{15, 100}, ShortAction, 4200},
		{"borrow into reset", SysTime{10, 900}, SysTime{16, 100}, ResetRequest, 5200},
		{"exact reset bound", SysTime{3, 250}, SysTime{8, 250}, ResetRequest, 5000},
		{"exact ignore bound", SysTime{3, 0}, SysTime{11, 0}, Ignored, 8000},
		{"just under", SysTime{1, 1}, SysTime{6, 0}, ShortAction, 4999},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ElapsedMs(tt.low, tt.high); got != tt.wantMs {
				t.Errorf("ElapsedMs: got %d, want %d", got, tt.wantMs)
			}
			if got := Classify(tt.low, tt.high, th); got != tt.want {
				t.Errorf("Classify: got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestThresholdsValidate(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	bad := []Thresholds{
		{ShortAction: 0, Reset: time.Second},
		{ShortAction: 8 * time.Second, Reset: 5 * time.Second},
		{ShortAction: 5 * time.Second, Reset: 5 * time.Second},
	}
	for _, th := range bad {
		if err := th.Validate(); err == nil {
			t.Errorf("expected error for %+v", th)
		}
	}
}

func TestPressTimestamps(t *testing.T) {
	var p PressTimestamps
	if p.Pending() {
		t.Error("zero timestamps should not be pending")
	}
	p.Low = SysTime{Seconds: 0, SubSeconds: 5}
	if !p.Pending() {
		t.Error("non-zero low edge should be pending")
	}
	p.High = SysTime{Seconds: 1}
	p.Clear()
	if p.Pending() || !p.High.IsZero() {
		t.Errorf("expected cleared timestamps, got %+v", p)
	}
}

func TestSysTimeFromDuration(t *testing.T) {
	got := SysTimeFromDuration(12*time.Second + 345*time.Millisecond)
	if got.Seconds != 12 || got.SubSeconds != 345 {
		t.Errorf("got %+v, want {12 345}", got)
	}
}
