package power

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/lora-node/internal/adc"
	"github.com/sweeney/lora-node/internal/gpio"
)

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) { s.calls = append(s.calls, d) }

func newTestMonitor(r *adc.Fake) (*Monitor, *gpio.FakeOutput, *sleepRecorder) {
	out := &gpio.FakeOutput{}
	s := &sleepRecorder{}
	m := NewMonitor(r, out, DefaultThresholds(), WithSleep(s.sleep))
	return m, out, s
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name        string
		readings    []uint16
		want        bool
		energized   bool
		channelRead int
	}{
		{"low raw, high settled", []uint16{40, 600}, true, true, 2},
		{"low raw, low settled", []uint16{40, 300}, false, true, 2},
		{"settled equal to high threshold", []uint16{40, 500}, false, true, 2},
		{"raw at low threshold", []uint16{50}, false, false, 1},
		{"raw above low threshold", []uint16{100}, false, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := adc.NewFake(tt.readings...)
			m, out, s := newTestMonitor(r)

			got, err := m.Detect()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Detect: got %v, want %v", got, tt.want)
			}
			if m.Present() != tt.want {
				t.Errorf("Present: got %v, want %v", m.Present(), tt.want)
			}
			if r.ChannelReads != tt.channelRead {
				t.Errorf("channel reads: got %d, want %d", r.ChannelReads, tt.channelRead)
			}

			if tt.energized {
				if out.InitCalls != 1 || out.DeinitCalls != 1 {
					t.Errorf("enable line init=%d deinit=%d, want 1/1", out.InitCalls, out.DeinitCalls)
				}
				if len(out.Sets) != 1 || !out.Sets[0] {
					t.Errorf("enable line sets: %v", out.Sets)
				}
				if len(s.calls) != 1 || s.calls[0] != DefaultSettleDelay {
					t.Errorf("settle waits: %v", s.calls)
				}
			} else {
				if out.InitCalls != 0 || len(out.Sets) != 0 {
					t.Errorf("measurement path must not be energized: init=%d sets=%v", out.InitCalls, out.Sets)
				}
				if len(s.calls) != 0 {
					t.Errorf("no settle wait expected, got %v", s.calls)
				}
			}
			if out.Active {
				t.Error("enable line must be released after Detect")
			}
		})
	}
}

func TestDetectReleasesLineOnReadError(t *testing.T) {
	r := &failAfter{Fake: adc.NewFake(40), n: 1}
	out := &gpio.FakeOutput{}
	m := NewMonitor(r, out, DefaultThresholds(), WithSleep(func(time.Duration) {}))

	if _, err := m.Detect(); err == nil {
		t.Fatal("expected error")
	}
	if out.DeinitCalls != 1 || out.Active {
		t.Errorf("enable line not released: deinit=%d active=%v", out.DeinitCalls, out.Active)
	}
	if m.Present() {
		t.Error("presence must stay false on error")
	}
}

func TestDetectInitError(t *testing.T) {
	r := adc.NewFake(10)
	out := &gpio.FakeOutput{InitError: errors.New("busy")}
	m := NewMonitor(r, out, DefaultThresholds(), WithSleep(func(time.Duration) {}))

	if _, err := m.Detect(); err == nil {
		t.Fatal("expected error")
	}
	if out.DeinitCalls != 0 {
		t.Error("Deinit must not run when Init failed")
	}
}

func TestDetectFirstReadError(t *testing.T) {
	r := adc.NewFake()
	r.ChannelError = errors.New("boom")
	m, out, _ := newTestMonitor(r)
	if _, err := m.Detect(); err == nil {
		t.Fatal("expected error")
	}
	if out.InitCalls != 0 {
		t.Error("must not energize after failed first read")
	}
}

func TestSupplyLevelPresentIsDoubled(t *testing.T) {
	for _, raw := range []uint16{0, 1, 300, 1650, 2047} {
		r := adc.NewFake(raw)
		r.SupplyMv = 9999
		m, out, _ := newTestMonitor(r)
		m.SetPresent(true)

		got, err := m.SupplyLevel()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 2*raw {
			t.Errorf("raw %d: got %d, want %d", raw, got, 2*raw)
		}
		if r.SupplyReads != 0 {
			t.Error("present path must not use the plain supply read")
		}
		if out.Active || out.DeinitCalls != 1 {
			t.Errorf("enable line not released: active=%v deinit=%d", out.Active, out.DeinitCalls)
		}
	}
}

func TestSupplyLevelIsMillivoltsOnBothPaths(t *testing.T) {
	// 12-bit converter with a 3.3 V reference: 0.805664 mV per count.
	const scale = 0.805664
	tests := []struct {
		name    string
		present bool
		want    uint16
	}{
		// 1000 counts on the supply channel.
		{"battery", false, 805},
		// 1000 counts behind the halving divider.
		{"external", true, 1610},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := adc.NewFake(1000)
			r.SenseScale = scale
			r.SupplyMv = adc.ClampMv(1000 * scale)
			m, _, _ := newTestMonitor(r)
			m.SetPresent(tt.present)

			got, err := m.SupplyLevel()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d mV, want %d mV", got, tt.want)
			}
		})
	}
}

func TestSupplyLevelClamps(t *testing.T) {
	r := adc.NewFake(40000)
	m, _, _ := newTestMonitor(r)
	m.SetPresent(true)
	got, err := m.SupplyLevel()
	if err != nil {
		t.Fatal(err)
	}
	if got != 0xFFFF {
		t.Errorf("got %d, want clamp to 65535", got)
	}
}

func TestSupplyLevelAbsentIsUnscaled(t *testing.T) {
	r := adc.NewFake(700)
	r.SupplyMv = 3300
	m, out, _ := newTestMonitor(r)

	got, err := m.SupplyLevel()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 3300 {
		t.Errorf("got %d, want 3300", got)
	}
	if r.ChannelReads != 0 || out.InitCalls != 0 {
		t.Error("absent path must not touch the sense channel or enable line")
	}
}

func TestSetPresentOverrides(t *testing.T) {
	m, _, _ := newTestMonitor(adc.NewFake(40, 600))
	if _, err := m.Detect(); err != nil {
		t.Fatal(err)
	}
	m.SetPresent(false)
	if m.Present() {
		t.Error("override to false ignored")
	}
}

func TestThresholdsValidate(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if err := (Thresholds{Low: 500, High: 500}).Validate(); err == nil {
		t.Error("equal thresholds must be rejected")
	}
	if err := (Thresholds{Low: 600, High: 500}).Validate(); err == nil {
		t.Error("inverted thresholds must be rejected")
	}
	if err := (Thresholds{Low: 1, High: 2, Settle: -time.Millisecond}).Validate(); err == nil {
		t.Error("negative settle must be rejected")
	}
}

// failAfter fails Channel reads after n successful ones.
type failAfter struct {
	*adc.Fake
	n int
}

func (f *failAfter) Channel() (uint16, error) {
	if f.n == 0 {
		return 0, errors.New("adc gone")
	}
	f.n--
	return f.Fake.Channel()
}
