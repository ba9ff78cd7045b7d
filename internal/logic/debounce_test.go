package logic

import "testing"

// feed samples the debouncer and returns the result of every sample.
func feed(d *Debouncer, levels ...bool) []DebounceResult {
	out := make([]DebounceResult, len(levels))
	for i, l := range levels {
		out[i] = d.Sample(l)
	}
	return out
}

func run(level bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = level
	}
	return out
}

func TestDebounceSettledLowAfterTwelveSamples(t *testing.T) {
	var d Debouncer
	d.Arm()

	results := feed(&d, run(false, DebounceSamples)...)
	for i, r := range results[:DebounceSamples-1] {
		if r != Unsettled {
			t.Fatalf("sample %d: expected UNSETTLED, got %s", i, r)
		}
	}
	if results[DebounceSamples-1] != SettledLow {
		t.Errorf("expected SETTLED_LOW on sample %d, got %s", DebounceSamples, results[DebounceSamples-1])
	}
	if d.Register() != 0xF000 {
		t.Errorf("register: got %#04x, want 0xf000", d.Register())
	}
}

func TestDebounceSettledHighAfterTwelveSamples(t *testing.T) {
	var d Debouncer
	d.Arm()

	results := feed(&d, run(true, DebounceSamples)...)
	for i, r := range results[:DebounceSamples-1] {
		if r != Unsettled {
			t.Fatalf("sample %d: expected UNSETTLED, got %s", i, r)
		}
	}
	if results[DebounceSamples-1] != SettledHigh {
		t.Errorf("expected SETTLED_HIGH, got %s", results[DebounceSamples-1])
	}
}

func TestDebounceSingleGlitchRestartsRun(t *testing.T) {
	var d Debouncer
	d.Arm()

	// 6 low, 1 high glitch, then low again: the run restarts after the glitch.
	levels := append(run(false, 6), true)
	levels = append(levels, run(false, DebounceSamples-1)...)
	for i, r := range feed(&d, levels...) {
		if r != Unsettled {
			t.Fatalf("sample %d: expected UNSETTLED, got %s", i, r)
		}
	}

	if r := d.Sample(false); r != SettledLow {
		t.Errorf("expected SETTLED_LOW after 12 clean samples, got %s", r)
	}
}

func TestDebounceLowGlitchDuringHighRun(t *testing.T) {
	var d Debouncer
	d.Arm()

	levels := append(run(true, 8), false)
	levels = append(levels, run(true, 8)...)
	for i, r := range feed(&d, levels...) {
		if r != Unsettled {
			t.Fatalf("sample %d: expected UNSETTLED, got %s", i, r)
		}
	}
}

func TestDebounceAlternatingNeverSettles(t *testing.T) {
	var d Debouncer
	d.Arm()

	for i := 0; i < 200; i++ {
		if r := d.Sample(i%2 == 0); r != Unsettled {
			t.Fatalf("sample %d: expected UNSETTLED for alternating input, got %s", i, r)
		}
	}
}

// TestDebounceNeverSettlesEarly walks every sample sequence up to 14 long
// and checks that a settle is only reported after 12 identical samples.
func TestDebounceNeverSettlesEarly(t *testing.T) {
	const maxLen = 14
	for n := 1; n <= maxLen; n++ {
		for bits := 0; bits < 1<<n; bits++ {
			var d Debouncer
			d.Arm()
			levels := make([]bool, n)
			for i := range levels {
				levels[i] = bits&(1<<i) != 0
				r := d.Sample(levels[i])
				if r == Unsettled {
					continue
				}
				if i+1 < DebounceSamples {
					t.Fatalf("seq %0*b: %s after only %d samples", n, bits, r, i+1)
				}
				want := r == SettledHigh
				for j := i + 1 - DebounceSamples; j <= i; j++ {
					if levels[j] != want {
						t.Fatalf("seq %0*b: %s at sample %d without a clean run", n, bits, r, i+1)
					}
				}
			}
		}
	}
}

func TestDebounceResetIsNeutral(t *testing.T) {
	var d Debouncer
	d.Arm()
	d.Sample(false)
	d.Reset()
	if d.Register() != 0 {
		t.Errorf("register after reset: got %#04x, want 0", d.Register())
	}
}

func TestDebounceResultString(t *testing.T) {
	tests := []struct {
		r    DebounceResult
		want string
	}{
		{Unsettled, "UNSETTLED"},
		{SettledLow, "SETTLED_LOW"},
		{SettledHigh, "SETTLED_HIGH"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("%d: got %q, want %q", tt.r, got, tt.want)
		}
	}
}
