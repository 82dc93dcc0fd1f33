// SPDX-License-Identifier: MIT
package analysis

import "testing"

func TestRotateFourTimesIsIdentity(t *testing.T) {
	for _, start := range Modes {
		for _, dir := range []Direction{Clockwise, CounterClockwise} {
			var m AtomicMode
			m.Store(start)
			for range 4 {
				m.Rotate(dir)
			}
			if got := m.Load(); got != start {
				t.Errorf("%s rotated 4x (dir %d) = %s", start, dir, got)
			}
		}
	}
}

func TestRotateDirectionsAreInverse(t *testing.T) {
	for _, m := range Modes {
		if got := m.Next(Clockwise).Next(CounterClockwise); got != m {
			t.Errorf("%s cw then ccw = %s", m, got)
		}
		if m.Next(Clockwise) == m {
			t.Errorf("%s rotates to itself", m)
		}
	}
	if got := ModeSpectrumDensity.Next(Clockwise); got != ModeAmplitudeEnvelope {
		t.Errorf("density cw = %s, want amplitude-envelope", got)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"amplitude-envelope", ModeAmplitudeEnvelope, false},
		{"Waveform", ModeWaveform, false},
		{"power", ModePower, false},
		{" spectrum-density ", ModeSpectrumDensity, false},
		{"density", ModeSpectrumDensity, false},
		{"sparkle", ModeSpectrumDensity, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseMode(%q) = (%s, %v)", tt.in, got, err)
			}
		})
	}

	for _, m := range Modes {
		if back, err := ParseMode(m.String()); err != nil || back != m {
			t.Errorf("ParseMode(%q) = (%s, %v)", m.String(), back, err)
		}
	}
}

func TestParseWindowFunc(t *testing.T) {
	for _, w := range []WindowFunc{BartlettHann, Blackman, BlackmanNuttall, Hann, Hamming, Lanczos, Nuttall} {
		got, err := ParseWindowFunc(w.String())
		if err != nil || got != w {
			t.Errorf("ParseWindowFunc(%q) = (%v, %v)", w.String(), got, err)
		}
	}
	if got, err := ParseWindowFunc("square"); err == nil || got != Hann {
		t.Errorf("unknown window = (%v, %v), want Hann and error", got, err)
	}
}

func TestModeText(t *testing.T) {
	for _, m := range Modes {
		text, err := m.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%s): %v", m, err)
		}
		var back Mode
		if err := back.UnmarshalText(text); err != nil || back != m {
			t.Errorf("UnmarshalText(%q) = (%s, %v)", text, back, err)
		}
	}
	if _, err := Mode(7).MarshalText(); err == nil {
		t.Error("MarshalText accepted an invalid mode")
	}
}
