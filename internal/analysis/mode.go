// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Mode selects the analysis the visualizer publishes.
type Mode uint32

const (
	ModeAmplitudeEnvelope Mode = iota
	ModeWaveform
	ModePower
	ModeSpectrumDensity

	numModes = 4
)

// Modes lists every mode in rotation order.
var Modes = [numModes]Mode{ModeAmplitudeEnvelope, ModeWaveform, ModePower, ModeSpectrumDensity}

func (m Mode) String() string {
	switch m {
	case ModeAmplitudeEnvelope:
		return "amplitude-envelope"
	case ModeWaveform:
		return "waveform"
	case ModePower:
		return "power"
	case ModeSpectrumDensity:
		return "spectrum-density"
	default:
		return fmt.Sprintf("mode(%d)", uint32(m))
	}
}

// ParseMode converts a mode name (case-insensitive) to a Mode.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "amplitude-envelope", "envelope", "amplitude":
		return ModeAmplitudeEnvelope, nil
	case "waveform", "wave":
		return ModeWaveform, nil
	case "power":
		return ModePower, nil
	case "spectrum-density", "spectrum", "density":
		return ModeSpectrumDensity, nil
	default:
		return ModeSpectrumDensity, fmt.Errorf("unknown analysis mode: '%s'", name)
	}
}

// MarshalText encodes m as its name.
func (m Mode) MarshalText() ([]byte, error) {
	if m >= numModes {
		return nil, fmt.Errorf("invalid analysis mode %d", uint32(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Direction of a mode rotation.
type Direction int

const (
	Clockwise Direction = iota
	CounterClockwise
)

// Next returns the neighbouring mode. Four steps in one direction return to m.
func (m Mode) Next(dir Direction) Mode {
	step := uint32(1)
	if dir == CounterClockwise {
		step = numModes - 1
	}
	return Mode((uint32(m)%numModes + step) % numModes)
}

// AtomicMode is a Mode stored in a single atomic cell.
type AtomicMode struct {
	v atomic.Uint32
}

func (a *AtomicMode) Load() Mode {
	return Mode(a.v.Load())
}

func (a *AtomicMode) Store(m Mode) {
	a.v.Store(uint32(m) % numModes)
}

// Rotate moves one step in dir. Load then store: concurrent rotations may
// collapse into one.
func (a *AtomicMode) Rotate(dir Direction) Mode {
	next := a.Load().Next(dir)
	a.Store(next)
	return next
}
