// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"sync/atomic"
)

// Gate keeps silent chunks away from the visualizer. Recording is never
// gated. The zero value is a disabled gate.
type Gate struct {
	enabled   atomic.Bool
	threshold atomic.Uint32 // Fraction of full scale, 0..MaxUint32.
}

func (g *Gate) Enable() {
	g.enabled.Store(true)
}

func (g *Gate) Disable() {
	g.enabled.Store(false)
}

func (g *Gate) Enabled() bool {
	return g.enabled.Load()
}

// SetThreshold adjusts the noise gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}

	g.threshold.Store(uint32(threshold * float64(math.MaxUint32)))
}

// Threshold returns the current noise gate threshold as a float64.
func (g *Gate) Threshold() float64 {
	return float64(g.threshold.Load()) / float64(math.MaxUint32)
}

// Open reports whether s should reach the visualizer.
func (g *Gate) Open(s Samples) bool {
	if !g.enabled.Load() {
		return true
	}
	t := g.Threshold()
	if t >= 1 {
		return false
	}
	return float64(s.Peak()) > t
}
