// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"sort"
)

// powerReference scales normalised samples back to 16-bit full scale before
// the power analysis, so that log10 of audible signals is positive.
const powerReference = 32768.0

// analyzer holds the per-engine scratch space of the four analyses. It is
// owned by the analysis goroutine.
type analyzer struct {
	buckets    int
	overlap    float64
	windowType WindowFunc
	windowed   bool

	ws    fftWorkspace
	acc   []float64 // Per-bucket accumulator.
	edges []float64 // Density bucket edges, buckets+1 values.
}

func newAnalyzer(cfg Config) *analyzer {
	return &analyzer{
		buckets:    cfg.Buckets,
		overlap:    cfg.Overlap,
		windowType: cfg.WindowFunc,
		windowed:   cfg.Window,
		acc:        make([]float64, cfg.Buckets),
		edges:      make([]float64, cfg.Buckets+1),
	}
}

// run dispatches on mode and fully overwrites dst.
func (a *analyzer) run(mode Mode, dst []float32, x []float32, sampleRate float64) {
	switch mode {
	case ModeAmplitudeEnvelope:
		a.envelope(dst, x)
	case ModeWaveform:
		a.waveform(dst, x)
	case ModePower:
		a.power(dst, x)
	default:
		a.density(dst, x, sampleRate)
	}
	finishUnit(mode, dst)
}

func (a *analyzer) reset() {
	for i := range a.acc {
		a.acc[i] = 0
	}
}

// envelope publishes the RMS of each Welch frame, normalised by the loudest
// frame.
func (a *analyzer) envelope(dst []float32, x []float32) {
	a.reset()
	forEachFrame(len(x), a.buckets, a.overlap, func(i, start, end int) {
		var sum float64
		for _, v := range x[start:end] {
			sum += float64(v) * float64(v)
		}
		a.acc[i] = math.Sqrt(sum / float64(end-start))
	})
	normalizeInto(dst, a.acc)
}

// waveform publishes the mean of each non-overlapping frame, normalised by
// the largest absolute mean and remapped from [-1,1] to [0,1].
func (a *analyzer) waveform(dst []float32, x []float32) {
	a.reset()
	var peak float64
	forEachFrame(len(x), a.buckets, 0, func(i, start, end int) {
		var sum float64
		for _, v := range x[start:end] {
			sum += float64(v)
		}
		mean := sum / float64(end-start)
		a.acc[i] = mean
		peak = math.Max(peak, math.Abs(mean))
	})
	for i, v := range a.acc {
		if peak == 0 {
			dst[i] = 0.5
			continue
		}
		dst[i] = float32((v/peak + 1) / 2)
	}
}

// power publishes log10 of each frame's spectral power, normalised by the
// strongest frame.
func (a *analyzer) power(dst []float32, x []float32) {
	a.reset()
	frame, _ := WelchFraming(len(x), a.buckets, a.overlap)
	if frame == 0 {
		normalizeInto(dst, a.acc)
		return
	}
	a.ws.prepare(frame, a.windowType, a.windowed)
	norm := float64(frame) * float64(frame)

	forEachFrame(len(x), a.buckets, a.overlap, func(i, start, end int) {
		var p float64
		for _, c := range a.ws.transform(x[start:end], powerReference) {
			p += squaredMagnitude(c)
		}
		p /= norm
		if p <= 0 {
			a.acc[i] = 0
			return
		}
		a.acc[i] = math.Max(math.Log10(p), 0)
	})
	normalizeInto(dst, a.acc)
}

// density accumulates squared FFT magnitudes of every Welch frame into
// log-spaced frequency buckets between sampleRate/frame and sampleRate/2.
func (a *analyzer) density(dst []float32, x []float32, sampleRate float64) {
	a.reset()
	frame, _ := WelchFraming(len(x), a.buckets, a.overlap)
	lo, hi := sampleRate/float64(frame), sampleRate/2
	if frame == 0 || sampleRate <= 0 || lo >= hi {
		normalizeInto(dst, a.acc)
		return
	}
	a.ws.prepare(frame, a.windowType, a.windowed)
	logEdges(a.edges, lo, hi)

	last := a.buckets - 1
	forEachFrame(len(x), a.buckets, a.overlap, func(_, start, end int) {
		for k, c := range a.ws.transform(x[start:end], 1) {
			f := binFrequency(k, frame, sampleRate)
			if f < lo || f > hi {
				continue
			}
			b := sort.SearchFloat64s(a.edges, f) - 1
			b = min(max(b, 0), last)
			a.acc[b] += squaredMagnitude(c)
		}
	})
	normalizeInto(dst, a.acc)
}

// normalizeInto writes src divided by its maximum into dst. An all-zero
// source produces zeros.
func normalizeInto(dst []float32, src []float64) {
	var peak float64
	for _, v := range src {
		peak = math.Max(peak, v)
	}
	for i, v := range src {
		if peak <= 0 {
			dst[i] = 0
			continue
		}
		dst[i] = float32(v / peak)
	}
}

// finishUnit checks the published range in debug builds, then clamps.
func finishUnit(mode Mode, values []float32) {
	if debugAssertions {
		assertUnit(mode, values)
	}
	clampUnit(values)
}

func clampUnit(values []float32) {
	for i, v := range values {
		switch {
		case math.IsNaN(float64(v)), v < 0:
			values[i] = 0
		case v > 1:
			values[i] = 1
		}
	}
}

func assertUnit(mode Mode, values []float32) {
	for i, v := range values {
		if !(v >= 0 && v <= 1) {
			panic(fmt.Sprintf("analysis: %s bucket %d = %v outside [0,1]", mode, i, v))
		}
	}
}
