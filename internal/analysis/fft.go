// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"strings"

	applog "scribe/internal/log"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

// Enum for available window functions.
const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

func (w WindowFunc) String() string {
	switch w {
	case BartlettHann:
		return "bartletthann"
	case Blackman:
		return "blackman"
	case BlackmanNuttall:
		return "blackmannuttall"
	case Hann:
		return "hann"
	case Hamming:
		return "hamming"
	case Lanczos:
		return "lanczos"
	case Nuttall:
		return "nuttall"
	default:
		return fmt.Sprintf("window(%d)", int(w))
	}
}

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Hann) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// applyWindow fills coeffs with the coefficients of the selected window.
// Windows shorter than two samples are left flat.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	// Initialize coeffs with 1.0 before applying window, the window funcs
	// multiply in place.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	if len(coeffs) < 2 {
		return
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		applog.WithComponent("visualizer").Warnf("unknown window function type %d, defaulting to Hann", windowType)
		window.Hann(coeffs)
	}
}

// fftWorkspace holds the FFT plan and buffers for one frame size. Frame
// sizes follow the packet length, so the plan is rebuilt only when it changes.
type fftWorkspace struct {
	size       int
	windowType WindowFunc
	windowed   bool

	fft    *fourier.FFT
	window []float64    // Pre-calculated window coefficients.
	input  []float64    // Windowed frame.
	output []complex128 // size/2 + 1 coefficients.
}

func (w *fftWorkspace) prepare(size int, windowType WindowFunc, windowed bool) {
	if w.fft != nil && w.size == size && w.windowType == windowType && w.windowed == windowed {
		return
	}
	w.size = size
	w.windowType = windowType
	w.windowed = windowed
	w.fft = fourier.NewFFT(size)
	w.window = make([]float64, size)
	if windowed {
		applyWindow(w.window, windowType)
	} else {
		for i := range w.window {
			w.window[i] = 1
		}
	}
	w.input = make([]float64, size)
	w.output = make([]complex128, size/2+1)
}

// transform windows frame (scaled by scale) and returns its one-sided
// spectrum. The returned slice is reused by the next call.
func (w *fftWorkspace) transform(frame []float32, scale float64) []complex128 {
	for i, v := range frame {
		w.input[i] = float64(v) * scale * w.window[i]
	}
	return w.fft.Coefficients(w.output, w.input)
}

// binFrequency returns the center frequency (Hz) for an FFT bin index.
func binFrequency(bin, size int, sampleRate float64) float64 {
	return float64(bin) * sampleRate / float64(size)
}

func squaredMagnitude(c complex128) float64 {
	re, im := real(c), imag(c)
	return re*re + im*im
}

// logEdges fills edges (n+1 values) with log-spaced boundaries from lo to hi.
func logEdges(edges []float64, lo, hi float64) {
	n := len(edges) - 1
	ratio := math.Log(hi / lo)
	for i := range edges {
		edges[i] = lo * math.Exp(ratio*float64(i)/float64(n))
	}
	edges[0], edges[n] = lo, hi
}
