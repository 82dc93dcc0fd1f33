// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"
	"strings"
)

// SampleFormat is the encoding of one captured sample.
type SampleFormat uint8

const (
	FormatInt16 SampleFormat = iota
	FormatFloat32
)

func (f SampleFormat) String() string {
	switch f {
	case FormatInt16:
		return "int16"
	case FormatFloat32:
		return "float32"
	default:
		return fmt.Sprintf("SampleFormat(%d)", uint8(f))
	}
}

// BitDepth is the number of bits per sample in this format.
func (f SampleFormat) BitDepth() int {
	if f == FormatInt16 {
		return 16
	}
	return 32
}

// ParseSampleFormat accepts "int16"/"s16" and "float32"/"f32".
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch strings.ToLower(s) {
	case "int16", "s16", "i16":
		return FormatInt16, nil
	case "float32", "f32":
		return FormatFloat32, nil
	default:
		return 0, fmt.Errorf("unknown sample format %q", s)
	}
}

// Samples is one immutable chunk of interleaved audio. Chunks are shared
// between consumers without copying, so implementations must never be
// modified after they are handed out.
type Samples interface {
	Len() int
	Format() SampleFormat
	// AppendFloat32 appends the samples normalised to [-1, 1].
	AppendFloat32(dst []float32) []float32
	// Peak is the largest absolute normalised sample.
	Peak() float32
}

// Int16Samples holds signed 16-bit PCM.
type Int16Samples []int16

// Float32Samples holds normalised floating point PCM.
type Float32Samples []float32

const int16Scale = 1.0 / 32768.0

func (s Int16Samples) Len() int             { return len(s) }
func (s Int16Samples) Format() SampleFormat { return FormatInt16 }

func (s Int16Samples) AppendFloat32(dst []float32) []float32 {
	for _, v := range s {
		dst = append(dst, float32(v)*int16Scale)
	}
	return dst
}

// Peak finds the maximum amplitude without branching on sign.
func (s Int16Samples) Peak() float32 {
	var maxAmplitude int32
	for _, v := range s {
		sample := int32(v)
		mask := sample >> 31
		amplitude := (sample ^ mask) - mask
		diff := amplitude - maxAmplitude
		maxAmplitude += (diff & (diff >> 31)) ^ diff
	}
	return float32(maxAmplitude) * int16Scale
}

func (s Float32Samples) Len() int             { return len(s) }
func (s Float32Samples) Format() SampleFormat { return FormatFloat32 }

func (s Float32Samples) AppendFloat32(dst []float32) []float32 {
	return append(dst, s...)
}

func (s Float32Samples) Peak() float32 {
	var peak float32
	for _, v := range s {
		if a := float32(math.Abs(float64(v))); a > peak {
			peak = a
		}
	}
	return peak
}

// Packet is a chunk of samples tagged with the rate it was captured at, as
// handed to the visualizer.
type Packet struct {
	Samples    Samples
	SampleRate int
	Channels   int
}

// Format is the stream format confirmed by the device after opening, which
// may differ from what was requested.
type Format struct {
	SampleRate   int
	Channels     int
	SampleFormat SampleFormat
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz, %d ch, %s", f.SampleRate, f.Channels, f.SampleFormat)
}
