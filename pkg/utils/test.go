// SPDX-License-Identifier: MIT
// Package utils holds signal generators shared by tests.
package utils

import (
	"math"

	"scribe/internal/audio"
)

// GenerateComplexWave is a 440Hz fundamental plus two harmonics.
func GenerateComplexWave(size int, sampleRate float64) audio.Float32Samples {
	buffer := make(audio.Float32Samples, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

func GenerateSineWave(size int, sampleRate, frequency float64) audio.Float32Samples {
	buffer := make(audio.Float32Samples, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * 0.9)
	}
	return buffer
}

func GenerateSineWaveInt16(size int, sampleRate, frequency float64) audio.Int16Samples {
	buffer := make(audio.Int16Samples, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = int16(math.Sin(2*math.Pi*frequency*t) * math.MaxInt16 * 0.9)
	}
	return buffer
}

// FindPeakBin returns the index of the largest value in [startBin, endBin].
func FindPeakBin(values []float32, startBin, endBin int) int {
	if len(values) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(values) {
		endBin = len(values) - 1
	}

	peakBin := startBin
	peakValue := values[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if values[bin] > peakValue {
			peakValue = values[bin]
			peakBin = bin
		}
	}

	return peakBin
}
