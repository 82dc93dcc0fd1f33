// SPDX-License-Identifier: MIT
package analysis

import "math"

// WelchFraming sizes n windows overlapping by the given ratio:
// frame = round(total/(1+(n-1)(1-overlap))) and step = round(frame*(1-overlap)).
// Window i covers [i*step, i*step+frame). When rounding pushes the last
// window past total the step shrinks first, then the frame, so a short tail
// may be left uncovered. With no overlap step equals frame. When total < n
// every window is the whole signal (step 0).
func WelchFraming(total, n int, overlap float64) (frame, step int) {
	if total <= 0 || n <= 0 {
		return 0, 0
	}
	if n == 1 {
		return total, 0
	}
	if total < n {
		return total, 0
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= 1 {
		overlap = 0.99
	}

	hop := 1 - overlap
	frame = max(int(math.Round(float64(total)/(1+float64(n-1)*hop))), 1)
	step = max(int(math.Round(float64(frame)*hop)), 1)
	for (n-1)*step+frame > total {
		if overlap > 0 && step > 1 {
			step--
			continue
		}
		frame--
		step = max(int(math.Round(float64(frame)*hop)), 1)
	}
	return frame, step
}

// forEachFrame calls fn with the bounds of each of the n Welch windows.
func forEachFrame(total, n int, overlap float64, fn func(i, start, end int)) {
	frame, step := WelchFraming(total, n, overlap)
	if frame == 0 {
		return
	}
	for i := range n {
		start := i * step
		fn(i, start, start+frame)
	}
}
