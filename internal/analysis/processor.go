// SPDX-License-Identifier: MIT
package analysis

// BucketReader is the read side of an Engine, used by transports and the UI.
type BucketReader interface {
	// TryRead copies the latest buckets into dst if that can be done without
	// waiting, and reports whether it did.
	TryRead(dst []float32) bool
	Buckets() int // Buckets returns the number of values TryRead writes.
	Mode() Mode   // Mode returns the analysis currently published.
}
