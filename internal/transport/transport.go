// SPDX-License-Identifier: MIT
// Package transport publishes visualizer buckets to consumers outside the
// process.
package transport

import (
	"scribe/internal/analysis"
)

// Transport defines a generic interface for sending processed data or events.
// Implementations must be thread-safe and must not retain data after Send
// returns; publishers reuse their buffers.
type Transport interface {
	Send(data any) error
	Close() error
}

// Frame is one published snapshot of the visualizer buckets.
type Frame struct {
	Sequence  uint32        `json:"seq"`
	Timestamp int64         `json:"ts"` // Nanoseconds since epoch.
	Mode      analysis.Mode `json:"mode"`
	Buckets   []float32     `json:"buckets"`
}
