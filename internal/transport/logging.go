// SPDX-License-Identifier: MIT
package transport

import (
	applog "scribe/internal/log"
)

// LoggingTransport implements the Transport interface by logging frames at
// debug level.
type LoggingTransport struct {
	log *applog.Logger
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	lt := &LoggingTransport{log: applog.WithComponent("transport")}
	lt.log.Infof("Using LoggingTransport")
	return lt
}

// Send logs a summary of the frame.
func (lt *LoggingTransport) Send(data any) error {
	switch v := data.(type) {
	case Frame:
		lt.log.Debugf("frame %d mode=%s peak=%.3f", v.Sequence, v.Mode, peak(v.Buckets))
	case *Frame:
		lt.log.Debugf("frame %d mode=%s peak=%.3f", v.Sequence, v.Mode, peak(v.Buckets))
	default:
		lt.log.Debugf("received %T", data)
	}
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	lt.log.Debugf("Close called")
	return nil
}

func peak(buckets []float32) float32 {
	var p float32
	for _, v := range buckets {
		p = max(p, v)
	}
	return p
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
