// SPDX-License-Identifier: MIT
// Package transporttest provides a recording Transport for tests.
package transporttest

import (
	"slices"
	"sync"

	"scribe/internal/transport"
)

// MockTransport implements transport.Transport for testing by recording
// every frame it is sent.
type MockTransport struct {
	mu     sync.Mutex
	frames []transport.Frame
	other  int
	closed bool
	Err    error // Returned by Send when set.
}

// Send stores a copy of the frame instead of transmitting it.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	switch v := data.(type) {
	case transport.Frame:
		v.Buckets = slices.Clone(v.Buckets)
		m.frames = append(m.frames, v)
	case *transport.Frame:
		f := *v
		f.Buckets = slices.Clone(f.Buckets)
		m.frames = append(m.frames, f)
	default:
		m.other++
	}
	return nil
}

// Last returns the most recent frame.
func (m *MockTransport) Last() (transport.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.frames) == 0 {
		return transport.Frame{}, false
	}
	return m.frames[len(m.frames)-1], true
}

// Frames returns every frame received so far.
func (m *MockTransport) Frames() []transport.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.frames)
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ transport.Transport = (*MockTransport)(nil)
