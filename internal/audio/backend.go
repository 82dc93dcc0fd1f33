// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrAlreadyRunning = errors.New("capture already running")
	ErrNoDevice       = errors.New("no input device")
	ErrArbiterClosed  = errors.New("device arbiter closed")
)

// Spec is the recording configuration requested from a backend.
type Spec struct {
	DeviceID        int
	SampleRate      float64
	Channels        int
	FramesPerBuffer int
	Format          SampleFormat
	LowLatency      bool

	// Chunks buffered between the device callback and the session loop,
	// and between the session loop and the writer.
	SinkCapacity   int
	WriterCapacity int
}

// Settings holds the current Spec. Many readers, rare writers.
type Settings struct {
	mu   sync.RWMutex
	spec Spec
}

func NewSettings(spec Spec) *Settings {
	return &Settings{spec: spec}
}

// Load returns a snapshot of the current spec.
func (s *Settings) Load() Spec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spec
}

// Store replaces the spec. Running sessions keep the snapshot they started with.
func (s *Settings) Store(spec Spec) {
	s.mu.Lock()
	s.spec = spec
	s.mu.Unlock()
}

// Capture is an opened input device.
type Capture interface {
	Play() error
	Pause() error
	// SampleRate, Channels and Format report what the hardware granted.
	SampleRate() int
	Channels() int
	BufferSize() int
	Format() SampleFormat
	// Err reports why the backend closed the sink, if it did. A nil error
	// after the sink closed means the stream ended normally.
	Err() error
}

// Backend opens and closes capture devices. Open binds the device to sink;
// the backend owns sink and may close it to signal end of stream.
type Backend interface {
	Open(spec Spec, sink chan<- Samples) (Capture, error)
	Close(c Capture) error
}

// DeviceError is a failure of a device operation.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

func deviceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DeviceError
	if errors.As(err, &de) {
		return err
	}
	return &DeviceError{Op: op, Err: err}
}
