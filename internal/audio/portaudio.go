// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync/atomic"
	"time"

	applog "scribe/internal/log"

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend captures from a PortAudio input device. It should be
// wrapped in an Arbiter so streams are opened and closed on one thread.
type PortAudioBackend struct{}

type paCapture struct {
	stream     *portaudio.Stream
	sampleRate int
	channels   int
	frames     int
	format     SampleFormat
	dropped    atomic.Uint64
}

// Open initialises PortAudio, opens an input-only stream on the requested
// device and binds its callback to sink. The callback copies every device
// buffer into a fresh chunk and never blocks: chunks are dropped when sink is
// full.
func (PortAudioBackend) Open(spec Spec, sink chan<- Samples) (Capture, error) {
	if err := Initialize(); err != nil {
		return nil, deviceErr("open", err)
	}

	device, err := InputDevice(spec.DeviceID)
	if err != nil {
		Terminate()
		return nil, deviceErr("open", err)
	}

	latency := device.DefaultHighInputLatency
	if spec.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: spec.Channels,
			Device:   device,
			Latency:  latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: spec.FramesPerBuffer,
		SampleRate:      spec.SampleRate,
	}

	c := &paCapture{
		channels: spec.Channels,
		frames:   spec.FramesPerBuffer,
		format:   spec.Format,
	}

	var callback any
	switch spec.Format {
	case FormatInt16:
		callback = func(in []int16) {
			buf := make(Int16Samples, len(in))
			copy(buf, in)
			c.deliver(sink, buf)
		}
	default:
		callback = func(in []float32) {
			buf := make(Float32Samples, len(in))
			copy(buf, in)
			c.deliver(sink, buf)
		}
	}

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		Terminate()
		return nil, deviceErr("open", err)
	}
	c.stream = stream

	c.sampleRate = int(spec.SampleRate)
	if info := stream.Info(); info != nil && info.SampleRate > 0 {
		c.sampleRate = int(info.SampleRate)
	}

	applog.WithComponent("capture").Infof("opened %q: %d Hz, %d ch, %s, latency %s",
		device.Name, c.sampleRate, c.channels, c.format, latency.Round(time.Microsecond))
	return c, nil
}

func (c *paCapture) deliver(sink chan<- Samples, buf Samples) {
	select {
	case sink <- buf:
	default:
		c.dropped.Add(1)
	}
}

// Close closes the stream and releases PortAudio. The sink is left open: the
// session loop has already stopped reading from it.
func (PortAudioBackend) Close(capture Capture) error {
	c, ok := capture.(*paCapture)
	if !ok {
		return deviceErr("close", fmt.Errorf("foreign capture %T", capture))
	}
	var err error
	if c.stream != nil {
		err = c.stream.Close()
		c.stream = nil
	}
	if n := c.dropped.Load(); n > 0 {
		applog.WithComponent("capture").Warnf("dropped %d device buffers: session loop fell behind", n)
	}
	if termErr := Terminate(); err == nil {
		err = termErr
	}
	return deviceErr("close", err)
}

func (c *paCapture) Play() error {
	return deviceErr("play", c.stream.Start())
}

func (c *paCapture) Pause() error {
	return deviceErr("pause", c.stream.Stop())
}

func (c *paCapture) SampleRate() int      { return c.sampleRate }
func (c *paCapture) Channels() int        { return c.channels }
func (c *paCapture) BufferSize() int      { return c.frames }
func (c *paCapture) Format() SampleFormat { return c.format }
func (c *paCapture) Err() error           { return nil }
