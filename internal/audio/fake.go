// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// FakeBackend is a deterministic capture backend that plays a sine tone. It
// needs no hardware and is used by tests and the --fake flag.
type FakeBackend struct {
	Frequency float64 // Tone frequency in Hz; 440 if zero.
	Amplitude float64 // Peak amplitude in (0, 1]; 0.5 if zero.

	// Chunks is the number of buffers produced before the backend closes the
	// sink. Zero means unlimited.
	Chunks int
	// Interval paces buffers. Zero produces them as fast as the sink accepts.
	Interval time.Duration
	// GrantedRate overrides the sample rate reported after Open.
	GrantedRate int

	OpenErr error // Returned by Open.
	PlayErr error // Returned by Capture.Play.
	EndErr  error // Reported by Capture.Err once Chunks buffers were produced.

	opened atomic.Int32
	closed atomic.Int32
}

// Opened and Closed count successful Open and Close calls.
func (b *FakeBackend) Opened() int { return int(b.opened.Load()) }
func (b *FakeBackend) Closed() int { return int(b.closed.Load()) }

type fakeCapture struct {
	spec    Spec
	rate    int
	backend *FakeBackend
	sink    chan<- Samples

	started   chan struct{}
	startOnce sync.Once
	stop      chan struct{}
	stopOnce  sync.Once
	playing   atomic.Bool
	wg        sync.WaitGroup

	mu  sync.Mutex
	err error
}

func (b *FakeBackend) Open(spec Spec, sink chan<- Samples) (Capture, error) {
	if b.OpenErr != nil {
		return nil, deviceErr("open", b.OpenErr)
	}
	if spec.Channels < 1 || spec.FramesPerBuffer < 1 {
		return nil, deviceErr("open", fmt.Errorf("invalid spec: %d channels, %d frames", spec.Channels, spec.FramesPerBuffer))
	}
	rate := int(spec.SampleRate)
	if b.GrantedRate > 0 {
		rate = b.GrantedRate
	}
	c := &fakeCapture{
		spec:    spec,
		rate:    rate,
		backend: b,
		sink:    sink,
		started: make(chan struct{}),
		stop:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run()
	b.opened.Add(1)
	return c, nil
}

func (b *FakeBackend) Close(capture Capture) error {
	c, ok := capture.(*fakeCapture)
	if !ok {
		return deviceErr("close", fmt.Errorf("foreign capture %T", capture))
	}
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
	b.closed.Add(1)
	return nil
}

func (c *fakeCapture) Play() error {
	if c.backend.PlayErr != nil {
		return c.backend.PlayErr
	}
	c.playing.Store(true)
	c.startOnce.Do(func() { close(c.started) })
	return nil
}

func (c *fakeCapture) Pause() error {
	c.playing.Store(false)
	return nil
}

func (c *fakeCapture) SampleRate() int      { return c.rate }
func (c *fakeCapture) Channels() int        { return c.spec.Channels }
func (c *fakeCapture) BufferSize() int      { return c.spec.FramesPerBuffer }
func (c *fakeCapture) Format() SampleFormat { return c.spec.Format }

func (c *fakeCapture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeCapture) run() {
	defer c.wg.Done()

	select {
	case <-c.started:
	case <-c.stop:
		return
	}

	var tick <-chan time.Time
	if c.backend.Interval > 0 {
		ticker := time.NewTicker(c.backend.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	freq := c.backend.Frequency
	if freq == 0 {
		freq = 440
	}
	amp := c.backend.Amplitude
	if amp == 0 {
		amp = 0.5
	}

	var frame int
	for n := 0; c.backend.Chunks == 0 || n < c.backend.Chunks; {
		if tick != nil {
			select {
			case <-tick:
			case <-c.stop:
				return
			}
		}
		if !c.playing.Load() {
			select {
			case <-time.After(time.Millisecond):
				continue
			case <-c.stop:
				return
			}
		}

		buf := c.generate(frame, freq, amp)
		frame += c.spec.FramesPerBuffer

		select {
		case c.sink <- buf:
			n++
		case <-c.stop:
			return
		}
	}

	c.mu.Lock()
	c.err = c.backend.EndErr
	c.mu.Unlock()
	close(c.sink)
}

func (c *fakeCapture) generate(start int, freq, amp float64) Samples {
	frames, channels := c.spec.FramesPerBuffer, c.spec.Channels
	phase := 2 * math.Pi * freq / float64(c.rate)

	if c.spec.Format == FormatInt16 {
		buf := make(Int16Samples, frames*channels)
		for i := range frames {
			v := int16(math.Round(amp * math.MaxInt16 * math.Sin(phase*float64(start+i))))
			for ch := range channels {
				buf[i*channels+ch] = v
			}
		}
		return buf
	}

	buf := make(Float32Samples, frames*channels)
	for i := range frames {
		v := float32(amp * math.Sin(phase*float64(start+i)))
		for ch := range channels {
			buf[i*channels+ch] = v
		}
	}
	return buf
}
