// SPDX-License-Identifier: MIT
/*
Package audio captures microphone input and fans it out to the recording
writer and the visualizer.

A Controller runs at most one capture session at a time. The session loop
receives device chunks from the backend's sink and forwards each immutable
chunk to both consumers without copying:
- the writer receives every chunk, in device order, through a bounded channel
- the visualizer receives chunks best-effort and may drop them

Device handles are opened and closed through an Arbiter so that they stay on
one OS thread.
*/
package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	applog "scribe/internal/log"
	"scribe/internal/progress"
	"scribe/internal/router"
)

// WriteSession is the writer's handle for one recording. Done is closed when
// the writer has stopped consuming, whether it finished or failed.
type WriteSession interface {
	Done() <-chan struct{}
}

// SessionWriter persists a chunk stream. The writer must finalise its output
// once rx is closed.
type SessionWriter interface {
	Submit(rx <-chan Samples, confirmed Format) (WriteSession, error)
}

// PacketSink receives visualizer packets without blocking.
type PacketSink interface {
	PushPacket(p Packet) bool
}

type Controller struct {
	router     *router.Router
	writer     SessionWriter
	visualizer PacketSink
	progress   progress.Reporter
	settings   *Settings
	gate       *Gate

	running atomic.Bool
	mu      sync.Mutex
	quit    chan struct{} // Current session; nil when none.
	wg      sync.WaitGroup
	log     *applog.Logger
}

// NewController wires a controller. visualizer and reporter may be nil.
func NewController(r *router.Router, w SessionWriter, visualizer PacketSink, reporter progress.Reporter, settings *Settings) *Controller {
	if reporter == nil {
		reporter = progress.Nop{}
	}
	return &Controller{
		router:     r,
		writer:     w,
		visualizer: visualizer,
		progress:   reporter,
		settings:   settings,
		gate:       &Gate{},
		log:        applog.WithComponent("capture"),
	}
}

// Gate returns the visualizer gate.
func (c *Controller) Gate() *Gate { return c.gate }

// IsRunning reports whether a session is active.
func (c *Controller) IsRunning() bool {
	return c.running.Load()
}

// Start opens a capture session on backend. The running flag is set before
// the device is opened. Open failures are returned here; everything after a
// successful open is reported through the router.
func (c *Controller) Start(backend Backend) error {
	c.mu.Lock()
	if c.running.Load() {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running.Store(true)
	quit := make(chan struct{})
	c.quit = quit
	c.mu.Unlock()

	setupID := c.progress.Begin("setting up capture", 0)
	spec := c.settings.Load()
	opened := make(chan error, 1)

	c.wg.Add(1)
	job := router.Spawn("capture session", func() (router.Message, error) {
		defer c.wg.Done()
		defer c.finish(quit)
		return c.session(backend, spec, setupID, quit, opened)
	})

	var openErr error
	select {
	case openErr = <-opened:
	case <-job.Done():
		select {
		case openErr = <-opened:
		default:
			// The session ended before reporting on the device, e.g. it panicked.
			c.progress.Remove(setupID)
			return job.Wait().Err
		}
	}
	if openErr != nil {
		<-job.Done()
		return openErr
	}

	if err := c.router.Submit(job); err != nil {
		c.log.Warnf("session result will not be reported: %v", err)
	}
	return nil
}

// Stop asks the running session to exit. It returns immediately; the loop
// notices between chunks.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running.Store(false)
	if c.quit != nil {
		close(c.quit)
		c.quit = nil
	}
}

// Wait blocks until every started session has torn down.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) finish(quit chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quit == quit {
		c.running.Store(false)
		c.quit = nil
	}
}

type sessionStats struct {
	chunks     int
	samples    int
	visDropped int
	visGated   int
	sinkClosed bool
	writerGone bool
	stopped    bool
}

func (c *Controller) session(backend Backend, spec Spec, setupID progress.ID, quit <-chan struct{}, opened chan<- error) (msg router.Message, err error) {
	sinkCap := max(spec.SinkCapacity, 1)
	writerCap := max(spec.WriterCapacity, 1)

	sink := make(chan Samples, sinkCap)
	capture, err := backend.Open(spec, sink)
	if err != nil {
		c.progress.Remove(setupID)
		err = deviceErr("open", err)
		opened <- err
		return router.Message{}, err
	}

	confirmed := Format{
		SampleRate:   capture.SampleRate(),
		Channels:     capture.Channels(),
		SampleFormat: capture.Format(),
	}

	writerCh := make(chan Samples, writerCap)
	ws, err := c.writer.Submit(writerCh, confirmed)
	if err != nil {
		close(writerCh)
		c.progress.Remove(setupID)
		if closeErr := backend.Close(capture); closeErr != nil {
			c.log.Errorf("closing device after writer failure: %v", closeErr)
		}
		err = fmt.Errorf("start writer: %w", err)
		opened <- err
		return router.Message{}, err
	}
	defer close(writerCh)

	c.progress.Remove(setupID)
	opened <- nil

	c.log.Infof("capture started: %s, %d frames per buffer", confirmed, capture.BufferSize())

	defer func() {
		if pauseErr := capture.Pause(); pauseErr != nil {
			c.log.Debugf("pause: %v", pauseErr)
		}
		if closeErr := backend.Close(capture); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	if err := capture.Play(); err != nil {
		return router.Message{}, deviceErr("play", err)
	}

	stats := c.loop(sink, writerCh, ws.Done(), quit, confirmed)

	if stats.visDropped > 0 {
		c.log.Debugf("visualizer dropped %d of %d chunks", stats.visDropped, stats.chunks)
	}

	duration := time.Duration(0)
	if confirmed.SampleRate > 0 && confirmed.Channels > 0 {
		frames := stats.samples / confirmed.Channels
		duration = time.Duration(float64(frames) / float64(confirmed.SampleRate) * float64(time.Second))
	}

	switch {
	case stats.writerGone:
		return router.Message{}, errors.New("capture stopped: writer is no longer consuming")
	case stats.sinkClosed && capture.Err() != nil:
		return router.Message{}, deviceErr("stream", capture.Err())
	}

	c.log.Infof("capture finished: %d chunks, %s", stats.chunks, duration.Round(time.Millisecond))
	return router.Console("recording complete (%s)", duration.Round(100*time.Millisecond)), nil
}

func (c *Controller) loop(sink <-chan Samples, writerCh chan<- Samples, writerDone <-chan struct{}, quit <-chan struct{}, f Format) sessionStats {
	var stats sessionStats
	for {
		select {
		case <-quit:
			stats.stopped = true
			return stats
		case buf, ok := <-sink:
			if !ok {
				stats.sinkClosed = true
				return stats
			}

			select {
			case <-writerDone:
				stats.writerGone = true
				return stats
			default:
			}
			select {
			case writerCh <- buf:
			case <-writerDone:
				stats.writerGone = true
				return stats
			case <-quit:
				stats.stopped = true
				return stats
			}
			stats.chunks++
			stats.samples += buf.Len()

			if c.visualizer == nil {
				continue
			}
			if !c.gate.Open(buf) {
				stats.visGated++
				continue
			}
			if !c.visualizer.PushPacket(Packet{Samples: buf, SampleRate: f.SampleRate, Channels: f.Channels}) {
				stats.visDropped++
			}
		}
	}
}
