// SPDX-License-Identifier: MIT
/*
Package analysis turns captured audio into a fixed-size array of buckets in
[0,1] for display.

An Engine owns one analysis goroutine that drains a bounded packet queue.
Producers never block (Push drops instead) and readers never block (TryRead
leaves the caller's buffer untouched on contention). Each pass computes into
scratch space and swaps it in under the write lock, so readers only ever see
complete results.
*/
package analysis

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"scribe/internal/audio"
	applog "scribe/internal/log"
)

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("analysis: engine closed")

const (
	MinBuckets = 32
	MaxBuckets = 64
)

// Config configures an Engine.
type Config struct {
	Buckets       int        // Bucket count, MinBuckets..MaxBuckets.
	Overlap       float64    // Welch overlap ratio in [0,1).
	Gain          float64    // Linear gain applied to samples before analysis.
	Window        bool       // Window frames before spectral analyses.
	WindowFunc    WindowFunc // Window applied when Window is set.
	QueueCapacity int        // Packets buffered before Push drops.
	Mode          Mode       // Initial mode.
}

// DefaultConfig returns a 48 bucket spectrum-density configuration.
func DefaultConfig() Config {
	return Config{
		Buckets:       48,
		Overlap:       0.5,
		Gain:          1,
		Window:        true,
		WindowFunc:    Hann,
		QueueCapacity: 8,
		Mode:          ModeSpectrumDensity,
	}
}

type Engine struct {
	cfg   Config
	queue chan audio.Packet

	mode      AtomicMode
	visible   atomic.Bool
	processed atomic.Uint64

	mu      sync.RWMutex
	buckets []float32 // Published result.

	// Owned by the analysis goroutine.
	scratch  []float32
	mono     []float32
	analyzer *analyzer

	closeMu sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	log     *applog.Logger
}

// Compile-time checks for interface implementations.
var _ BucketReader = (*Engine)(nil)
var _ audio.PacketSink = (*Engine)(nil)

// NewEngine validates cfg, allocates the bucket arrays and starts the
// analysis goroutine. The engine starts hidden.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Buckets < MinBuckets || cfg.Buckets > MaxBuckets {
		return nil, fmt.Errorf("bucket count must be in [%d, %d], got %d", MinBuckets, MaxBuckets, cfg.Buckets)
	}
	if cfg.Overlap < 0 || cfg.Overlap >= 1 {
		return nil, fmt.Errorf("overlap must be in [0, 1), got %.3f", cfg.Overlap)
	}
	if cfg.Gain <= 0 {
		cfg.Gain = 1
	}
	if cfg.QueueCapacity < 1 {
		cfg.QueueCapacity = 1
	}

	e := &Engine{
		cfg:      cfg,
		queue:    make(chan audio.Packet, cfg.QueueCapacity),
		buckets:  make([]float32, cfg.Buckets),
		scratch:  make([]float32, cfg.Buckets),
		analyzer: newAnalyzer(cfg),
		log:      applog.WithComponent("visualizer"),
	}
	e.mode.Store(cfg.Mode)

	e.log.Debugf("initializing engine (buckets: %d, overlap: %.2f, window: %v/%s, mode: %s)",
		cfg.Buckets, cfg.Overlap, cfg.Window, cfg.WindowFunc, cfg.Mode)

	e.wg.Add(1)
	go e.loop()
	return e, nil
}

// Push queues samples for analysis without blocking. It returns false when
// the packet was dropped: the engine is hidden, its queue is full, or it is
// closed.
func (e *Engine) Push(samples audio.Samples, sampleRate int) bool {
	return e.PushPacket(audio.Packet{Samples: samples, SampleRate: sampleRate, Channels: 1})
}

// PushPacket is Push for a tagged packet.
func (e *Engine) PushPacket(p audio.Packet) bool {
	if p.Samples == nil || !e.visible.Load() {
		return false
	}
	e.closeMu.RLock()
	defer e.closeMu.RUnlock()
	if e.closed {
		return false
	}
	select {
	case e.queue <- p:
		return true
	default:
		return false
	}
}

// SetVisible controls whether Push accepts packets.
func (e *Engine) SetVisible(v bool) { e.visible.Store(v) }

func (e *Engine) Visible() bool { return e.visible.Load() }

// TryRead copies the current buckets into dst if the result is not being
// replaced right now. On contention dst is left untouched and TryRead
// returns false.
func (e *Engine) TryRead(dst []float32) bool {
	if !e.mu.TryRLock() {
		return false
	}
	copy(dst, e.buckets)
	e.mu.RUnlock()
	return true
}

// Read copies the current buckets into dst, waiting for the lock.
func (e *Engine) Read(dst []float32) {
	e.mu.RLock()
	copy(dst, e.buckets)
	e.mu.RUnlock()
}

func (e *Engine) Rotate(dir Direction) Mode { return e.mode.Rotate(dir) }
func (e *Engine) SetMode(m Mode)            { e.mode.Store(m) }
func (e *Engine) Mode() Mode                { return e.mode.Load() }
func (e *Engine) Buckets() int              { return e.cfg.Buckets }

// Processed is the number of packets analysed so far.
func (e *Engine) Processed() uint64 { return e.processed.Load() }

// Close stops accepting packets, lets the goroutine drain the queue and
// joins it. It is safe to call more than once.
func (e *Engine) Close() error {
	e.closeMu.Lock()
	if e.closed {
		e.closeMu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.closeMu.Unlock()

	e.wg.Wait()
	e.log.Debugf("closed after %d packets", e.processed.Load())
	return nil
}

func (e *Engine) loop() {
	defer e.wg.Done()
	for p := range e.queue {
		e.process(p)
	}
}

func (e *Engine) process(p audio.Packet) {
	e.mono = e.toMono(e.mono[:0], p)
	if len(e.mono) == 0 {
		return
	}

	e.analyzer.run(e.mode.Load(), e.scratch, e.mono, float64(p.SampleRate))

	e.mu.Lock()
	e.buckets, e.scratch = e.scratch, e.buckets
	e.mu.Unlock()
	e.processed.Add(1)
}

// toMono converts p to gain-adjusted mono floats in dst. The packet itself is
// shared with other consumers and is never modified.
func (e *Engine) toMono(dst []float32, p audio.Packet) []float32 {
	dst = p.Samples.AppendFloat32(dst)
	gain := float32(e.cfg.Gain)

	channels := max(p.Channels, 1)
	if channels == 1 {
		if gain != 1 {
			for i := range dst {
				dst[i] *= gain
			}
		}
		return dst
	}

	frames := len(dst) / channels
	scale := gain / float32(channels)
	for i := range frames {
		var sum float32
		for _, v := range dst[i*channels : (i+1)*channels] {
			sum += v
		}
		dst[i] = sum * scale
	}
	return dst[:frames]
}
