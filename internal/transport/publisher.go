// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"sync"
	"time"

	"scribe/internal/analysis"
	applog "scribe/internal/log"
)

// DefaultInterval is used when a publisher is given a non-positive interval.
const DefaultInterval = 16 * time.Millisecond // ~60Hz

// Publisher periodically reads the latest buckets from a BucketReader and
// sends them as a Frame over a Transport. It never waits for the reader:
// a tick that finds the buckets locked is skipped.
type Publisher struct {
	name      string
	source    analysis.BucketReader
	transport Transport
	interval  time.Duration

	ticker   *time.Ticker   // Ticker that triggers frame sending.
	doneChan chan struct{}  // Channel used to signal the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects access to ticker and doneChan during Start/Stop.

	sequence uint32
	buckets  []float32
	sent     uint64
	skipped  uint64

	log *applog.Logger
}

// NewPublisher creates a publisher named name for logging.
func NewPublisher(name string, interval time.Duration, source analysis.BucketReader, t Transport) (*Publisher, error) {
	if source == nil {
		return nil, errors.New("publisher: bucket source cannot be nil")
	}
	if t == nil {
		return nil, errors.New("publisher: transport cannot be nil")
	}

	log := applog.WithComponent("transport")
	if interval <= 0 {
		interval = DefaultInterval
		log.Warnf("%s: Invalid interval provided, defaulting to %s", name, interval)
	}
	log.Infof("%s: Initializing (Interval: %s, Buckets: %d)", name, interval, source.Buckets())

	return &Publisher{
		name:      name,
		source:    source,
		transport: t,
		interval:  interval,
		buckets:   make([]float32, source.Buckets()),
		log:       log,
	}, nil
}

// Start begins the periodic publishing process. It is safe to call Start
// multiple times; subsequent calls are no-ops if already started.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		p.log.Warnf("%s: Start called but already running.", p.name)
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Captured locally to avoid racing with Stop on p.ticker/p.doneChan.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to
// exit. It is safe to call Stop multiple times.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Infof("%s: stopped after %d frames (%d ticks skipped)", p.name, p.sent, p.skipped)
	return nil
}

// publish sends the current buckets. Only the publisher goroutine calls it.
func (p *Publisher) publish() {
	if !p.source.TryRead(p.buckets) {
		p.skipped++
		return
	}
	p.sequence++
	frame := Frame{
		Sequence:  p.sequence,
		Timestamp: time.Now().UnixNano(),
		Mode:      p.source.Mode(),
		Buckets:   p.buckets,
	}
	if err := p.transport.Send(frame); err != nil {
		p.log.Debugf("%s: send frame %d: %v", p.name, p.sequence, err)
		return
	}
	p.sent++
}

// Close stops the publisher and closes its transport.
func (p *Publisher) Close() error {
	p.Stop()
	return p.transport.Close()
}
