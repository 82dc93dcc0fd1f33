// SPDX-License-Identifier: MIT
package audio

import (
	"runtime"
	"sync"
)

// Arbiter serialises every Open and Close of a Backend onto one goroutine
// locked to its OS thread. Some host audio APIs require a stream to be closed
// on the thread that opened it.
type Arbiter struct {
	backend Backend
	reqs    chan func()
	quit    chan struct{}

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewArbiter starts the arbitration goroutine for b.
func NewArbiter(b Backend) *Arbiter {
	a := &Arbiter{
		backend: b,
		reqs:    make(chan func()),
		quit:    make(chan struct{}),
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *Arbiter) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer a.wg.Done()

	for {
		select {
		case fn := <-a.reqs:
			fn()
		case <-a.quit:
			return
		}
	}
}

func (a *Arbiter) do(fn func()) error {
	done := make(chan struct{})
	req := func() {
		defer close(done)
		fn()
	}
	select {
	case a.reqs <- req:
	case <-a.quit:
		return ErrArbiterClosed
	}
	<-done
	return nil
}

// Open implements Backend.
func (a *Arbiter) Open(spec Spec, sink chan<- Samples) (Capture, error) {
	var (
		c   Capture
		err error
	)
	if doErr := a.do(func() { c, err = a.backend.Open(spec, sink) }); doErr != nil {
		return nil, deviceErr("open", doErr)
	}
	return c, err
}

// Close implements Backend.
func (a *Arbiter) Close(c Capture) error {
	var err error
	if doErr := a.do(func() { err = a.backend.Close(c) }); doErr != nil {
		return deviceErr("close", doErr)
	}
	return err
}

// Shutdown stops the arbitration goroutine. Later calls fail with
// ErrArbiterClosed.
func (a *Arbiter) Shutdown() {
	a.stopOnce.Do(func() { close(a.quit) })
	a.wg.Wait()
}
