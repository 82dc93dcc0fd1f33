// SPDX-License-Identifier: MIT
/*
Package router joins background jobs in submission order and hands each
outcome to the observer registered for its kind.

The router never runs the work itself: a job is already executing on its own
goroutine when it is submitted. Only result dispatch is serialised, so a job's
outcome is always delivered after every outcome submitted before it.
*/
package router

import (
	"errors"
	"sync"

	applog "scribe/internal/log"
)

// ErrClosed is returned by Submit after Shutdown.
var ErrClosed = errors.New("router: closed")

// Observer receives job outcomes of one kind.
type Observer func(Outcome)

const numKinds = int(KindError) + 1

type Router struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*Job
	closed  bool
	pending int

	obsMu     sync.RWMutex
	observers [numKinds]Observer

	shutdown sync.Once
	wg       sync.WaitGroup
	log      *applog.Logger
}

// New creates a router and starts its dispatch goroutine.
func New() *Router {
	r := &Router{log: applog.WithComponent("router")}
	r.cond = sync.NewCond(&r.mu)
	r.wg.Add(1)
	go r.loop()
	return r
}

// Submit enqueues job for dispatch. It never blocks on the job itself.
func (r *Router) Submit(job *Job) error {
	if job == nil {
		return errors.New("router: nil job")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.queue = append(r.queue, job)
	r.pending++
	r.cond.Signal()
	return nil
}

// Go spawns fn as a job and submits it.
func (r *Router) Go(name string, fn func() (Message, error)) (*Job, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	job := Spawn(name, fn)
	if err := r.Submit(job); err != nil {
		return nil, err
	}
	return job, nil
}

// SetObserver installs fn for kind, replacing any previous observer. A nil fn
// removes the observer.
func (r *Router) SetObserver(kind Kind, fn Observer) {
	if int(kind) >= numKinds {
		return
	}
	r.obsMu.Lock()
	r.observers[kind] = fn
	r.obsMu.Unlock()
}

// Pending reports how many submitted jobs have not been dispatched yet.
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// Shutdown stops accepting jobs, dispatches everything already queued, and
// joins the dispatch goroutine. It is safe to call more than once.
func (r *Router) Shutdown() {
	r.shutdown.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	r.wg.Wait()
}

func (r *Router) next() (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.queue) == 0 && !r.closed {
		r.cond.Wait()
	}
	if len(r.queue) == 0 {
		return nil, false
	}
	job := r.queue[0]
	r.queue[0] = nil
	r.queue = r.queue[1:]
	return job, true
}

func (r *Router) loop() {
	defer r.wg.Done()
	for {
		job, ok := r.next()
		if !ok {
			return
		}
		r.dispatch(job.Wait())

		r.mu.Lock()
		r.pending--
		r.mu.Unlock()
	}
}

func (r *Router) observer(kind Kind) Observer {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	return r.observers[kind]
}

func (r *Router) dispatch(out Outcome) {
	if out.Err != nil {
		if fn := r.observer(KindError); fn != nil {
			r.notify(fn, out)
			return
		}
		if fn := r.observer(KindConsole); fn != nil {
			out.Message = Message{Kind: KindConsole, Text: "error: " + out.Err.Error()}
			r.notify(fn, out)
			return
		}
		r.log.Errorf("job %s failed: %v", out.Job, out.Err)
		return
	}

	if fn := r.observer(out.Message.Kind); fn != nil {
		r.notify(fn, out)
		return
	}
	r.log.Debugf("job %s: no %s observer, dropping %q", out.Job, out.Message.Kind, out.Message.Text)
}

func (r *Router) notify(fn Observer, out Outcome) {
	defer func() {
		if v := recover(); v != nil {
			r.log.Errorf("observer for job %s panicked: %v", out.Job, v)
		}
	}()
	fn(out)
}
