// SPDX-License-Identifier: MIT
/*
Package progress is the progress sink the pipeline reports long-running work
to. Callers never block on it: commands are queued without waiting and Begin
gives up after a short timeout, returning an empty ID that every other call
ignores.
*/
package progress

import (
	"sort"
	"sync"
	"time"

	applog "scribe/internal/log"

	"github.com/google/uuid"
)

// ID is an opaque progress job identifier. The zero value means "no job".
type ID string

// Job describes a unit of work. Total 0 means indeterminate.
type Job struct {
	Label string
	Total int
}

// Command is one of Request, Increment or Remove.
type Command interface{ isCommand() }

// Request registers a job; the new ID is sent on Reply.
type Request struct {
	Job   Job
	Reply chan<- ID
}

// Increment advances a job by Delta.
type Increment struct {
	ID    ID
	Delta int
}

// Remove forgets a job.
type Remove struct {
	ID ID
}

func (Request) isCommand()   {}
func (Increment) isCommand() {}
func (Remove) isCommand()    {}

// Entry is a snapshot of one job.
type Entry struct {
	ID      ID
	Label   string
	Total   int
	Done    int
	Started time.Time
}

// Reporter is the subset of Tracker used by producers.
type Reporter interface {
	Begin(label string, total int) ID
	Increment(id ID, delta int)
	Remove(id ID)
}

type Tracker struct {
	cmds    chan Command
	timeout time.Duration

	mu      sync.RWMutex
	entries map[ID]*Entry

	closeMu sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	log     *applog.Logger
}

// NewTracker starts a tracker with a queue of capacity commands. Begin waits
// at most replyTimeout for an ID.
func NewTracker(capacity int, replyTimeout time.Duration) *Tracker {
	if capacity < 1 {
		capacity = 1
	}
	t := &Tracker{
		cmds:    make(chan Command, capacity),
		timeout: replyTimeout,
		entries: make(map[ID]*Entry),
		log:     applog.WithComponent("progress"),
	}
	t.wg.Add(1)
	go t.loop()
	return t
}

// Send queues cmd without blocking. It reports false when the queue is full
// or the tracker is closed.
func (t *Tracker) Send(cmd Command) bool {
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	if t.closed {
		return false
	}
	select {
	case t.cmds <- cmd:
		return true
	default:
		t.log.Warnf("queue full, dropping %T", cmd)
		return false
	}
}

// Begin registers a job and returns its ID, or "" if the tracker did not
// answer in time.
func (t *Tracker) Begin(label string, total int) ID {
	reply := make(chan ID, 1)
	if !t.Send(Request{Job: Job{Label: label, Total: total}, Reply: reply}) {
		t.log.Warnf("unavailable, continuing without progress for %q", label)
		return ""
	}
	timer := time.NewTimer(t.timeout)
	defer timer.Stop()
	select {
	case id := <-reply:
		return id
	case <-timer.C:
		t.log.Warnf("no reply within %s for %q", t.timeout, label)
		return ""
	}
}

// Increment advances id by delta.
func (t *Tracker) Increment(id ID, delta int) {
	if id == "" {
		return
	}
	t.Send(Increment{ID: id, Delta: delta})
}

// Remove forgets id.
func (t *Tracker) Remove(id ID) {
	if id == "" {
		return
	}
	t.Send(Remove{ID: id})
}

// TrySnapshot appends the current jobs, oldest first, to dst[:0]. It returns
// false and leaves dst untouched if the table is being updated.
func (t *Tracker) TrySnapshot(dst []Entry) ([]Entry, bool) {
	if !t.mu.TryRLock() {
		return dst, false
	}
	dst = dst[:0]
	for _, e := range t.entries {
		dst = append(dst, *e)
	}
	t.mu.RUnlock()
	sort.Slice(dst, func(i, j int) bool { return dst[i].Started.Before(dst[j].Started) })
	return dst, true
}

// Close stops the tracker goroutine. Pending commands are applied first.
func (t *Tracker) Close() {
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return
	}
	t.closed = true
	close(t.cmds)
	t.closeMu.Unlock()
	t.wg.Wait()
}

func (t *Tracker) loop() {
	defer t.wg.Done()
	for cmd := range t.cmds {
		t.apply(cmd)
	}
}

func (t *Tracker) apply(cmd Command) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch c := cmd.(type) {
	case Request:
		id := ID(uuid.NewString())
		t.entries[id] = &Entry{ID: id, Label: c.Job.Label, Total: c.Job.Total, Started: time.Now()}
		// Reply is buffered by Begin; never block the tracker on a gone caller.
		select {
		case c.Reply <- id:
		default:
		}
	case Increment:
		if e, ok := t.entries[c.ID]; ok {
			e.Done += c.Delta
		}
	case Remove:
		delete(t.entries, c.ID)
	}
}

// Nop is a Reporter that records nothing.
type Nop struct{}

func (Nop) Begin(string, int) ID { return "" }
func (Nop) Increment(ID, int)    {}
func (Nop) Remove(ID)            {}
