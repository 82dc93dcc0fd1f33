// SPDX-License-Identifier: MIT
package router

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type collector struct {
	mu  sync.Mutex
	out []Outcome
}

func (c *collector) observe(o Outcome) {
	c.mu.Lock()
	c.out = append(c.out, o)
	c.mu.Unlock()
}

func (c *collector) snapshot() []Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Outcome(nil), c.out...)
}

func TestDispatchFollowsSubmissionOrder(t *testing.T) {
	r := New()
	var c collector
	r.SetObserver(KindConsole, c.observe)

	// Later jobs finish first; dispatch must still follow submission order.
	const n = 5
	for i := range n {
		delay := time.Duration(n-i) * 5 * time.Millisecond
		name := string(rune('a' + i))
		if _, err := r.Go(name, func() (Message, error) {
			time.Sleep(delay)
			return Console("%s", name), nil
		}); err != nil {
			t.Fatalf("Go(%s): %v", name, err)
		}
	}
	r.Shutdown()

	got := c.snapshot()
	if len(got) != n {
		t.Fatalf("dispatched %d outcomes, want %d", len(got), n)
	}
	for i, o := range got {
		want := string(rune('a' + i))
		if o.Job != want || o.Message.Text != want {
			t.Errorf("outcome %d = %+v, want job %s", i, o, want)
		}
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	r := New()
	r.Shutdown()
	r.Shutdown() // idempotent

	if err := r.Submit(Ready("late", Console("x"))); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Shutdown = %v, want ErrClosed", err)
	}
	if _, err := r.Go("late", func() (Message, error) { return Message{}, nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("Go after Shutdown = %v, want ErrClosed", err)
	}
}

func TestPanicBecomesError(t *testing.T) {
	r := New()
	var c collector
	r.SetObserver(KindError, c.observe)

	if _, err := r.Go("boom", func() (Message, error) { panic("kaput") }); err != nil {
		t.Fatal(err)
	}
	r.Shutdown()

	got := c.snapshot()
	if len(got) != 1 {
		t.Fatalf("got %d outcomes, want 1", len(got))
	}
	var pe *PanicError
	if !errors.As(got[0].Err, &pe) {
		t.Fatalf("err = %v, want *PanicError", got[0].Err)
	}
	if pe.Job != "boom" || pe.Value != "kaput" {
		t.Errorf("panic error = %+v", pe)
	}
}

func TestErrorFallsBackToConsole(t *testing.T) {
	r := New()
	var c collector
	r.SetObserver(KindConsole, c.observe)

	if err := r.Submit(Failed("write", errors.New("disk full"))); err != nil {
		t.Fatal(err)
	}
	r.Shutdown()

	got := c.snapshot()
	if len(got) != 1 {
		t.Fatalf("got %d outcomes, want 1", len(got))
	}
	if !strings.HasPrefix(got[0].Message.Text, "error: ") || !strings.Contains(got[0].Message.Text, "disk full") {
		t.Errorf("console text = %q", got[0].Message.Text)
	}
}

func TestObserverReplaceAndRemove(t *testing.T) {
	r := New()
	var first, second collector
	r.SetObserver(KindTranscription, first.observe)
	r.SetObserver(KindTranscription, second.observe)

	j := Ready("t1", Message{Kind: KindTranscription, Text: "hello"})
	if err := r.Submit(j); err != nil {
		t.Fatal(err)
	}
	// Wait for dispatch before removing the observer.
	deadline := time.Now().Add(time.Second)
	for r.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	r.SetObserver(KindTranscription, nil)
	if err := r.Submit(Ready("t2", Message{Kind: KindTranscription, Text: "dropped"})); err != nil {
		t.Fatal(err)
	}
	r.Shutdown()

	if n := len(first.snapshot()); n != 0 {
		t.Errorf("replaced observer received %d outcomes", n)
	}
	got := second.snapshot()
	if len(got) != 1 || got[0].Message.Text != "hello" {
		t.Errorf("second observer got %+v", got)
	}
}

func TestObserverPanicDoesNotStopRouter(t *testing.T) {
	r := New()
	var c collector
	calls := 0
	r.SetObserver(KindConsole, func(o Outcome) {
		calls++
		if calls == 1 {
			panic("observer bug")
		}
		c.observe(o)
	})

	_ = r.Submit(Ready("one", Console("1")))
	_ = r.Submit(Ready("two", Console("2")))
	r.Shutdown()

	got := c.snapshot()
	if len(got) != 1 || got[0].Job != "two" {
		t.Errorf("got %+v, want only job two", got)
	}
}

func TestShutdownDrainsQueue(t *testing.T) {
	r := New()
	var c collector
	r.SetObserver(KindConsole, c.observe)

	release := make(chan struct{})
	_, _ = r.Go("slow", func() (Message, error) {
		<-release
		return Console("slow"), nil
	})
	_ = r.Submit(Ready("fast", Console("fast")))

	if p := r.Pending(); p != 2 {
		t.Errorf("Pending() = %d, want 2", p)
	}

	done := make(chan struct{})
	go func() {
		r.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Shutdown returned before queued jobs completed")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-done

	if got := c.snapshot(); len(got) != 2 {
		t.Errorf("drained %d outcomes, want 2", len(got))
	}
}
