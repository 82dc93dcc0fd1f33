// SPDX-License-Identifier: MIT
package progress

import (
	"testing"
	"time"
)

func waitFor(t *testing.T, tr *Tracker, cond func([]Entry) bool) []Entry {
	t.Helper()
	var buf []Entry
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		var ok bool
		buf, ok = tr.TrySnapshot(buf)
		if ok && cond(buf) {
			return buf
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met, last snapshot %+v", buf)
	return nil
}

func TestBeginIncrementRemove(t *testing.T) {
	tr := NewTracker(8, time.Second)
	defer tr.Close()

	id := tr.Begin("export", 10)
	if id == "" {
		t.Fatal("Begin returned empty id")
	}
	tr.Increment(id, 3)
	tr.Increment(id, 4)

	entries := waitFor(t, tr, func(e []Entry) bool { return len(e) == 1 && e[0].Done == 7 })
	if entries[0].Label != "export" || entries[0].Total != 10 {
		t.Errorf("entry = %+v", entries[0])
	}

	tr.Remove(id)
	waitFor(t, tr, func(e []Entry) bool { return len(e) == 0 })
}

func TestEmptyIDIgnored(t *testing.T) {
	tr := NewTracker(1, time.Second)
	defer tr.Close()

	tr.Increment("", 1)
	tr.Remove("")
	// The queue of one must still have room.
	if !tr.Send(Remove{ID: "unknown"}) {
		t.Error("empty-id calls consumed queue capacity")
	}
}

func TestBeginAfterCloseDegrades(t *testing.T) {
	tr := NewTracker(4, 10*time.Millisecond)
	tr.Close()
	tr.Close() // idempotent

	if id := tr.Begin("setting up", 0); id != "" {
		t.Errorf("Begin on closed tracker = %q, want empty", id)
	}
	if tr.Send(Increment{ID: "x", Delta: 1}) {
		t.Error("Send on closed tracker succeeded")
	}
}

func TestSnapshotOrder(t *testing.T) {
	tr := NewTracker(8, time.Second)
	defer tr.Close()

	a := tr.Begin("first", 0)
	time.Sleep(2 * time.Millisecond)
	b := tr.Begin("second", 0)

	entries := waitFor(t, tr, func(e []Entry) bool { return len(e) == 2 })
	if entries[0].ID != a || entries[1].ID != b {
		t.Errorf("snapshot order = %v, %v", entries[0].Label, entries[1].Label)
	}
}

func TestNopReporter(t *testing.T) {
	var r Reporter = Nop{}
	if id := r.Begin("x", 1); id != "" {
		t.Errorf("Nop.Begin = %q", id)
	}
	r.Increment("", 1)
	r.Remove("")
}
