// SPDX-License-Identifier: MIT
package wave

import (
	"sync"
	"time"

	"scribe/internal/audio"
)

// Recording is the metadata of a finished recording.
type Recording struct {
	Key          string // Stable lookup key, the file name.
	Ticket       uint64
	FileName     string
	Path         string
	Duration     time.Duration
	Size         int64 // Estimated: header plus samples times bytes per sample.
	SampleRate   int
	Channels     int
	SampleFormat audio.SampleFormat
	CreatedAt    time.Time
}

// Recordings is an insertion-ordered map of completed recordings holding at
// most a fixed number of entries. Readers that must not block use TryList.
type Recordings struct {
	mu    sync.RWMutex
	max   int
	order []string // Oldest first.
	byKey map[string]Recording
}

func NewRecordings(max int) *Recordings {
	if max < 1 {
		max = 1
	}
	return &Recordings{max: max, byKey: make(map[string]Recording)}
}

// Insert appends rec and returns the entries evicted to stay within the bound.
// Re-inserting a key moves it to the newest position.
func (r *Recordings) Insert(rec Recording) []Recording {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[rec.Key]; ok {
		r.removeLocked(rec.Key)
	}
	r.byKey[rec.Key] = rec
	r.order = append(r.order, rec.Key)

	var evicted []Recording
	for len(r.order) > r.max {
		oldest := r.order[0]
		evicted = append(evicted, r.byKey[oldest])
		r.removeLocked(oldest)
	}
	return evicted
}

func (r *Recordings) Get(key string) (Recording, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byKey[key]
	return rec, ok
}

// Remove deletes key and reports whether it was present.
func (r *Recordings) Remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[key]; !ok {
		return false
	}
	r.removeLocked(key)
	return true
}

func (r *Recordings) removeLocked(key string) {
	delete(r.byKey, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// TryList appends every recording, most recent first, to dst[:0]. If a writer
// holds the lock it returns dst unchanged and false.
func (r *Recordings) TryList(dst []Recording) ([]Recording, bool) {
	if !r.mu.TryRLock() {
		return dst, false
	}
	defer r.mu.RUnlock()
	return r.appendLocked(dst[:0]), true
}

// List returns every recording, most recent first.
func (r *Recordings) List() []Recording {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.appendLocked(make([]Recording, 0, len(r.order)))
}

func (r *Recordings) appendLocked(dst []Recording) []Recording {
	for i := len(r.order) - 1; i >= 0; i-- {
		dst = append(dst, r.byKey[r.order[i]])
	}
	return dst
}

// Clear empties the map and returns what it held.
func (r *Recordings) Clear() []Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recording, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byKey[k])
	}
	r.order = nil
	r.byKey = make(map[string]Recording)
	return out
}

func (r *Recordings) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
