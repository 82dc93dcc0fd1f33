// SPDX-License-Identifier: MIT
/*
Package wave persists capture sessions as WAV files and keeps a bounded,
most-recent-first index of the finished recordings.

Each session is written by a job spawned on the router. A fixed-size pool
limits how many sessions encode at once; a session waiting for a slot leaves
its chunks queued in the capture channel. Float32 sessions are stored as IEEE
float WAV so that no precision is lost; int16 sessions are stored as PCM.
*/
package wave

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"scribe/internal/audio"
	applog "scribe/internal/log"
	"scribe/internal/router"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
	wavHeaderSize  = 44

	DefaultPrefix        = "recording"
	DefaultMaxRecordings = 10
	DefaultPoolSize      = 2
)

var (
	ErrNotFound        = errors.New("recording not found")
	ErrClearInProgress = errors.New("clear already in progress")
)

// Format is the confirmed stream format a session is written with.
type Format = audio.Format

// Catalog persists recording metadata across runs.
type Catalog interface {
	Save(rec Recording) error
	Delete(key string) error
	Clear() error
	List() ([]Recording, error) // Oldest first.
}

type Config struct {
	Dir           string
	Prefix        string
	MaxRecordings int
	PoolSize      int
}

// fileHandle is what the encoder writes to.
type fileHandle interface {
	io.WriteSeeker
	io.Closer
}

var createFile = func(path string) (fileHandle, error) { return os.Create(path) }

// Writer encodes capture sessions into WAV files.
type Writer struct {
	cfg        Config
	router     *router.Router
	catalog    Catalog
	recordings *Recordings

	pool     chan struct{}
	ticket   atomic.Uint64
	clearing atomic.Bool

	activeMu sync.Mutex
	active   map[string]struct{} // Paths currently being written.

	sessions sync.WaitGroup
	log      *applog.Logger
}

// NewWriter prepares cfg.Dir, restores recordings known to cat and resumes
// ticket numbering after the highest ticket found on disk. A nil catalog
// keeps recordings in memory only.
func NewWriter(cfg Config, r *router.Router, cat Catalog) (*Writer, error) {
	if r == nil {
		return nil, errors.New("wave: nil router")
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.MaxRecordings <= 0 {
		cfg.MaxRecordings = DefaultMaxRecordings
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cat == nil {
		cat = nopCatalog{}
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}

	w := &Writer{
		cfg:        cfg,
		router:     r,
		catalog:    cat,
		recordings: NewRecordings(cfg.MaxRecordings),
		pool:       make(chan struct{}, cfg.PoolSize),
		active:     make(map[string]struct{}),
		log:        applog.WithComponent("wave"),
	}

	known, err := cat.List()
	if err != nil {
		return nil, fmt.Errorf("failed to load recording catalog: %w", err)
	}
	for _, rec := range known {
		for _, old := range w.recordings.Insert(rec) {
			w.forget(old)
		}
	}
	if n := w.Prune(); n > 0 {
		w.log.Infof("Dropped %d catalogued recordings whose files are gone", n)
	}

	w.ticket.Store(w.highestTicket(known))
	return w, nil
}

func (w *Writer) highestTicket(known []Recording) uint64 {
	var highest uint64
	for _, rec := range known {
		highest = max(highest, rec.Ticket)
	}
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return highest
	}
	for _, e := range entries {
		if t, ok := w.parseTicket(e.Name()); ok {
			highest = max(highest, t)
		}
	}
	return highest
}

// parseTicket extracts N from "<prefix>-N.wav".
func (w *Writer) parseTicket(name string) (uint64, bool) {
	rest, ok := strings.CutPrefix(name, w.cfg.Prefix+"-")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, ".wav")
	if !ok {
		return 0, false
	}
	t, err := strconv.ParseUint(rest, 10, 64)
	return t, err == nil
}

// FileName is the name of the file for a ticket.
func (w *Writer) FileName(ticket uint64) string {
	return fmt.Sprintf("%s-%04d.wav", w.cfg.Prefix, ticket)
}

// Session is the handle of one recording being written.
type Session struct {
	done   chan struct{}
	ticket atomic.Uint64
	err    error
	rec    Recording
}

// Done is closed once the writer has stopped consuming chunks.
func (s *Session) Done() <-chan struct{} { return s.done }

// Ticket is the recording's number, or 0 while it waits for a pool slot.
func (s *Session) Ticket() uint64 { return s.ticket.Load() }

// Err is the write error. Valid after Done is closed.
func (s *Session) Err() error {
	<-s.done
	return s.err
}

// Recording is the finished recording. Valid after Done is closed and Err
// returned nil.
func (s *Session) Recording() Recording {
	<-s.done
	return s.rec
}

// Submit satisfies audio.SessionWriter.
func (w *Writer) Submit(rx <-chan audio.Samples, f audio.Format) (audio.WriteSession, error) {
	s, err := w.Record(rx, f)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Record starts a job that writes every chunk received on rx and finalises
// the file once rx is closed. The outcome is reported through the router.
func (w *Writer) Record(rx <-chan audio.Samples, f Format) (*Session, error) {
	if f.SampleRate <= 0 || f.Channels < 1 {
		return nil, fmt.Errorf("wave: invalid format %s", f)
	}
	if f.SampleFormat != audio.FormatInt16 && f.SampleFormat != audio.FormatFloat32 {
		return nil, fmt.Errorf("wave: unsupported sample format %s", f.SampleFormat)
	}

	s := &Session{done: make(chan struct{})}
	w.sessions.Add(1)
	job := router.Spawn("write recording", func() (router.Message, error) {
		defer w.sessions.Done()
		defer close(s.done)

		w.pool <- struct{}{}
		defer func() { <-w.pool }()

		ticket := w.ticket.Add(1)
		s.ticket.Store(ticket)
		rec, err := w.write(rx, f, ticket)
		s.rec, s.err = rec, err
		if err != nil {
			return router.Message{}, err
		}
		return router.Console("saved %s (%s)", rec.FileName, rec.Duration.Round(time.Millisecond)), nil
	})
	if err := w.router.Submit(job); err != nil {
		// The job still runs to completion; only its outcome goes unreported.
		w.log.Warnf("Recording outcome will not be reported: %v", err)
	}
	return s, nil
}

func (w *Writer) write(rx <-chan audio.Samples, f Format, ticket uint64) (Recording, error) {
	name := w.FileName(ticket)
	path := filepath.Join(w.cfg.Dir, name)

	w.setActive(path, true)
	defer w.setActive(path, false)

	file, err := createFile(path)
	if err != nil {
		return Recording{}, fmt.Errorf("create %s: %w", name, err)
	}
	closed := false
	defer func() {
		if !closed {
			file.Close()
		}
	}()

	bitDepth := f.SampleFormat.BitDepth()
	wavFormat := wavFormatPCM
	if f.SampleFormat == audio.FormatFloat32 {
		wavFormat = wavFormatFloat
	}
	enc := wav.NewEncoder(file, f.SampleRate, bitDepth, f.Channels, wavFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		SourceBitDepth: bitDepth,
	}
	// Writes the header so Close can patch the chunk sizes even when the
	// session produced no samples.
	if err := enc.Write(buf); err != nil {
		return Recording{}, fmt.Errorf("write %s header: %w", name, err)
	}

	var samples int64
	for chunk := range rx {
		buf.Data = appendEncoded(buf.Data[:0], chunk, f.SampleFormat)
		if err := enc.Write(buf); err != nil {
			// The partial file is left for the user to inspect.
			return Recording{}, fmt.Errorf("write %s: %w", name, err)
		}
		samples += int64(chunk.Len())
	}

	if err := enc.Close(); err != nil {
		return Recording{}, fmt.Errorf("finalize %s: %w", name, err)
	}
	closed = true
	if err := file.Close(); err != nil {
		return Recording{}, fmt.Errorf("close %s: %w", name, err)
	}

	frames := samples / int64(f.Channels)
	rec := Recording{
		Key:          name,
		Ticket:       ticket,
		FileName:     name,
		Path:         path,
		Duration:     time.Duration(frames) * time.Second / time.Duration(f.SampleRate),
		Size:         wavHeaderSize + samples*int64(bitDepth/8),
		SampleRate:   f.SampleRate,
		Channels:     f.Channels,
		SampleFormat: f.SampleFormat,
		CreatedAt:    time.Now(),
	}
	for _, old := range w.recordings.Insert(rec) {
		w.forget(old)
	}
	if err := w.catalog.Save(rec); err != nil {
		w.log.Warnf("Failed to catalog %s: %v", name, err)
	}
	return rec, nil
}

// appendEncoded converts a chunk into the integer representation the
// encoder writes for format. Float samples are carried as their IEEE bits.
func appendEncoded(dst []int, s audio.Samples, format audio.SampleFormat) []int {
	switch format {
	case audio.FormatFloat32:
		if fs, ok := s.(audio.Float32Samples); ok {
			for _, v := range fs {
				dst = append(dst, floatBits(v))
			}
			return dst
		}
		for _, v := range s.AppendFloat32(nil) {
			dst = append(dst, floatBits(v))
		}
	default:
		if is, ok := s.(audio.Int16Samples); ok {
			for _, v := range is {
				dst = append(dst, int(v))
			}
			return dst
		}
		for _, v := range s.AppendFloat32(nil) {
			dst = append(dst, quantize(float64(v), 16))
		}
	}
	return dst
}

func floatBits(v float32) int { return int(int32(math.Float32bits(v))) }

func bitsFloat(v int) float32 { return math.Float32frombits(uint32(int32(v))) }

// quantize maps v in [-1, 1] to a signed integer of the given width,
// rounding to nearest and clamping at full scale.
func quantize(v float64, bits int) int {
	if math.IsNaN(v) {
		return 0
	}
	scale := float64(int64(1) << (bits - 1))
	q := math.Round(v * scale)
	return int(min(max(q, -scale), scale-1))
}

func (w *Writer) setActive(path string, on bool) {
	w.activeMu.Lock()
	defer w.activeMu.Unlock()
	if on {
		w.active[path] = struct{}{}
	} else {
		delete(w.active, path)
	}
}

func (w *Writer) isActive(path string) bool {
	w.activeMu.Lock()
	defer w.activeMu.Unlock()
	_, ok := w.active[path]
	return ok
}

// forget drops an evicted recording from the catalog. The file stays on disk
// until the next clear.
func (w *Writer) forget(rec Recording) {
	if err := w.catalog.Delete(rec.Key); err != nil {
		w.log.Warnf("Failed to remove %s from the catalog: %v", rec.Key, err)
	}
}

// TryListCompleted appends the completed recordings, most recent first, to
// dst[:0] without blocking. It reports false if the index was busy.
func (w *Writer) TryListCompleted(dst []Recording) ([]Recording, bool) {
	return w.recordings.TryList(dst)
}

// ListCompleted returns the completed recordings, most recent first.
func (w *Writer) ListCompleted() []Recording {
	return w.recordings.List()
}

// Lookup returns the recording for key if its file still exists. A recording
// whose file has vanished is removed and reported as ErrNotFound.
func (w *Writer) Lookup(key string) (Recording, error) {
	rec, ok := w.recordings.Get(key)
	if !ok {
		return Recording{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if _, err := os.Stat(rec.Path); errors.Is(err, os.ErrNotExist) {
		w.recordings.Remove(key)
		w.forget(rec)
		return Recording{}, fmt.Errorf("%w: %s (file removed)", ErrNotFound, key)
	}
	return rec, nil
}

// Prune removes recordings whose files no longer exist and returns how many
// were removed.
func (w *Writer) Prune() int {
	n := 0
	for _, rec := range w.recordings.List() {
		if _, err := os.Stat(rec.Path); errors.Is(err, os.ErrNotExist) {
			if w.recordings.Remove(rec.Key) {
				w.forget(rec)
				n++
			}
		}
	}
	return n
}

// ClearCache starts a job that deletes every recording and any stray
// "<prefix>-*.wav" file left in the directory. Files still being written are
// skipped. It returns ErrClearInProgress while a previous clear runs.
func (w *Writer) ClearCache() (*router.Job, error) {
	if !w.clearing.CompareAndSwap(false, true) {
		return nil, ErrClearInProgress
	}
	job, err := w.router.Go("clear recordings", func() (router.Message, error) {
		defer w.clearing.Store(false)
		return w.clear()
	})
	if err != nil {
		w.clearing.Store(false)
		return nil, err
	}
	return job, nil
}

func (w *Writer) clear() (router.Message, error) {
	removed, failed := 0, 0
	remove := func(path string) {
		if w.isActive(path) {
			return
		}
		err := os.Remove(path)
		switch {
		case err == nil:
			removed++
		case !errors.Is(err, os.ErrNotExist):
			failed++
			w.log.Warnf("clear: %v", err)
		}
	}

	for _, rec := range w.recordings.Clear() {
		remove(rec.Path)
	}
	stray, err := filepath.Glob(filepath.Join(w.cfg.Dir, w.cfg.Prefix+"-*.wav"))
	if err != nil {
		w.log.Warnf("clear: %v", err)
	}
	for _, path := range stray {
		remove(path)
	}
	if err := w.catalog.Clear(); err != nil {
		w.log.Warnf("clear catalog: %v", err)
	}

	if failed > 0 {
		return router.Console("cleared %d recording files, %d could not be removed", removed, failed), nil
	}
	return router.Console("cleared %d recording files", removed), nil
}

// Wait blocks until every submitted session has finished writing.
func (w *Writer) Wait() {
	w.sessions.Wait()
}

type nopCatalog struct{}

func (nopCatalog) Save(Recording) error       { return nil }
func (nopCatalog) Delete(string) error        { return nil }
func (nopCatalog) Clear() error               { return nil }
func (nopCatalog) List() ([]Recording, error) { return nil, nil }
