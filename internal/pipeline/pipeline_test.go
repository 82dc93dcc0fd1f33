// SPDX-License-Identifier: MIT
package pipeline

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"scribe/internal/analysis"
	"scribe/internal/audio"
	"scribe/internal/config"
	"scribe/internal/router"
	"scribe/internal/wave"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Audio.Backend = "fake"
	cfg.Audio.FramesPerBuffer = 1024
	cfg.Recording.OutputDir = t.TempDir()
	cfg.Recording.CatalogPath = filepath.Join(cfg.Recording.OutputDir, "catalog.db")
	cfg.Visualizer.Visible = true
	return cfg
}

type outcomes struct {
	mu   sync.Mutex
	msgs []router.Outcome
}

func (o *outcomes) observe(out router.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, out)
}

func (o *outcomes) snapshot() []router.Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]router.Outcome(nil), o.msgs...)
}

func TestRecordThroughPipeline(t *testing.T) {
	cfg := testConfig(t)
	backend := &audio.FakeBackend{Frequency: 440, Chunks: 16}
	p, err := New(cfg, WithBackend(backend))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var got outcomes
	p.Router.SetObserver(router.KindConsole, got.observe)
	p.Router.SetObserver(router.KindError, got.observe)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(); !errors.Is(err, audio.ErrAlreadyRunning) {
		t.Errorf("second Start = %v", err)
	}
	p.Controller.Wait()
	p.Writer.Wait()

	recs := p.Writer.ListCompleted()
	if len(recs) != 1 {
		t.Fatalf("%d recordings, want 1", len(recs))
	}
	rec := recs[0]
	if rec.SampleFormat != audio.FormatFloat32 || rec.SampleRate != config.DefaultSampleRate {
		t.Errorf("recording %+v", rec)
	}
	d, err := wave.ReadFile(rec.Path)
	if err != nil {
		t.Fatal(err)
	}
	if want := 16 * cfg.Audio.FramesPerBuffer; len(d.Samples) != want {
		t.Errorf("recorded %d samples, want %d", len(d.Samples), want)
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.Visualizer.Processed() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if p.Visualizer.Processed() == 0 {
		t.Error("visualizer received no packets")
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	outs := got.snapshot()
	if len(outs) != 2 {
		t.Fatalf("outcomes %+v, want session and writer", outs)
	}
	for _, o := range outs {
		if o.Err != nil {
			t.Errorf("%s failed: %v", o.Job, o.Err)
		}
	}

	// The catalog brings the recording back.
	again, err := New(cfg, WithBackend(backend))
	if err != nil {
		t.Fatal(err)
	}
	defer again.Close()
	if n := len(again.Writer.ListCompleted()); n != 1 {
		t.Errorf("restored %d recordings, want 1", n)
	}
}

func TestToggleStopsRunningSession(t *testing.T) {
	cfg := testConfig(t)
	cfg.Recording.CatalogPath = ""
	p, err := New(cfg, WithBackend(&audio.FakeBackend{Interval: time.Millisecond}))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if err := p.Toggle(); err != nil {
		t.Fatal(err)
	}
	if !p.Controller.IsRunning() {
		t.Fatal("not running after Toggle")
	}
	time.Sleep(10 * time.Millisecond)
	if err := p.Toggle(); err != nil {
		t.Fatal(err)
	}
	p.Controller.Wait()
	p.Writer.Wait()
	if p.Controller.IsRunning() {
		t.Error("still running after second Toggle")
	}
	if n := len(p.Writer.ListCompleted()); n != 1 {
		t.Errorf("%d recordings, want 1", n)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Visualizer.Mode = "sparkle"
	if _, err := New(cfg); err == nil {
		t.Error("accepted an unknown mode")
	}
	cfg = testConfig(t)
	cfg.Audio.SampleFormat = "int8"
	if _, err := New(cfg); err == nil {
		t.Error("accepted an unknown sample format")
	}
}

func TestAnalysisConfig(t *testing.T) {
	vc := config.Default().Visualizer
	vc.Mode = "power"
	vc.WindowFunc = "Hamming"
	got, err := AnalysisConfig(vc)
	if err != nil {
		t.Fatal(err)
	}
	if got.Mode != analysis.ModePower || got.WindowFunc != analysis.Hamming || got.Buckets != config.DefaultBuckets {
		t.Errorf("AnalysisConfig = %+v", got)
	}
}

func TestBackendSelection(t *testing.T) {
	ac := config.Default().Audio
	if _, ok := Backend(ac).(audio.PortAudioBackend); !ok {
		t.Errorf("default backend is %T", Backend(ac))
	}
	ac.Backend = "fake"
	fb, ok := Backend(ac).(*audio.FakeBackend)
	if !ok {
		t.Fatalf("fake backend is %T", Backend(ac))
	}
	if want := 32 * time.Millisecond; fb.Interval != want { // 512 frames at 16 kHz.
		t.Errorf("fake interval %v, want %v", fb.Interval, want)
	}
}
