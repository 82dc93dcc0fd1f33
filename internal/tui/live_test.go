// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"scribe/internal/analysis"
	"scribe/internal/audio"
	"scribe/internal/config"
	"scribe/internal/pipeline"
	"scribe/internal/router"
)

func newTestPipeline(t *testing.T, backend audio.Backend) *pipeline.Pipeline {
	t.Helper()
	cfg := config.Default()
	cfg.Recording.OutputDir = t.TempDir()
	cfg.Recording.CatalogPath = ""
	p, err := pipeline.New(cfg, pipeline.WithBackend(backend))
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestLiveModelModeKeys(t *testing.T) {
	p := newTestPipeline(t, &audio.FakeBackend{Chunks: 1})
	m := NewLiveModel(p)

	m.Update(runes("3"))
	if got := p.Visualizer.Mode(); got != analysis.Modes[2] {
		t.Errorf("mode after '3' = %v, want %v", got, analysis.Modes[2])
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	want := analysis.Modes[2].Next(analysis.Clockwise)
	if got := p.Visualizer.Mode(); got != want || m.mode != want {
		t.Errorf("mode after → = %v (model %v), want %v", got, m.mode, want)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	if got := p.Visualizer.Mode(); got != analysis.Modes[2] {
		t.Errorf("mode after ← = %v, want %v", got, analysis.Modes[2])
	}
}

func TestLiveModelVisibility(t *testing.T) {
	p := newTestPipeline(t, &audio.FakeBackend{Chunks: 1})
	p.Visualizer.SetVisible(false)
	m := NewLiveModel(p)

	m.Init()
	if !p.Visualizer.Visible() {
		t.Error("visualizer hidden after Init")
	}

	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatal("quit key returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("quit key did not quit")
	}
	if p.Visualizer.Visible() {
		t.Error("visualizer still visible after quit")
	}
}

func TestLiveModelRecordToggle(t *testing.T) {
	p := newTestPipeline(t, &audio.FakeBackend{Interval: time.Millisecond})
	m := NewLiveModel(p)

	m.Update(runes("r"))
	if !p.Controller.IsRunning() {
		t.Fatal("r did not start a session")
	}
	m.Update(tickMsg(time.Now()))
	if !m.running {
		t.Error("refresh missed the running session")
	}

	m.Update(runes("r"))
	p.Controller.Wait()
	p.Writer.Wait()
	if p.Controller.IsRunning() {
		t.Error("r did not stop the session")
	}

	m.Update(tickMsg(time.Now()))
	if len(m.recordings) != 1 {
		t.Errorf("%d recordings listed, want 1", len(m.recordings))
	}
	if !strings.Contains(m.View(), "recording-0001.wav") {
		t.Error("view does not list the recording")
	}
}

func TestLiveModelOutcomes(t *testing.T) {
	p := newTestPipeline(t, &audio.FakeBackend{Chunks: 1})
	m := NewLiveModel(p)

	m.Update(outcomeMsg(router.Outcome{Job: "clear", Message: router.Console("cleared 2 recording files")}))
	if m.failed || !strings.Contains(m.View(), "cleared 2 recording files") {
		t.Errorf("console outcome not shown: %q", m.message)
	}

	m.Update(outcomeMsg(router.Outcome{Job: "export", Err: errors.New("disk full")}))
	if !m.failed || m.message != "export: disk full" {
		t.Errorf("error outcome = %q (failed %v)", m.message, m.failed)
	}
}

func TestLiveModelForwardsRouterOutcomes(t *testing.T) {
	p := newTestPipeline(t, &audio.FakeBackend{Chunks: 1})
	m := NewLiveModel(p)

	job, err := p.Router.Go("greet", func() (router.Message, error) {
		return router.Console("hello"), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	job.Wait()

	select {
	case o := <-m.outcomes:
		if o.Message.Text != "hello" {
			t.Errorf("forwarded %+v", o)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("outcome not forwarded")
	}
}

func TestRenderBars(t *testing.T) {
	tests := []struct {
		name    string
		buckets []float32
		height  int
		want    string
	}{
		{"empty", []float32{0, 0}, 1, "  \n"},
		{"full", []float32{1, 1}, 2, "██\n██\n"},
		{"half", []float32{0.5}, 2, " \n█\n"},
		{"partial", []float32{0.25}, 1, "▂\n"},
		{"clamped", []float32{-1, 3}, 1, " █\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renderBars(tt.buckets, tt.height); got != tt.want {
				t.Errorf("renderBars = %q, want %q", got, tt.want)
			}
		})
	}
}
