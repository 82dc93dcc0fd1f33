// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"scribe/internal/analysis"
	"scribe/internal/pipeline"
	"scribe/internal/progress"
	"scribe/internal/router"
	"scribe/internal/wave"
)

const (
	refreshInterval = 33 * time.Millisecond
	barHeight       = 12
	recentShown     = 5
	messageQueue    = 16
)

var (
	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	recStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D7D7D"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
	sectionStyle = lipgloss.NewStyle().Bold(true).MarginTop(1)

	// Eighth-block glyphs for partially filled bar cells.
	barGlyphs = []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
)

type liveKeys struct {
	Record key.Binding
	Left   key.Binding
	Right  key.Binding
	Mode   key.Binding
	Clear  key.Binding
	Quit   key.Binding
}

func (k liveKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Record, k.Left, k.Right, k.Mode, k.Clear, k.Quit}
}

func (k liveKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultLiveKeys = liveKeys{
	Record: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "record/stop")),
	Left:   key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "prev mode")),
	Right:  key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "next mode")),
	Mode:   key.NewBinding(key.WithKeys("1", "2", "3", "4"), key.WithHelp("1-4", "mode")),
	Clear:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear recordings")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type tickMsg time.Time

// outcomeMsg is a router outcome forwarded to the UI.
type outcomeMsg router.Outcome

// LiveModel is the live visualizer and recording screen. Every read of
// shared state is non-blocking; on contention the previous frame is shown.
type LiveModel struct {
	p        *pipeline.Pipeline
	keys     liveKeys
	help     help.Model
	outcomes chan router.Outcome

	buckets    []float32
	mode       analysis.Mode
	running    bool
	jobs       []progress.Entry
	recordings []wave.Recording
	message    string
	failed     bool
}

// NewLiveModel builds the screen and registers it as the router's console
// and error observer.
func NewLiveModel(p *pipeline.Pipeline) *LiveModel {
	m := &LiveModel{
		p:        p,
		keys:     defaultLiveKeys,
		help:     help.New(),
		outcomes: make(chan router.Outcome, messageQueue),
		buckets:  make([]float32, p.Visualizer.Buckets()),
		mode:     p.Visualizer.Mode(),
	}
	forward := func(o router.Outcome) {
		select {
		case m.outcomes <- o:
		default: // The UI is behind; the log still has it.
		}
	}
	p.Router.SetObserver(router.KindConsole, forward)
	p.Router.SetObserver(router.KindError, forward)
	return m
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *LiveModel) waitForOutcome() tea.Cmd {
	return func() tea.Msg {
		o, ok := <-m.outcomes
		if !ok {
			return nil
		}
		return outcomeMsg(o)
	}
}

func (m *LiveModel) Init() tea.Cmd {
	m.p.Visualizer.SetVisible(true)
	return tea.Batch(tick(), m.waitForOutcome())
}

func (m *LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case tickMsg:
		m.refresh()
		return m, tick()

	case outcomeMsg:
		m.setOutcome(router.Outcome(msg))
		return m, m.waitForOutcome()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.p.Visualizer.SetVisible(false)
			return m, tea.Quit
		case key.Matches(msg, m.keys.Record):
			if err := m.p.Toggle(); err != nil {
				m.setOutcome(router.Outcome{Job: "capture", Err: err})
			}
		case key.Matches(msg, m.keys.Left):
			m.mode = m.p.Visualizer.Rotate(analysis.CounterClockwise)
		case key.Matches(msg, m.keys.Right):
			m.mode = m.p.Visualizer.Rotate(analysis.Clockwise)
		case key.Matches(msg, m.keys.Mode):
			mode := analysis.Modes[msg.String()[0]-'1']
			m.p.Visualizer.SetMode(mode)
			m.mode = mode
		case key.Matches(msg, m.keys.Clear):
			if _, err := m.p.Writer.ClearCache(); err != nil {
				m.setOutcome(router.Outcome{Job: "clear recordings", Err: err})
			}
		}
	}
	return m, nil
}

// refresh copies the latest shared state without waiting on any lock.
func (m *LiveModel) refresh() {
	m.p.Visualizer.TryRead(m.buckets)
	m.mode = m.p.Visualizer.Mode()
	m.running = m.p.Controller.IsRunning()
	if jobs, ok := m.p.Progress.TrySnapshot(m.jobs); ok {
		m.jobs = jobs
	}
	if recs, ok := m.p.Writer.TryListCompleted(m.recordings); ok {
		m.recordings = recs
	}
}

func (m *LiveModel) setOutcome(o router.Outcome) {
	if o.Err != nil {
		m.message = fmt.Sprintf("%s: %v", o.Job, o.Err)
		m.failed = true
		return
	}
	m.message = o.Message.Text
	m.failed = false
}

func (m *LiveModel) View() string {
	var sb strings.Builder

	status := dimStyle.Render("idle")
	if m.running {
		status = recStyle.Render("● REC")
	}
	sb.WriteString(titleStyle.Render("Scribe"))
	sb.WriteString(fmt.Sprintf("  %s  mode: %s\n\n", status, highlightStyle.Render(m.mode.String())))

	sb.WriteString(barStyle.Render(renderBars(m.buckets, barHeight)))
	sb.WriteString("\n")

	if len(m.jobs) > 0 {
		sb.WriteString(sectionStyle.Render("In progress"))
		sb.WriteString("\n")
		for _, j := range m.jobs {
			line := "  " + j.Label
			if j.Total > 0 {
				line += fmt.Sprintf(" %d/%d", j.Done, j.Total)
			}
			sb.WriteString(line + "\n")
		}
	}

	sb.WriteString(sectionStyle.Render("Recent recordings"))
	sb.WriteString("\n")
	if len(m.recordings) == 0 {
		sb.WriteString(dimStyle.Render("  none") + "\n")
	}
	for i, rec := range m.recordings {
		if i == recentShown {
			sb.WriteString(dimStyle.Render(fmt.Sprintf("  … %d more", len(m.recordings)-recentShown)) + "\n")
			break
		}
		sb.WriteString(fmt.Sprintf("  %s  %s  %s\n", rec.FileName,
			rec.Duration.Round(100*time.Millisecond), humanize.IBytes(uint64(rec.Size))))
	}

	if m.message != "" {
		sb.WriteString("\n")
		if m.failed {
			sb.WriteString(errorStyle.Render(m.message))
		} else {
			sb.WriteString(infoStyle.Render(m.message))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

// renderBars draws one column per bucket, height rows tall.
func renderBars(buckets []float32, height int) string {
	var sb strings.Builder
	for row := height - 1; row >= 0; row-- {
		for _, v := range buckets {
			eighths := int(min(max(v, 0), 1)*float32(height*8) + 0.5)
			fill := min(max(eighths-row*8, 0), 8)
			sb.WriteRune(barGlyphs[fill])
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// RunLive runs the live screen until the user quits.
func RunLive(p *pipeline.Pipeline) error {
	_, err := tea.NewProgram(NewLiveModel(p), tea.WithAltScreen()).Run()
	return err
}
