// Package ui renders progress for a running synthesis request.
package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/stopwatch"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/chunkvoice/tts"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
)

const (
	ellipsis     = "…"
	defaultWidth = 60
	meterWidth   = 12
)

// ErrCanceled is returned by Run when the user quits before the request
// finishes.
var ErrCanceled = errors.New("canceled")

// Messages the caller sends into a running program.
type (
	// ProgressMsg reports the chunk about to be synthesized.
	ProgressMsg tts.ChunkEvent
	// VolumeMsg reports the playback level.
	VolumeMsg tts.VolumeUpdate
	// DoneMsg ends the program with the request's result.
	DoneMsg struct {
		Result string
		Err    error
	}
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	engineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	counterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("247"))
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Italic(true)
	meterOn      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	meterOff     = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

// Model is the bubbletea model for one request.
type Model struct {
	cfg  Config
	work func() (string, error)

	spinner  spinner.Model
	progress progress.Model
	clock    stopwatch.Model

	chunk    tts.ChunkEvent
	chunks   int
	volume   float64
	width    int
	done     bool
	canceled bool
	result   string
	err      error
}

// NewModel creates a model that runs work when the program starts and quits
// when it returns. work may be nil if the caller sends DoneMsg itself.
func NewModel(cfg Config, work func() (string, error)) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = engineStyle

	return Model{
		cfg:      cfg,
		work:     work,
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(defaultWidth-8)),
		clock:    stopwatch.NewWithInterval(time.Second),
		width:    defaultWidth,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.clock.Init()}
	if m.work != nil {
		work := m.work
		cmds = append(cmds, func() tea.Msg {
			result, err := work()
			return DoneMsg{Result: result, Err: err}
		})
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if !m.done {
				m.canceled = true
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if m.cfg.MaxWidth > 0 && m.width > m.cfg.MaxWidth {
			m.width = m.cfg.MaxWidth
		}
		m.progress.Width = max(m.width-8, 10)

	case ProgressMsg:
		m.chunk = tts.ChunkEvent(msg)
		m.chunks = msg.Index

	case VolumeMsg:
		m.volume = min(max(msg.Volume, 0), 1)

	case DoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		if msg.Err == nil {
			m.chunks = m.chunk.Total
		}
		m.volume = 0
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	default:
		var cmd tea.Cmd
		m.clock, cmd = m.clock.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(truncate.StringWithTail(m.header(), uint(m.width), ellipsis))
	b.WriteString("\n\n  ")
	b.WriteString(m.progress.ViewAs(m.percent()))
	b.WriteString("\n")

	if m.cfg.Mode != tts.ModeFile {
		b.WriteString("  " + m.meter() + "\n")
	}

	if !m.cfg.HideText && m.chunk.Text != "" && !m.done {
		wrapped := wordwrap.String(m.chunk.Text, max(m.width-4, 10))
		b.WriteString("\n")
		for _, line := range strings.Split(wrapped, "\n") {
			b.WriteString("  " + textStyle.Render(line) + "\n")
		}
	}

	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString("  " + errorStyle.Render("✗ "+tts.MessageOf(m.err)) + "\n")
	case m.done:
		b.WriteString("  " + okStyle.Render("✓ "+m.result) + "\n")
	default:
		b.WriteString("  " + helpStyle.Render("q quit") + "\n")
	}
	return b.String()
}

func (m Model) header() string {
	icon := m.spinner.View()
	switch {
	case m.err != nil:
		icon = errorStyle.Render("✗")
	case m.done:
		icon = okStyle.Render("✓")
	}

	verb := "Speaking"
	if m.cfg.Mode == tts.ModeFile {
		verb = "Rendering"
	}
	s := fmt.Sprintf("%s %s", icon, headerStyle.Render(verb))
	if m.cfg.Engine != "" {
		s += " with " + engineStyle.Render(m.cfg.Engine)
	}
	if m.chunk.Total > 0 {
		s += counterStyle.Render(fmt.Sprintf("  chunk %d/%d", m.chunk.Index+1, m.chunk.Total))
	}
	return s + counterStyle.Render("  "+m.clock.View())
}

func (m Model) percent() float64 {
	if m.chunk.Total == 0 {
		return 0
	}
	return float64(m.chunks) / float64(m.chunk.Total)
}

func (m Model) meter() string {
	on := int(m.volume*meterWidth + 0.5)
	return meterOn.Render(strings.Repeat("▮", on)) + meterOff.Render(strings.Repeat("▯", meterWidth-on))
}

// Result returns the request's outcome once the program has exited.
func (m Model) Result() (string, error) {
	if m.canceled {
		return "", ErrCanceled
	}
	return m.result, m.err
}

// Run shows the model on out until work finishes or the user quits. bind is
// called with the program's Send before it starts so the caller can forward
// progress and volume events.
func Run(ctx context.Context, out io.Writer, cfg Config, work func() (string, error), bind func(send func(tea.Msg))) (string, error) {
	p := tea.NewProgram(NewModel(cfg, work), tea.WithContext(ctx), tea.WithOutput(out))
	if bind != nil {
		bind(p.Send)
	}

	final, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("run ui: %w", err)
	}
	return final.(Model).Result()
}
