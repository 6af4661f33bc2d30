package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dgnsrekt/chunkvoice/tts"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestSpeakProgress(t *testing.T) {
	m := NewModel(Config{Engine: "mock", Mode: tts.ModePlay}, nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = update(t, m, ProgressMsg{RequestID: "r", Index: 1, Total: 4, Text: "hello there."})

	view := m.View()
	for _, want := range []string{"Speaking", "mock", "chunk 2/4", "hello there.", "q quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if got := m.percent(); got != 0.25 {
		t.Errorf("percent = %v, want 0.25", got)
	}
}

func TestSpeakVolumeMeter(t *testing.T) {
	m := NewModel(Config{Mode: tts.ModePlay}, nil)

	m, _ = update(t, m, VolumeMsg{Volume: 0.5})
	if on := strings.Count(m.meter(), "▮"); on != meterWidth/2 {
		t.Errorf("meter lit %d cells, want %d", on, meterWidth/2)
	}

	m, _ = update(t, m, VolumeMsg{Volume: 3})
	if on := strings.Count(m.meter(), "▮"); on != meterWidth {
		t.Errorf("clamped meter lit %d cells, want %d", on, meterWidth)
	}

	file := NewModel(Config{Mode: tts.ModeFile}, nil)
	if strings.Contains(file.View(), "▯") {
		t.Error("file mode should not show a volume meter")
	}
}

func TestSpeakDone(t *testing.T) {
	m := NewModel(Config{Mode: tts.ModeFile}, nil)
	m, _ = update(t, m, ProgressMsg{Index: 2, Total: 3, Text: "last."})

	m, cmd := update(t, m, DoneMsg{Result: "/tmp/out.wav"})
	if !isQuit(cmd) {
		t.Error("DoneMsg should quit")
	}
	if got := m.percent(); got != 1 {
		t.Errorf("percent = %v, want 1", got)
	}
	if !strings.Contains(m.View(), "/tmp/out.wav") {
		t.Errorf("view missing result:\n%s", m.View())
	}
	if res, err := m.Result(); err != nil || res != "/tmp/out.wav" {
		t.Errorf("Result() = %q, %v", res, err)
	}
}

func TestSpeakError(t *testing.T) {
	m := NewModel(Config{}, nil)
	m, _ = update(t, m, DoneMsg{Err: tts.ErrNotInitialized})

	if !strings.Contains(m.View(), tts.MessageOf(tts.ErrNotInitialized)) {
		t.Errorf("view missing error:\n%s", m.View())
	}
	if _, err := m.Result(); !errors.Is(err, tts.ErrNotInitialized) {
		t.Errorf("Result() error = %v", err)
	}
}

func TestSpeakCancel(t *testing.T) {
	m := NewModel(Config{}, nil)
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !isQuit(cmd) {
		t.Error("q should quit")
	}
	if _, err := m.Result(); !errors.Is(err, ErrCanceled) {
		t.Errorf("Result() error = %v, want ErrCanceled", err)
	}
}

func TestSpeakRunsWork(t *testing.T) {
	m := NewModel(Config{}, func() (string, error) { return "done", nil })
	if m.Init() == nil {
		t.Fatal("Init returned no command")
	}
}
