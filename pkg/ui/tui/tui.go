package tui

import (
	"fmt"
	"time"

	"followgraph/pkg/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// TUI is the full-screen crawl dashboard. It implements ui.Reporter.
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a new TUI instance
func NewTUI() *TUI {
	model := NewModel()
	program := tea.NewProgram(&model, tea.WithAltScreen())

	return &TUI{
		program: program,
		model:   &model,
	}
}

// Start runs the TUI until the user quits or Stop is called
func (t *TUI) Start() error {
	go func() {
		time.Sleep(100 * time.Millisecond)
		t.program.Send(TickMsg(time.Now()))
	}()

	_, err := t.program.Run()
	return err
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

// StartCrawl implements ui.Reporter
func (t *TUI) StartCrawl(direction string, total int) {
	t.Send(CrawlStartMsg{Direction: direction, Total: total})
}

// UserResolved implements ui.Reporter
func (t *TUI) UserResolved(id string, neighbours int) {
	t.Send(UserResolvedMsg{ID: id, Neighbours: neighbours})
}

// UserErrored implements ui.Reporter
func (t *TUI) UserErrored(id string, err error) {
	t.Send(UserErroredMsg{ID: id, Error: err})
}

// Waiting implements ui.Reporter
func (t *TUI) Waiting(reason string, d time.Duration) {
	t.Send(WaitingMsg{Reason: reason, Duration: d})
}

// CheckpointSaved implements ui.Reporter
func (t *TUI) CheckpointSaved(name string) {
	t.Send(CheckpointMsg{Name: name})
}

// FinishCrawl implements ui.Reporter
func (t *TUI) FinishCrawl(s ui.CrawlSummary) {
	line := fmt.Sprintf("%s crawl finished: %d resolved, %d errors", s.Direction, s.Resolved, s.Errored)
	if s.Err != nil {
		line = fmt.Sprintf("%s crawl stopped: %v (%d left)", s.Direction, s.Err, s.Remaining)
	}
	t.Send(CrawlDoneMsg{Summary: line})
}

// LogInfo logs an info message
func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Send(LogMsg{Level: "INFO", Message: fmt.Sprintf(format, args...)})
}

// LogError logs an error message
func (t *TUI) LogError(format string, args ...interface{}) {
	t.Send(LogMsg{Level: "ERROR", Message: fmt.Sprintf(format, args...)})
}

var _ ui.Reporter = (*TUI)(nil)
