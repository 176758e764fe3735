package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Message types for the TUI

// CrawlStartMsg is sent when a crawl begins
type CrawlStartMsg struct {
	Direction string
	Total     int
}

// UserResolvedMsg is sent for every resolved user
type UserResolvedMsg struct {
	ID         string
	Neighbours int
}

// UserErroredMsg is sent for every error user
type UserErroredMsg struct {
	ID    string
	Error error
}

// WaitingMsg is sent when the crawler backs off
type WaitingMsg struct {
	Reason   string
	Duration time.Duration
}

// CheckpointMsg is sent after each checkpoint save
type CheckpointMsg struct {
	Name string
}

// CrawlDoneMsg is sent when the crawl ends
type CrawlDoneMsg struct {
	Summary string
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		return m, tea.Batch(
			tickCmd(),
			m.spinner.Tick,
		)

	case CrawlStartMsg:
		m.StartCrawl(msg.Direction, msg.Total)
		m.AddLogMessage("INFO", fmt.Sprintf("Crawling %s lists of %d users", msg.Direction, msg.Total))
		return m, nil

	case UserResolvedMsg:
		m.ResolveUser(msg.ID, msg.Neighbours)
		return m, nil

	case UserErroredMsg:
		m.FailUser(msg.ID, msg.Error)
		m.AddLogMessage("WARN", "Error user "+msg.ID+": "+errorText(msg.Error))
		return m, nil

	case WaitingMsg:
		m.SetWaiting(msg.Reason, msg.Duration)
		m.AddLogMessage("WARN", fmt.Sprintf("%s, waiting %s", msg.Reason, formatDuration(msg.Duration)))
		return m, nil

	case CheckpointMsg:
		m.SaveCheckpoint(msg.Name)
		m.AddLogMessage("SUCCESS", "Checkpoint saved: "+msg.Name)
		return m, nil

	case CrawlDoneMsg:
		m.Finish(msg.Summary)
		m.AddLogMessage("SUCCESS", msg.Summary)
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.mu.Lock()
		m.logMessages = []LogMessage{}
		m.mu.Unlock()
		return m, nil
	}

	return m, nil
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// tickCmd returns a command that sends a tick message
func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
