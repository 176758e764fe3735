package tui

import (
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// UserState is the outcome of one crawled user
type UserState int

const (
	UserResolved UserState = iota
	UserErrored
)

// UserItem is one entry in the recent users panel
type UserItem struct {
	ID         string
	State      UserState
	Neighbours int
	Error      error
	At         time.Time
}

// Model is the crawl dashboard state
type Model struct {
	// UI components
	spinner spinner.Model
	bar     progress.Model

	// Crawl state
	direction   string
	total       int
	resolved    int
	errored     int
	neighbours  int
	recent      []UserItem
	maxRecent   int
	finished    bool
	summaryLine string

	// Back-off state
	waitReason string
	waitUntil  time.Time

	// Checkpoints
	checkpoints    int
	lastCheckpoint string

	sessionStartTime time.Time

	// UI state
	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int

	mu sync.RWMutex
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// NewModel creates the dashboard model
func NewModel() Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	return Model{
		spinner:          s,
		bar:              bar,
		maxRecent:        12,
		sessionStartTime: time.Now(),
		logMessages:      []LogMessage{},
		maxLogMessages:   50,
	}
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// StartCrawl resets counters for a new crawl
func (m *Model) StartCrawl(direction string, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.direction = direction
	m.total = total
	m.resolved = 0
	m.errored = 0
	m.neighbours = 0
	m.recent = nil
	m.finished = false
	m.sessionStartTime = time.Now()
}

// ResolveUser records a resolved user
func (m *Model) ResolveUser(id string, neighbours int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resolved++
	m.neighbours += neighbours
	m.waitReason = ""
	m.pushRecent(UserItem{ID: id, State: UserResolved, Neighbours: neighbours, At: time.Now()})
}

// FailUser records an error user
func (m *Model) FailUser(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errored++
	m.waitReason = ""
	m.pushRecent(UserItem{ID: id, State: UserErrored, Error: err, At: time.Now()})
}

func (m *Model) pushRecent(item UserItem) {
	m.recent = append(m.recent, item)
	if len(m.recent) > m.maxRecent {
		m.recent = m.recent[len(m.recent)-m.maxRecent:]
	}
}

// SetWaiting records a back-off in progress
func (m *Model) SetWaiting(reason string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.waitReason = reason
	m.waitUntil = time.Now().Add(d)
}

// SaveCheckpoint records a checkpoint save
func (m *Model) SaveCheckpoint(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkpoints++
	m.lastCheckpoint = name
}

// Finish marks the crawl done
func (m *Model) Finish(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.finished = true
	m.summaryLine = line
	m.waitReason = ""
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	color := dimWhite
	switch level {
	case "ERROR":
		color = lipgloss.Color("#FF0000")
	case "WARN":
		color = neonOrange
	case "SUCCESS":
		color = neonGreen
	case "INFO":
		color = neonCyan
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	// Keep only the last N messages
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// Recent returns a copy of the recent users, oldest first
func (m *Model) Recent() []UserItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]UserItem, len(m.recent))
	copy(out, m.recent)
	return out
}

// Stats returns done/total counts and an ETA
func (m *Model) Stats() (done, total int, eta time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statsLocked()
}

func (m *Model) statsLocked() (done, total int, eta time.Duration) {
	done = m.resolved + m.errored
	total = m.total
	if done > 0 && total > done {
		perUser := time.Since(m.sessionStartTime) / time.Duration(done)
		eta = perUser * time.Duration(total-done)
	}
	return done, total, eta
}

// Fraction returns the completed share of the crawl
func (m *Model) Fraction() float64 {
	done, total, _ := m.Stats()
	if total == 0 {
		return 0
	}
	f := float64(done) / float64(total)
	if f > 1 {
		f = 1
	}
	return f
}
