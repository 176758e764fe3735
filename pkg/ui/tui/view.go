package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// View renders the entire TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())

	leftColumn := m.renderLeftColumn()
	rightColumn := m.renderRightColumn()

	mainContent := lipgloss.JoinHorizontal(
		lipgloss.Top,
		leftColumn,
		"  ",
		rightColumn,
	)
	sections = append(sections, mainContent)

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderHeader() string {
	m.mu.RLock()
	direction := m.direction
	finished := m.finished
	m.mu.RUnlock()

	status := m.spinner.View() + " crawling"
	if finished {
		status = successStyle.Render("done")
	}
	title := fmt.Sprintf("followgraph • %s lists • %s", direction, status)
	return logoStyle.Width(m.width).Render(title)
}

func (m *Model) renderLeftColumn() string {
	width := (m.width - 4) / 2
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(width),
		m.renderRecentPanel(width),
	)
}

func (m *Model) renderRightColumn() string {
	width := (m.width - 4) / 2
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderWaitPanel(width),
		m.renderLogsPanel(width),
	)
}

// renderStatsPanel renders the counters and the overall progress bar
func (m *Model) renderStatsPanel(width int) string {
	fraction := m.Fraction()

	m.mu.RLock()
	defer m.mu.RUnlock()

	title := titleStyle.Render(" CRAWL ")
	done, total, eta := m.statsLocked()
	elapsed := time.Since(m.sessionStartTime)

	bar := m.bar
	bar.Width = width - 8
	stats := []string{
		bar.ViewAs(fraction),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Users:"), statsValueStyle.Render(fmt.Sprintf("%d/%d", done, total))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Resolved:"), successStyle.Render(fmt.Sprintf("%d", m.resolved))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.errored))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Edges seen:"), statsValueStyle.Render(fmt.Sprintf("%d", m.neighbours))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Elapsed:"), statsValueStyle.Render(formatDuration(elapsed))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("ETA:"), statsValueStyle.Render(formatDuration(eta))),
	}
	if m.checkpoints > 0 {
		stats = append(stats, fmt.Sprintf("%s %s", statsLabelStyle.Render("Checkpoint:"),
			statsValueStyle.Render(fmt.Sprintf("%s (#%d)", m.lastCheckpoint, m.checkpoints))))
	}
	if m.finished && m.summaryLine != "" {
		stats = append(stats, successStyle.Render(m.summaryLine))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, stats...)),
	)
}

// renderRecentPanel lists the most recent users, newest first
func (m *Model) renderRecentPanel(width int) string {
	title := titleStyle.Render(" RECENT USERS ")
	recent := m.Recent()

	if len(recent) == 0 {
		content := lipgloss.NewStyle().Foreground(dimWhite).Render("No users crawled yet")
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	var items []string
	for i := len(recent) - 1; i >= 0; i-- {
		u := recent[i]
		if u.State == UserResolved {
			items = append(items, userResolvedStyle.Render(fmt.Sprintf("✓ %s (%d)", u.ID, u.Neighbours)))
		} else {
			items = append(items, userErroredStyle.Render(fmt.Sprintf("✗ %s %s", u.ID, truncate(errorText(u.Error), width-30))))
		}
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...)),
	)
}

// renderWaitPanel shows the current back-off, if any
func (m *Model) renderWaitPanel(width int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	title := titleStyle.Render(" RATE LIMIT ")

	remaining := time.Until(m.waitUntil)
	if m.waitReason == "" || remaining <= 0 {
		content := rateLimitNormalStyle.Render("Credentials available")
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	content := []string{
		warningStyle.Render(truncate(m.waitReason, width-8)),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Resume in:"), statsValueStyle.Render(formatDuration(remaining))),
	}
	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(content, "\n")),
	)
}

// renderLogsPanel renders the logs panel
func (m *Model) renderLogsPanel(width int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	title := titleStyle.Render(" LOG ")

	start := len(m.logMessages) - 10
	if start < 0 {
		start = 0
	}

	var logs []string
	for i := start; i < len(m.logMessages); i++ {
		log := m.logMessages[i]
		timestamp := logTimestampStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))
		message := logMessageStyle.Render(truncate(log.Message, width-25))
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, message))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = lipgloss.NewStyle().Foreground(dimWhite).Render("No logs yet...")
	}

	logsHeight := m.height - 30
	if logsHeight < 5 {
		logsHeight = 5
	}

	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

// renderHelp renders the help panel
func (m *Model) renderHelp() string {
	help := `
  Keys:
    q/Q      - Stop the crawl (a checkpoint is saved)
    ctrl+l   - Clear the log
    ?        - Toggle this help

  Users:
    ` + successStyle.Render("✓") + `        - Resolved, neighbour count in brackets
    ` + errorStyle.Render("✗") + `        - Recorded as an error user
`
	return panelStyle.Width(m.width).Render(help)
}

func truncate(s string, n int) string {
	if n < 4 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// formatDuration formats a duration as [hh:]mm:ss
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
