package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestModel(t *testing.T) {
	model := NewModel()

	model.StartCrawl("friend", 4)
	model.ResolveUser("1", 10)
	model.ResolveUser("2", 0)
	model.FailUser("3", errors.New("protected"))

	done, total, _ := model.Stats()
	if done != 3 || total != 4 {
		t.Errorf("Expected 3/4, got %d/%d", done, total)
	}
	if model.neighbours != 10 {
		t.Errorf("Expected 10 neighbours, got %d", model.neighbours)
	}
	if f := model.Fraction(); f != 0.75 {
		t.Errorf("Expected fraction 0.75, got %f", f)
	}

	recent := model.Recent()
	if len(recent) != 3 || recent[2].State != UserErrored {
		t.Errorf("Expected the error user last, got %+v", recent)
	}

	model.SetWaiting("rate limited", time.Minute)
	if model.waitReason == "" {
		t.Error("Expected a wait reason")
	}
	model.ResolveUser("4", 1)
	if model.waitReason != "" {
		t.Error("Expected the wait to clear once a user resolves")
	}

	model.SaveCheckpoint("friend_3")
	if model.checkpoints != 1 || model.lastCheckpoint != "friend_3" {
		t.Errorf("Unexpected checkpoint state %d %s", model.checkpoints, model.lastCheckpoint)
	}
}

func TestRecentIsBounded(t *testing.T) {
	model := NewModel()
	model.StartCrawl("follower", 100)
	for i := 0; i < 30; i++ {
		model.ResolveUser("u", 1)
	}
	if got := len(model.Recent()); got != model.maxRecent {
		t.Errorf("Expected %d recent users, got %d", model.maxRecent, got)
	}
}

func TestUpdateMessages(t *testing.T) {
	model := NewModel()

	model.Update(CrawlStartMsg{Direction: "follower", Total: 2})
	model.Update(UserResolvedMsg{ID: "1", Neighbours: 3})
	model.Update(UserErroredMsg{ID: "2", Error: errors.New("suspended")})
	model.Update(CheckpointMsg{Name: "follower_0"})
	model.Update(CrawlDoneMsg{Summary: "follower crawl finished"})

	if !model.finished {
		t.Error("Expected the crawl to be finished")
	}
	if len(model.logMessages) != 4 {
		t.Errorf("Expected 4 log messages, got %d", len(model.logMessages))
	}

	model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	if view := model.View(); view == "Initializing..." {
		t.Error("Expected a rendered view after a resize")
	}
}

func TestQuitKey(t *testing.T) {
	model := NewModel()
	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("Expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{-time.Second, "00:00"},
		{75 * time.Second, "01:15"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
	}

	for _, test := range tests {
		if result := formatDuration(test.d); result != test.expected {
			t.Errorf("formatDuration(%s) = %s, expected %s", test.d, result, test.expected)
		}
	}
}
