package tui

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/opencode-ai/promptchain/internal/batch"
	"github.com/opencode-ai/promptchain/internal/models"
	"github.com/opencode-ai/promptchain/internal/steps"
	"github.com/opencode-ai/promptchain/internal/tui/components"
)

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	updated, ok := next.(model)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return updated
}

func TestViewWaitsForStart(t *testing.T) {
	m := newModel(Config{Title: "greet"})
	view := m.View()
	if !strings.Contains(view, "promptchain · greet") {
		t.Fatalf("expected title, got:\n%s", view)
	}
	if !strings.Contains(view, "Waiting for the run lock") {
		t.Fatalf("expected waiting state, got:\n%s", view)
	}
}

func TestProgressAndItems(t *testing.T) {
	m := newModel(Config{Title: "greet"})
	m = update(t, m, StartedMsg{Info: batch.StartInfo{Chain: "greet", Mode: batch.ModeAutoRemove, QueueSize: 3}})
	m = update(t, m, ProgressMsg{Done: 1, Total: 3})
	m = update(t, m, SubProgressMsg{Done: 2, Total: 5})
	m = update(t, m, ItemFinishedMsg{Outcome: batch.ItemOutcome{Index: 1, Item: "alpha", Duration: time.Second}})
	m = update(t, m, ItemFinishedMsg{Outcome: batch.ItemOutcome{Index: 2, Item: map[string]any{"k": "v"}, Err: errors.New("agent timeout")}})

	view := m.View()
	for _, want := range []string{"(auto-remove)", "1/3", "2/5", "item 2 of 3", "alpha", "agent timeout", "c cancel"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected %q in view:\n%s", want, view)
		}
	}
	if len(m.log.Entries) != 2 || m.log.Entries[1].Preview != `{"k":"v"}` {
		t.Fatalf("unexpected log entries: %+v", m.log.Entries)
	}
}

func TestInterruptedItemShownAsCancelled(t *testing.T) {
	m := newModel(Config{})
	m = update(t, m, ItemFinishedMsg{Outcome: batch.ItemOutcome{Index: 1, Item: "alpha", Err: fmt.Errorf("%w after step %q", steps.ErrCancelled, "s1")}})
	m = update(t, m, ItemFinishedMsg{Outcome: batch.ItemOutcome{Index: 2, Item: "beta", Err: errors.New("boom")}})

	if got := m.log.Entries[0]; got.Status != components.ItemCancelled || got.Err != "" {
		t.Fatalf("expected cancelled entry without error text, got %+v", got)
	}
	if got := m.log.Entries[1]; got.Status != components.ItemFailed || got.Err != "boom" {
		t.Fatalf("expected failed entry, got %+v", got)
	}
}

func TestEmptyQueueNotice(t *testing.T) {
	m := newModel(Config{})
	m = update(t, m, StartedMsg{Info: batch.StartInfo{QueueSize: 0}})
	if !strings.Contains(m.View(), "Queue is empty") {
		t.Fatalf("expected empty queue notice:\n%s", m.View())
	}
}

func TestCancelKeyCallsCancelOnce(t *testing.T) {
	calls := 0
	m := newModel(Config{Cancel: func() { calls++ }})
	m = update(t, m, StartedMsg{Info: batch.StartInfo{QueueSize: 2}})
	m = update(t, m, ProgressMsg{Done: 0, Total: 2})

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	if calls != 1 {
		t.Fatalf("expected one cancel call, got %d", calls)
	}
	if !strings.Contains(m.View(), "stopping after this item") {
		t.Fatalf("expected stopping notice:\n%s", m.View())
	}
}

func TestQuitCancelsRunningBatch(t *testing.T) {
	calls := 0
	m := newModel(Config{Cancel: func() { calls++ }})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
	if calls != 1 {
		t.Fatalf("expected cancel on quit, got %d", calls)
	}
}

func TestQuitAfterDoneDoesNotCancel(t *testing.T) {
	calls := 0
	m := newModel(Config{Cancel: func() { calls++ }})
	m = update(t, m, RunDoneMsg{Summary: &batch.Summary{Processed: 2}})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if calls != 0 {
		t.Fatalf("expected no cancel after the batch finished, got %d", calls)
	}
}

func TestSummaryLines(t *testing.T) {
	cases := []struct {
		name string
		msg  RunDoneMsg
		want string
	}{
		{"success", RunDoneMsg{Summary: &batch.Summary{Processed: 3}}, "Batch finished: 3 processed"},
		{"failures", RunDoneMsg{Summary: &batch.Summary{Processed: 3, Failures: []batch.ItemFailure{{Index: 2}}}}, "3 processed, 1 failed"},
		{"cancelled", RunDoneMsg{Summary: &batch.Summary{Processed: 1, Cancelled: true}}, "Batch cancelled"},
		{"refused", RunDoneMsg{Summary: &batch.Summary{LockRefused: true, Holder: &models.LockRecord{OwnerID: "other"}}, Err: batch.ErrLockHeld}, "held by other"},
		{"error", RunDoneMsg{Err: errors.New("boom")}, "Batch failed: boom"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := update(t, newModel(Config{}), tc.msg)
			if view := m.View(); !strings.Contains(view, tc.want) {
				t.Fatalf("expected %q in view:\n%s", tc.want, view)
			}
		})
	}
}

func TestSmallTerminal(t *testing.T) {
	m := update(t, newModel(Config{}), tea.WindowSizeMsg{Width: 40, Height: 10})
	if !strings.Contains(m.View(), "Terminal too small") {
		t.Fatalf("expected small terminal warning:\n%s", m.View())
	}
}

type captureSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (c *captureSender) Send(msg tea.Msg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func TestObserverForwardsCallbacks(t *testing.T) {
	sender := &captureSender{}
	obs := NewObserver(sender)

	obs.Started(batch.StartInfo{Chain: "c"})
	obs.Progress(1, 2)
	obs.SubProgress(0, 0)
	obs.ItemFinished(batch.ItemOutcome{Index: 1})
	obs.Finished(&batch.Summary{Processed: 1})

	if len(sender.msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(sender.msgs))
	}
	if got, ok := sender.msgs[1].(ProgressMsg); !ok || got.Done != 1 || got.Total != 2 {
		t.Fatalf("unexpected progress message %#v", sender.msgs[1])
	}
	if _, ok := sender.msgs[4].(FinishedMsg); !ok {
		t.Fatalf("unexpected finished message %#v", sender.msgs[4])
	}
}
