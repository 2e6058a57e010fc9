// Package components holds the widgets drawn by the batch view.
package components

import (
	"strings"

	"github.com/opencode-ai/promptchain/internal/tui/styles"
)

// Notice is a placeholder drawn where a panel has nothing to show yet.
type Notice struct {
	Glyph    string
	Headline string
	Detail   string
	Hints    []Hint
}

// Hint pairs a promptchain command line with what it does.
type Hint struct {
	Command string
	Purpose string
}

// Block draws the notice over several lines, hints last.
func (n Notice) Block(set styles.Styles) string {
	var b strings.Builder
	b.WriteString(set.Muted.Render(n.head("  ")))
	if n.Detail != "" {
		b.WriteString("\n" + set.Muted.Render(n.Detail))
	}
	if len(n.Hints) == 0 {
		return b.String()
	}
	b.WriteString("\n\n" + set.Text.Render("Try:"))
	for _, h := range n.Hints {
		b.WriteString("\n  " + set.Accent.Render(h.Command))
		if h.Purpose != "" {
			b.WriteString(set.Muted.Render("  # " + h.Purpose))
		}
	}
	return b.String()
}

// Inline draws the notice on one line with at most the first hint.
func (n Notice) Inline(set styles.Styles) string {
	line := n.head(" ")
	if len(n.Hints) > 0 {
		line += " (Try: " + n.Hints[0].Command + ")"
	}
	return set.Muted.Render(line)
}

func (n Notice) head(sep string) string {
	if n.Glyph == "" {
		return n.Headline
	}
	return n.Glyph + sep + n.Headline
}

// QueueEmptyNotice explains that the chain will run once with no item.
func QueueEmptyNotice() Notice {
	return Notice{
		Glyph:    "📭",
		Headline: "Queue is empty",
		Detail:   "The chain runs once without an item.",
		Hints: []Hint{
			{Command: "promptchain queue add <queue> <item>", Purpose: "queue items for the next run"},
			{Command: "promptchain run <chain> --items '[...]'", Purpose: "run over inline items"},
		},
	}
}

// LockWaitNotice is drawn until the controller reports the batch started.
func LockWaitNotice() Notice {
	return Notice{Glyph: "⏳", Headline: "Waiting for the run lock", Detail: "The batch starts once the lock is acquired."}
}

// NoItemsNotice fills the item log before the first item completes.
func NoItemsNotice() Notice {
	return Notice{Headline: "No items finished yet"}
}
