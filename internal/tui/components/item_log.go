package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/opencode-ai/promptchain/internal/tui/styles"
)

const maxPreview = 48

// ItemEntry is one line of the item log.
type ItemEntry struct {
	Index    int
	Preview  string
	Status   ItemStatus
	Duration time.Duration
	Err      string
}

// ItemLog is a scrollable list of finished items, newest last.
type ItemLog struct {
	Entries      []ItemEntry
	ScrollOffset int
	Height       int
	follow       bool
}

// NewItemLog creates a log that follows new entries.
func NewItemLog(height int) *ItemLog {
	if height <= 0 {
		height = 8
	}
	return &ItemLog{Height: height, follow: true}
}

// Add appends an entry and keeps the newest visible unless the user scrolled up.
func (l *ItemLog) Add(entry ItemEntry) {
	l.Entries = append(l.Entries, entry)
	if l.follow {
		l.ScrollToBottom()
	}
}

// ScrollUp scrolls the view up by n lines.
func (l *ItemLog) ScrollUp(n int) {
	l.ScrollOffset -= n
	l.clampScroll()
	l.follow = l.atBottom()
}

// ScrollDown scrolls the view down by n lines.
func (l *ItemLog) ScrollDown(n int) {
	l.ScrollOffset += n
	l.clampScroll()
	l.follow = l.atBottom()
}

// ScrollToBottom shows the newest entries.
func (l *ItemLog) ScrollToBottom() {
	l.ScrollOffset = l.maxOffset()
	l.follow = true
}

// Visible returns the entries in view.
func (l *ItemLog) Visible() []ItemEntry {
	end := l.ScrollOffset + l.Height
	if end > len(l.Entries) {
		end = len(l.Entries)
	}
	return l.Entries[l.ScrollOffset:end]
}

// Render draws the visible entries.
func (l *ItemLog) Render(styleSet styles.Styles) string {
	if len(l.Entries) == 0 {
		return NoItemsNotice().Inline(styleSet)
	}

	lines := make([]string, 0, l.Height+1)
	for _, entry := range l.Visible() {
		line := fmt.Sprintf("%s  #%d  %s  %s",
			RenderItemBadge(styleSet, entry.Status),
			entry.Index,
			styleSet.Text.Render(entry.Preview),
			styleSet.Muted.Render(entry.Duration.Round(time.Millisecond).String()),
		)
		if entry.Err != "" {
			line += "  " + styleSet.Error.Render(entry.Err)
		}
		lines = append(lines, line)
	}
	if hidden := len(l.Entries) - len(l.Visible()); hidden > 0 {
		lines = append(lines, styleSet.Muted.Render(fmt.Sprintf("(%d more, use ↑/↓ to scroll)", hidden)))
	}
	return strings.Join(lines, "\n")
}

// Preview shortens item text to a single log-friendly line.
func Preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return "(no item)"
	}
	runes := []rune(text)
	if len(runes) > maxPreview {
		return string(runes[:maxPreview-1]) + "…"
	}
	return text
}

func (l *ItemLog) maxOffset() int {
	offset := len(l.Entries) - l.Height
	if offset < 0 {
		return 0
	}
	return offset
}

func (l *ItemLog) atBottom() bool {
	return l.ScrollOffset >= l.maxOffset()
}

func (l *ItemLog) clampScroll() {
	if l.ScrollOffset > l.maxOffset() {
		l.ScrollOffset = l.maxOffset()
	}
	if l.ScrollOffset < 0 {
		l.ScrollOffset = 0
	}
}
