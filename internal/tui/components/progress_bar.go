package components

import (
	"fmt"
	"strings"

	"github.com/opencode-ai/promptchain/internal/tui/styles"
)

const defaultBarWidth = 30

// ProgressBar renders "label [████░░░░] done/total".
type ProgressBar struct {
	Label string
	Done  int
	Total int
	Width int
}

// Ratio returns the completed fraction clamped to [0, 1]. A zero total is 0.
func (p ProgressBar) Ratio() float64 {
	if p.Total <= 0 || p.Done <= 0 {
		return 0
	}
	if p.Done >= p.Total {
		return 1
	}
	return float64(p.Done) / float64(p.Total)
}

// Render draws the bar. An idle bar (0/0) shows an empty track and "--".
func (p ProgressBar) Render(styleSet styles.Styles) string {
	width := p.Width
	if width <= 0 {
		width = defaultBarWidth
	}
	filled := int(p.Ratio() * float64(width))

	bar := styleSet.BarFill.Render(strings.Repeat("█", filled)) +
		styleSet.BarTrack.Render(strings.Repeat("░", width-filled))

	count := "--"
	if p.Total > 0 {
		count = fmt.Sprintf("%d/%d", p.Done, p.Total)
	}
	return fmt.Sprintf("%s [%s] %s", styleSet.Text.Render(p.Label), bar, styleSet.Muted.Render(count))
}
