// Package styles maps theme tokens to lipgloss styles.
package styles

import "github.com/charmbracelet/lipgloss"

// Styles contains lipgloss styles derived from theme tokens.
type Styles struct {
	Theme   Theme
	Title   lipgloss.Style
	Text    lipgloss.Style
	Muted   lipgloss.Style
	Accent  lipgloss.Style
	Border  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style

	// BarFill and BarTrack draw the done and pending parts of a progress bar.
	BarFill  lipgloss.Style
	BarTrack lipgloss.Style

	ItemRunning   lipgloss.Style
	ItemSucceeded lipgloss.Style
	ItemFailed    lipgloss.Style
	ItemCancelled lipgloss.Style
}

// DefaultStyles builds styles from the default theme.
func DefaultStyles() Styles {
	return BuildStyles(DefaultTheme)
}

// BuildStyles converts theme tokens into lipgloss styles.
func BuildStyles(theme Theme) Styles {
	tokens := theme.Tokens
	color := func(value string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(value))
	}

	return Styles{
		Theme:         theme,
		Title:         color(tokens.Text).Bold(true),
		Text:          color(tokens.Text),
		Muted:         color(tokens.TextMuted),
		Accent:        color(tokens.Accent),
		Border:        color(tokens.Border),
		Success:       color(tokens.Success),
		Warning:       color(tokens.Warning),
		Error:         color(tokens.Error),
		Info:          color(tokens.Info),
		BarFill:       color(tokens.BarFill),
		BarTrack:      color(tokens.BarTrack),
		ItemRunning:   color(tokens.Info).Bold(true),
		ItemSucceeded: color(tokens.Success),
		ItemFailed:    color(tokens.Error).Bold(true),
		ItemCancelled: color(tokens.Warning),
	}
}
