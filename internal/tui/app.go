// Package tui implements the batch progress view shown by "run --tui".
package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/opencode-ai/promptchain/internal/batch"
	"github.com/opencode-ai/promptchain/internal/models"
	"github.com/opencode-ai/promptchain/internal/steps"
	"github.com/opencode-ai/promptchain/internal/tui/components"
	"github.com/opencode-ai/promptchain/internal/tui/styles"
)

// Config configures the progress view.
type Config struct {
	// Title is shown in the header, usually the chain name.
	Title string

	// Theme names a palette from styles.Themes.
	Theme string

	// Cancel asks the running batch to stop after the current step.
	Cancel func()

	// LogHeight is the number of item lines shown at once.
	LogHeight int
}

// RunFunc runs the batch, reporting to observer.
type RunFunc func(observer batch.Observer) (*batch.Summary, error)

// Run shows the progress view while run executes on another goroutine.
// Quitting the view cancels the batch and waits for it to finish.
func Run(cfg Config, run RunFunc) (*batch.Summary, error) {
	program := tea.NewProgram(newModel(cfg), tea.WithAltScreen())

	var (
		summary *batch.Summary
		runErr  error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		summary, runErr = run(NewObserver(program))
		program.Send(RunDoneMsg{Summary: summary, Err: runErr})
	}()

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		if cfg.Cancel != nil {
			cfg.Cancel()
		}
		<-done
		return summary, fmt.Errorf("progress view: %w", err)
	}

	select {
	case <-done:
	default:
		if cfg.Cancel != nil {
			cfg.Cancel()
		}
		<-done
	}
	return summary, runErr
}

type model struct {
	width  int
	height int
	styles styles.Styles
	cfg    Config

	info      *batch.StartInfo
	progress  components.ProgressBar
	sub       components.ProgressBar
	log       *components.ItemLog
	summary   *batch.Summary
	runErr    error
	done      bool
	cancelled bool

	startedAt time.Time
	now       time.Time
}

const (
	minWidth  = 60
	minHeight = 15
)

func newModel(cfg Config) model {
	now := time.Now()
	return model{
		styles:    styles.BuildStyles(styles.ThemeByName(cfg.Theme)),
		cfg:       cfg,
		progress:  components.ProgressBar{Label: "Items"},
		sub:       components.ProgressBar{Label: "Sub  "},
		log:       components.NewItemLog(cfg.LogHeight),
		startedAt: now,
		now:       now,
	}
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "c":
			m.requestCancel()
		case "up", "k":
			m.log.ScrollUp(1)
		case "down", "j":
			m.log.ScrollDown(1)
		case "end", "G":
			m.log.ScrollToBottom()
		case "q", "esc", "ctrl+c":
			if !m.done {
				m.requestCancel()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.now = time.Time(msg)
		if m.done {
			return m, nil
		}
		return m, tickCmd()
	case StartedMsg:
		info := msg.Info
		m.info = &info
	case ProgressMsg:
		m.progress.Done = msg.Done
		m.progress.Total = msg.Total
	case SubProgressMsg:
		m.sub.Done = msg.Done
		m.sub.Total = msg.Total
	case ItemFinishedMsg:
		m.log.Add(itemEntry(msg.Outcome))
	case FinishedMsg:
		m.summary = msg.Summary
	case RunDoneMsg:
		m.done = true
		m.runErr = msg.Err
		if msg.Summary != nil {
			m.summary = msg.Summary
		}
	}
	return m, nil
}

func (m *model) requestCancel() {
	if m.cancelled || m.done {
		return
	}
	m.cancelled = true
	if m.cfg.Cancel != nil {
		m.cfg.Cancel()
	}
}

func itemEntry(outcome batch.ItemOutcome) components.ItemEntry {
	entry := components.ItemEntry{
		Index:    outcome.Index,
		Preview:  components.Preview(models.Stringify(outcome.Item)),
		Status:   components.ItemSucceeded,
		Duration: outcome.Duration,
	}
	switch {
	case errors.Is(outcome.Err, steps.ErrCancelled):
		entry.Status = components.ItemCancelled
	case outcome.Err != nil:
		entry.Status = components.ItemFailed
		entry.Err = outcome.Err.Error()
	}
	return entry
}

func (m model) View() string {
	if m.width > 0 && m.height > 0 {
		if m.width < minWidth || m.height < minHeight {
			return fmt.Sprintf("%s\n", joinLines(m.smallViewLines()))
		}
	}

	lines := []string{m.styles.Title.Render(m.title()), ""}

	switch {
	case m.info == nil && !m.done:
		lines = append(lines, components.LockWaitNotice().Block(m.styles))
	default:
		if m.info != nil && m.info.QueueSize == 0 {
			lines = append(lines, components.QueueEmptyNotice().Inline(m.styles), "")
		}
		lines = append(lines, m.progress.Render(m.styles), m.sub.Render(m.styles))
		if line := m.currentLine(); line != "" {
			lines = append(lines, "", line)
		}
		lines = append(lines, "", m.styles.Accent.Render("Finished items"), m.log.Render(m.styles))
	}

	if m.done {
		lines = append(lines, "", m.summaryLine())
	}

	lines = append(lines, "", m.styles.Muted.Render(fmt.Sprintf("Elapsed: %s", m.elapsed())))
	lines = append(lines, "", m.styles.Muted.Render(m.shortcutLine()))
	return fmt.Sprintf("%s\n", joinLines(lines))
}

func (m model) title() string {
	title := "promptchain"
	if m.cfg.Title != "" {
		title += " · " + m.cfg.Title
	}
	if m.info != nil && m.info.Mode != "" {
		title += fmt.Sprintf(" (%s)", m.info.Mode)
	}
	return title
}

func (m model) currentLine() string {
	if m.done || m.progress.Total == 0 || m.progress.Done >= m.progress.Total {
		return ""
	}
	line := fmt.Sprintf("%s  item %d of %d",
		components.RenderItemBadge(m.styles, components.ItemRunning),
		m.progress.Done+1, m.progress.Total)
	if m.cancelled {
		line += m.styles.Warning.Render("  (stopping after this item)")
	}
	return line
}

func (m model) summaryLine() string {
	s := m.summary
	switch {
	case s != nil && s.LockRefused:
		holder := "another instance"
		if s.Holder != nil && s.Holder.OwnerID != "" {
			holder = s.Holder.OwnerID
		}
		return m.styles.Warning.Render(fmt.Sprintf("Run lock held by %s; batch not started.", holder))
	case m.runErr != nil:
		return m.styles.Error.Render(fmt.Sprintf("Batch failed: %v", m.runErr))
	case s == nil:
		return m.styles.Muted.Render("Batch finished.")
	}

	parts := []string{fmt.Sprintf("%d processed", s.Processed)}
	if s.Failed() > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", s.Failed()))
	}
	if s.Cancelled {
		return components.RenderItemBadge(m.styles, components.ItemCancelled) + "  " +
			m.styles.Text.Render("Batch cancelled: "+strings.Join(parts, ", "))
	}
	if s.Failed() > 0 {
		return components.RenderItemBadge(m.styles, components.ItemFailed) + "  " +
			m.styles.Text.Render("Batch finished: "+strings.Join(parts, ", "))
	}
	return components.RenderItemBadge(m.styles, components.ItemSucceeded) + "  " +
		m.styles.Text.Render("Batch finished: "+strings.Join(parts, ", "))
}

func (m model) shortcutLine() string {
	if m.done {
		return "Shortcuts: q quit | ↑/↓ scroll"
	}
	return "Shortcuts: c cancel | q quit | ↑/↓ scroll"
}

func (m model) elapsed() time.Duration {
	if m.summary != nil && m.summary.Duration > 0 {
		return m.summary.Duration.Round(time.Second)
	}
	if m.now.Before(m.startedAt) {
		return 0
	}
	return m.now.Sub(m.startedAt).Round(time.Second)
}

func (m model) smallViewLines() []string {
	message := fmt.Sprintf("Terminal too small (%dx%d).", m.width, m.height)
	hint := fmt.Sprintf("Resize to at least %dx%d.", minWidth, minHeight)

	return []string{
		m.styles.Warning.Render(message),
		m.styles.Muted.Render(hint),
		m.styles.Muted.Render(fmt.Sprintf("Items %d/%d. Press q to quit.", m.progress.Done, m.progress.Total)),
	}
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
