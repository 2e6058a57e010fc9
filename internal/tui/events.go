package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/opencode-ai/promptchain/internal/batch"
)

// StartedMsg wraps batch.Observer.Started.
type StartedMsg struct {
	Info batch.StartInfo
}

// ProgressMsg carries outer (item) progress.
type ProgressMsg struct {
	Done  int
	Total int
}

// SubProgressMsg carries template step sub-item progress.
type SubProgressMsg struct {
	Done  int
	Total int
}

// ItemFinishedMsg wraps batch.Observer.ItemFinished.
type ItemFinishedMsg struct {
	Outcome batch.ItemOutcome
}

// FinishedMsg wraps batch.Observer.Finished.
type FinishedMsg struct {
	Summary *batch.Summary
}

// RunDoneMsg is sent when the batch function returns.
type RunDoneMsg struct {
	Summary *batch.Summary
	Err     error
}

// Sender delivers messages to a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// programObserver bridges batch callbacks to the TUI.
type programObserver struct {
	program Sender
}

// NewObserver returns a batch.Observer that forwards every callback to program.
func NewObserver(program Sender) batch.Observer {
	return &programObserver{program: program}
}

func (o *programObserver) Started(info batch.StartInfo) {
	o.program.Send(StartedMsg{Info: info})
}

func (o *programObserver) Progress(done, total int) {
	o.program.Send(ProgressMsg{Done: done, Total: total})
}

func (o *programObserver) SubProgress(done, total int) {
	o.program.Send(SubProgressMsg{Done: done, Total: total})
}

func (o *programObserver) ItemFinished(outcome batch.ItemOutcome) {
	o.program.Send(ItemFinishedMsg{Outcome: outcome})
}

func (o *programObserver) Finished(summary *batch.Summary) {
	o.program.Send(FinishedMsg{Summary: summary})
}
