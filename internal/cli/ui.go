package cli

import (
	"os"

	"golang.org/x/term"

	"github.com/opencode-ai/promptchain/internal/batch"
	"github.com/opencode-ai/promptchain/internal/tui"
)

// runWithProgressView runs the batch under the progress TUI.
func runWithProgressView(title string, session *batch.Session, run tui.RunFunc) (*batch.Summary, error) {
	if IsNonInteractive() {
		return nil, &PreflightError{
			Message:  "--tui requires an interactive terminal",
			Hint:     "Run with a TTY, or drop --tui for line-based progress",
			NextStep: "promptchain run <chain>",
		}
	}
	return tui.Run(tui.Config{
		Title:  title,
		Theme:  os.Getenv("PROMPTCHAIN_THEME"),
		Cancel: session.Cancel,
	}, run)
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
