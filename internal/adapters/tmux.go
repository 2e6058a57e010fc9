package adapters

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/promptchain/internal/agent"
	"github.com/opencode-ai/promptchain/internal/logging"
	"github.com/opencode-ai/promptchain/internal/state"
	"github.com/opencode-ai/promptchain/internal/tmux"
)

var defaultTmuxPrompt = regexp.MustCompile(`(?i)(waiting for input|[>$%❯])\s*$`)

// TmuxAgent drives an agent CLI that is already running in a tmux pane.
type TmuxAgent struct {
	client *tmux.Client
	target string
	prompt *regexp.Regexp
	logger zerolog.Logger

	// PollInterval is how often the pane is captured while waiting.
	PollInterval time.Duration
	// StableFor is how long the pane must stay unchanged before a reply is read.
	StableFor time.Duration
	// History is the scrollback captured along with the visible pane.
	History int
	// ResetCommand is typed to start a new conversation. Empty disables it.
	ResetCommand string

	mu sync.Mutex
}

// NewTmuxAgent creates an agent for opts.TmuxPane. A nil executor runs tmux locally.
func NewTmuxAgent(opts Options, exec tmux.Executor) (*TmuxAgent, error) {
	if strings.TrimSpace(opts.TmuxPane) == "" {
		return nil, errors.New("tmux pane is required")
	}
	prompt := defaultTmuxPrompt
	if opts.PromptRegex != "" {
		re, err := regexp.Compile(opts.PromptRegex)
		if err != nil {
			return nil, fmt.Errorf("invalid prompt regex: %w", err)
		}
		prompt = re
	}
	return &TmuxAgent{
		client:       tmux.NewClient(exec),
		target:       opts.TmuxPane,
		prompt:       prompt,
		logger:       logging.Component("tmux-agent"),
		PollInterval: 500 * time.Millisecond,
		StableFor:    2 * time.Second,
		History:      2000,
		ResetCommand: "/clear",
	}, nil
}

func (a *TmuxAgent) Ask(ctx context.Context, text string) (*agent.Reply, error) {
	return a.AskWith(ctx, text, agent.AskOptions{Expect: agent.ExpectText})
}

func (a *TmuxAgent) AskWith(ctx context.Context, text string, opts agent.AskOptions) (*agent.Reply, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	baseline, err := a.client.CapturePane(ctx, a.target, a.History)
	if err != nil {
		return nil, err
	}
	sent := strings.ReplaceAll(text, "\n", " ")
	if err := a.client.SendKeys(ctx, a.target, sent, true); err != nil {
		return nil, err
	}

	screen, err := a.waitForReply(ctx, baseline)
	if err != nil {
		return nil, err
	}

	reply := extractReply(baseline, screen, sent, a.prompt)
	if signal := state.ParseTranscript(reply); signal != nil {
		if signal.Blocking() {
			return nil, fmt.Errorf("agent blocked: %s", signal)
		}
		a.logger.Warn().Str("pane", a.target).Str("signal", string(signal.Kind)).Msg(signal.Reason)
	}
	if reply == "" {
		return nil, agent.ErrNoReply
	}
	return agent.Shape(reply, opts), nil
}

func (a *TmuxAgent) StartNewConversation(ctx context.Context) (bool, error) {
	if a.ResetCommand == "" {
		return false, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	baseline, err := a.client.CapturePane(ctx, a.target, a.History)
	if err != nil {
		return false, err
	}
	if err := a.client.SendKeys(ctx, a.target, a.ResetCommand, true); err != nil {
		return false, err
	}
	if _, err := a.waitForReply(ctx, baseline); err != nil {
		return false, err
	}
	return true, nil
}

// waitForReply polls until the pane changed, stopped changing and ends in a prompt.
func (a *TmuxAgent) waitForReply(ctx context.Context, baseline string) (string, error) {
	ticker := time.NewTicker(a.PollInterval)
	defer ticker.Stop()

	var last string
	var stableSince time.Time
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		screen, err := a.client.CapturePane(ctx, a.target, a.History)
		if err != nil {
			return "", err
		}
		if screen == baseline {
			continue
		}
		if screen != last {
			last = screen
			stableSince = time.Now()
			continue
		}
		if time.Since(stableSince) < a.StableFor {
			continue
		}
		if a.prompt.MatchString(strings.TrimRight(screen, "\n ")) {
			return screen, nil
		}
	}
}

// extractReply returns the text printed after the sent line, minus the
// trailing prompt.
func extractReply(baseline, screen, sent string, prompt *regexp.Regexp) string {
	screen = state.StripANSI(screen)
	lines := strings.Split(screen, "\n")

	baseLines := strings.Split(state.StripANSI(baseline), "\n")
	start := commonPrefixLines(baseLines, lines)
	needle := strings.TrimSpace(sent)
	if len(needle) > 60 {
		needle = needle[len(needle)-60:]
	}
	if needle != "" {
		for i := start; i < len(lines); i++ {
			if strings.Contains(lines[i], needle) {
				start = i + 1
				break
			}
		}
	}
	if start > len(lines) {
		start = len(lines)
	}
	body := lines[start:]

	for len(body) > 0 {
		last := strings.TrimSpace(body[len(body)-1])
		if last == "" || prompt.FindString(last) == last {
			body = body[:len(body)-1]
			continue
		}
		break
	}
	return strings.TrimSpace(strings.Join(body, "\n"))
}

func commonPrefixLines(a, b []string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
