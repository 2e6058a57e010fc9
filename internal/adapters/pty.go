package adapters

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/opencode-ai/promptchain/internal/agent"
	"github.com/opencode-ai/promptchain/internal/agent/runner"
)

// PTYAgent runs an agent CLI under a pseudo terminal. A new conversation
// restarts the process.
type PTYAgent struct {
	command []string
	prompt  *regexp.Regexp

	mu     sync.Mutex
	runner *runner.Runner
}

// NewPTYAgent validates opts. The process starts on first use.
func NewPTYAgent(opts Options) (*PTYAgent, error) {
	if len(opts.Command) == 0 || strings.TrimSpace(opts.Command[0]) == "" {
		return nil, runner.ErrMissingCommand
	}
	a := &PTYAgent{command: opts.Command}
	if opts.PromptRegex != "" {
		re, err := regexp.Compile(opts.PromptRegex)
		if err != nil {
			return nil, fmt.Errorf("invalid prompt regex: %w", err)
		}
		a.prompt = re
	}
	return a, nil
}

func (a *PTYAgent) Ask(ctx context.Context, text string) (*agent.Reply, error) {
	return a.AskWith(ctx, text, agent.AskOptions{Expect: agent.ExpectText})
}

func (a *PTYAgent) AskWith(ctx context.Context, text string, opts agent.AskOptions) (*agent.Reply, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ensureStarted(ctx); err != nil {
		return nil, err
	}
	out, err := a.runner.Send(ctx, text)
	if err != nil {
		if errors.Is(err, runner.ErrExited) {
			a.runner = nil
		}
		return nil, err
	}
	if out == "" {
		return nil, agent.ErrNoReply
	}
	return agent.Shape(out, opts), nil
}

func (a *PTYAgent) StartNewConversation(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.runner != nil {
		if err := a.runner.Stop(); err != nil {
			return false, fmt.Errorf("stop agent: %w", err)
		}
		a.runner = nil
	}
	if err := a.ensureStarted(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Close stops the agent process.
func (a *PTYAgent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runner == nil {
		return nil
	}
	err := a.runner.Stop()
	a.runner = nil
	return err
}

func (a *PTYAgent) ensureStarted(ctx context.Context) error {
	if a.runner != nil {
		return nil
	}
	r := &runner.Runner{Command: a.command, PromptRegex: a.prompt}
	if err := r.Start(ctx); err != nil {
		return err
	}
	a.runner = r
	return nil
}
