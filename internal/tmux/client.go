// Package tmux drives tmux panes for agents that run in a terminal.
package tmux

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Executor runs tmux commands.
type Executor interface {
	Exec(ctx context.Context, cmd string) (stdout, stderr []byte, err error)
}

// Client wraps tmux command helpers.
type Client struct {
	exec Executor
}

// NewClient creates a new tmux client.
func NewClient(exec Executor) *Client {
	if exec == nil {
		exec = LocalExecutor{}
	}
	return &Client{exec: exec}
}

// Session describes a tmux session.
type Session struct {
	Name        string
	WindowCount int
}

// ListSessions returns all known tmux sessions.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	stdout, stderr, err := c.exec.Exec(ctx, "tmux list-sessions -F '#{session_name}|#{session_windows}'")
	if err != nil {
		if isNoServerRunning(stderr) {
			return []Session{}, nil
		}
		return nil, fmt.Errorf("tmux list-sessions failed: %w", err)
	}

	output := strings.TrimSpace(string(stdout))
	if output == "" {
		return []Session{}, nil
	}

	lines := strings.Split(output, "\n")
	sessions := make([]Session, 0, len(lines))
	for _, line := range lines {
		name, count, ok := strings.Cut(line, "|")
		if !ok {
			return nil, fmt.Errorf("unexpected tmux output line: %q", line)
		}
		windows, err := strconv.Atoi(strings.TrimSpace(count))
		if err != nil {
			return nil, fmt.Errorf("invalid window count in tmux output: %q", line)
		}
		sessions = append(sessions, Session{Name: strings.TrimSpace(name), WindowCount: windows})
	}
	return sessions, nil
}

// HasSession reports whether the session owning target exists.
func (c *Client) HasSession(ctx context.Context, target string) (bool, error) {
	session, _, _ := strings.Cut(target, ":")
	sessions, err := c.ListSessions(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range sessions {
		if s.Name == session {
			return true, nil
		}
	}
	return false, nil
}

// SendKeys types text literally into target and optionally presses Enter.
func (c *Client) SendKeys(ctx context.Context, target, text string, enter bool) error {
	if text != "" {
		cmd := fmt.Sprintf("tmux send-keys -t %s -l %s", Quote(target), Quote(text))
		if _, stderr, err := c.exec.Exec(ctx, cmd); err != nil {
			return fmt.Errorf("tmux send-keys failed: %w: %s", err, strings.TrimSpace(string(stderr)))
		}
	}
	if enter {
		cmd := fmt.Sprintf("tmux send-keys -t %s Enter", Quote(target))
		if _, stderr, err := c.exec.Exec(ctx, cmd); err != nil {
			return fmt.Errorf("tmux send-keys failed: %w: %s", err, strings.TrimSpace(string(stderr)))
		}
	}
	return nil
}

// CapturePane returns the visible content of target plus up to history lines
// of scrollback.
func (c *Client) CapturePane(ctx context.Context, target string, history int) (string, error) {
	cmd := fmt.Sprintf("tmux capture-pane -p -J -t %s", Quote(target))
	if history > 0 {
		cmd += fmt.Sprintf(" -S -%d", history)
	}
	stdout, stderr, err := c.exec.Exec(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("tmux capture-pane failed: %w: %s", err, strings.TrimSpace(string(stderr)))
	}
	return string(stdout), nil
}

// Quote single-quotes s for the shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isNoServerRunning(stderr []byte) bool {
	return strings.Contains(strings.ToLower(string(stderr)), "no server running")
}
