// Package runner drives an agent CLI under a pseudo terminal and exchanges
// one prompt at a time with it.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/promptchain/internal/logging"
	"github.com/opencode-ai/promptchain/internal/state"
)

var (
	// ErrMissingCommand indicates no command was provided to run.
	ErrMissingCommand = errors.New("command is required")
	// ErrNotStarted indicates Send was called before Start.
	ErrNotStarted = errors.New("runner has not started")
	// ErrExited indicates the agent process exited while a reply was pending.
	ErrExited = errors.New("agent process exited")
)

var (
	defaultTailLines   = 200
	defaultSettleDelay = 500 * time.Millisecond
	defaultPromptRegex = regexp.MustCompile(`(?i)(\bready\b|\bidle\b|waiting for input|[>$%❯])\s*$`)
	defaultBusyRegex   = regexp.MustCompile(`(?i)(thinking|working|processing|generating)\b`)
)

// DefaultPromptRegex returns the default prompt-ready detection regex.
func DefaultPromptRegex() *regexp.Regexp {
	return defaultPromptRegex
}

// Runner manages a PTY-wrapped agent CLI process.
type Runner struct {
	Command []string
	Env     []string

	// PromptRegex matches the end of output when the agent waits for input.
	PromptRegex *regexp.Regexp
	// BusyRegex matches output that means the agent is still working.
	BusyRegex *regexp.Regexp

	// SettleDelay is how long output must stay quiet after a prompt match.
	SettleDelay time.Duration

	TailLines    int
	OutputWriter io.Writer

	logger zerolog.Logger

	pty  *os.File
	cmd  *exec.Cmd
	tail *Tail

	mu       sync.Mutex
	pending  bytes.Buffer
	changed  chan struct{}
	exited   chan struct{}
	exitErr  error
	sendMu   sync.Mutex
}

// Start launches the command under a pty.
func (r *Runner) Start(ctx context.Context) error {
	if len(r.Command) == 0 || strings.TrimSpace(r.Command[0]) == "" {
		return ErrMissingCommand
	}
	r.applyDefaults()

	r.cmd = exec.Command(r.Command[0], r.Command[1:]...)
	r.cmd.Env = append(os.Environ(), r.Env...)

	ptyFile, err := pty.Start(r.cmd)
	if err != nil {
		return fmt.Errorf("start pty: %w", err)
	}
	r.pty = ptyFile
	r.changed = make(chan struct{}, 1)
	r.exited = make(chan struct{})

	go r.readOutput()
	go r.wait()

	r.logger.Debug().Strs("command", r.Command).Int("pid", r.cmd.Process.Pid).Msg("agent process started")
	return nil
}

// Stop terminates the process and releases the pty.
func (r *Runner) Stop() error {
	if r.cmd == nil || r.cmd.Process == nil {
		return nil
	}
	select {
	case <-r.exited:
	default:
		_ = r.cmd.Process.Kill()
		<-r.exited
	}
	err := r.pty.Close()
	r.cmd = nil
	return err
}

// Send writes text to the agent and returns the output it produced until the
// prompt reappeared. The echoed input and the prompt line are removed.
func (r *Runner) Send(ctx context.Context, text string) (string, error) {
	if r.pty == nil || r.cmd == nil {
		return "", ErrNotStarted
	}
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	r.mu.Lock()
	r.pending.Reset()
	r.mu.Unlock()

	payload := strings.ReplaceAll(text, "\n", " ")
	if _, err := io.WriteString(r.pty, payload+"\n"); err != nil {
		return "", fmt.Errorf("write input: %w", err)
	}

	output, err := r.awaitPrompt(ctx)
	if err != nil {
		return "", err
	}

	reply := cleanReply(output, payload, r.PromptRegex)
	if signal := state.ParseTranscript(reply); signal != nil {
		if signal.Blocking() {
			return "", fmt.Errorf("agent blocked: %s", signal)
		}
		r.logger.Warn().Str("signal", string(signal.Kind)).Msg(signal.Reason)
	}
	return reply, nil
}

// Tail returns the most recent output lines.
func (r *Runner) Tail() []string {
	return r.tail.Lines()
}

func (r *Runner) awaitPrompt(ctx context.Context) (string, error) {
	var matchedAt time.Time
	var matchedLen int
	settle := time.NewTicker(r.SettleDelay / 4)
	defer settle.Stop()

	for {
		r.mu.Lock()
		output := state.StripANSI(r.pending.String())
		r.mu.Unlock()

		if r.isReady(output) {
			if matchedAt.IsZero() || len(output) != matchedLen {
				matchedAt = time.Now()
				matchedLen = len(output)
			} else if time.Since(matchedAt) >= r.SettleDelay {
				return output, nil
			}
		} else {
			matchedAt = time.Time{}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-r.exited:
			if r.isReady(output) {
				return output, nil
			}
			return "", fmt.Errorf("%w: %v", ErrExited, r.exitErr)
		case <-r.changed:
		case <-settle.C:
		}
	}
}

// isReady requires some output beyond the echoed input line before trusting
// a prompt match.
func (r *Runner) isReady(output string) bool {
	_, rest, found := strings.Cut(output, "\n")
	if !found || strings.TrimSpace(rest) == "" {
		return false
	}
	if r.BusyRegex != nil && r.BusyRegex.MatchString(lastLine(rest)) {
		return false
	}
	return r.PromptRegex.MatchString(strings.TrimRight(rest, "\n "))
}

func (r *Runner) applyDefaults() {
	if r.TailLines <= 0 {
		r.TailLines = defaultTailLines
	}
	if r.SettleDelay <= 0 {
		r.SettleDelay = defaultSettleDelay
	}
	if r.PromptRegex == nil {
		r.PromptRegex = defaultPromptRegex
	}
	if r.BusyRegex == nil {
		r.BusyRegex = defaultBusyRegex
	}
	if r.OutputWriter == nil {
		r.OutputWriter = io.Discard
	}
	if r.tail == nil {
		r.tail = NewTail(r.TailLines)
	}
	r.logger = logging.Component("agent-runner")
}

func (r *Runner) readOutput() {
	buf := make([]byte, 4096)
	var partial []byte
	for {
		n, err := r.pty.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, writeErr := r.OutputWriter.Write(chunk); writeErr != nil {
				r.logger.Warn().Err(writeErr).Msg("failed to write output")
			}

			r.mu.Lock()
			r.pending.Write(chunk)
			r.mu.Unlock()

			partial = append(partial, chunk...)
			var lines []string
			lines, partial = splitLines(partial)
			for _, line := range lines {
				r.tail.Push(state.StripANSI(line))
			}

			select {
			case r.changed <- struct{}{}:
			default:
			}
		}
		if err != nil {
			return
		}
	}
}

func (r *Runner) wait() {
	err := r.cmd.Wait()
	r.mu.Lock()
	r.exitErr = err
	r.mu.Unlock()
	if err != nil {
		r.logger.Debug().Err(err).Msg("agent process exited")
	}
	close(r.exited)
}

func cleanReply(output, sent string, prompt *regexp.Regexp) string {
	lines := strings.Split(strings.ReplaceAll(output, "\r", ""), "\n")
	if len(lines) > 0 && strings.Contains(lines[0], strings.TrimSpace(sent)) {
		lines = lines[1:]
	}
	for len(lines) > 0 {
		last := strings.TrimSpace(lines[len(lines)-1])
		if last == "" || prompt.MatchString(last) && len(prompt.FindString(last)) == len(last) {
			lines = lines[:len(lines)-1]
			continue
		}
		if loc := prompt.FindStringIndex(lines[len(lines)-1]); loc != nil {
			lines[len(lines)-1] = strings.TrimRight(lines[len(lines)-1][:loc[0]], " ")
		}
		break
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func splitLines(buffer []byte) ([]string, []byte) {
	parts := bytes.Split(buffer, []byte{'\n'})
	if len(parts) == 0 {
		return nil, buffer
	}

	lines := make([]string, 0, len(parts))
	for i, part := range parts {
		if i == len(parts)-1 && len(buffer) > 0 && buffer[len(buffer)-1] != '\n' {
			return lines, part
		}
		line := strings.TrimRight(string(part), "\r")
		lines = append(lines, line)
	}
	return lines, nil
}

func lastLine(text string) string {
	text = strings.TrimRight(text, "\n ")
	if idx := strings.LastIndex(text, "\n"); idx >= 0 {
		return text[idx+1:]
	}
	return text
}
