package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/promptchain/internal/agent"
)

func TestRegistryNames(t *testing.T) {
	require.Equal(t, []string{"chat", "echo", "pty", "tmux"}, Names())

	_, err := New("carrier-pigeon", Options{})
	require.ErrorContains(t, err, "unknown agent adapter")
}

func TestEchoAgent(t *testing.T) {
	a, err := New("echo", Options{})
	require.NoError(t, err)

	reply, err := a.Ask(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "hello", reply.Text)

	reply, err = a.AskWith(context.Background(), "![x](http://img.test/a.png)", agent.AskOptions{Expect: agent.ExpectImage})
	require.NoError(t, err)
	require.Equal(t, []string{"http://img.test/a.png"}, reply.Images)
}

func TestChatAgentKeepsHistory(t *testing.T) {
	var mu sync.Mutex
	var seen [][]chatMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		seen = append(seen, req.Messages)
		mu.Unlock()
		last := req.Messages[len(req.Messages)-1].Content
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": "re: " + last}}},
		})
	}))
	defer srv.Close()

	a, err := NewChatAgent(Options{BaseURL: srv.URL + "/", Model: "m", APIKey: "secret"})
	require.NoError(t, err)

	reply, err := a.Ask(context.Background(), "one")
	require.NoError(t, err)
	require.Equal(t, "re: one", reply.Text)

	_, err = a.Ask(context.Background(), "two")
	require.NoError(t, err)
	require.Len(t, seen[1], 3)

	ok, err := a.StartNewConversation(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	_, err = a.Ask(context.Background(), "three")
	require.NoError(t, err)
	require.Len(t, seen[2], 1)
}

func TestChatAgentHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a, err := NewChatAgent(Options{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)
	_, err = a.Ask(context.Background(), "one")
	require.ErrorContains(t, err, "overloaded")
}

// paneExecutor simulates a tmux pane where the agent answers after a prompt is sent.
type paneExecutor struct {
	mu     sync.Mutex
	screen string
}

func (p *paneExecutor) Exec(ctx context.Context, cmd string) ([]byte, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case strings.HasPrefix(cmd, "tmux capture-pane"):
		return []byte(p.screen), nil, nil
	case strings.Contains(cmd, " -l "):
		text := cmd[strings.Index(cmd, " -l ")+4:]
		text = strings.Trim(text, "'")
		p.screen = strings.TrimSuffix(p.screen, "> ") + "> " + text + "\nanswer to " + text + "\n> "
	}
	return nil, nil, nil
}

func TestTmuxAgentReadsReply(t *testing.T) {
	exec := &paneExecutor{screen: "welcome\n> "}
	a, err := NewTmuxAgent(Options{TmuxPane: "work:0"}, exec)
	require.NoError(t, err)
	a.PollInterval = 5 * time.Millisecond
	a.StableFor = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := a.Ask(ctx, "status")
	require.NoError(t, err)
	require.Equal(t, "answer to status", reply.Text)
}

func TestTmuxAgentBlockedByRateLimit(t *testing.T) {
	exec := &paneExecutor{screen: "> "}
	a, err := NewTmuxAgent(Options{TmuxPane: "work:0"}, exec)
	require.NoError(t, err)
	a.PollInterval = 5 * time.Millisecond
	a.StableFor = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = a.Ask(ctx, "rate limit please")
	require.ErrorContains(t, err, "agent blocked")
}

func TestExtractReplyFallsBackToBaseline(t *testing.T) {
	prompt := defaultTmuxPrompt
	out := extractReply("a\n> ", "a\nfresh output\n> ", "", prompt)
	require.Equal(t, "fresh output", out)
}
