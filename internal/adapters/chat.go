package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/opencode-ai/promptchain/internal/agent"
)

// ChatAgent talks to an OpenAI-compatible chat completions endpoint and keeps
// the conversation history between calls.
type ChatAgent struct {
	BaseURL string
	Model   string
	APIKey  string
	Client  *http.Client

	mu      sync.Mutex
	history []chatMessage
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewChatAgent constructs a chat agent with defaults applied.
func NewChatAgent(opts Options) (*ChatAgent, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("chat base URL is empty")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("chat model is empty")
	}
	return &ChatAgent{
		BaseURL: baseURL,
		Model:   opts.Model,
		APIKey:  opts.APIKey,
		Client:  &http.Client{},
	}, nil
}

func (c *ChatAgent) Ask(ctx context.Context, text string) (*agent.Reply, error) {
	return c.AskWith(ctx, text, agent.AskOptions{Expect: agent.ExpectText})
}

func (c *ChatAgent) AskWith(ctx context.Context, text string, opts agent.AskOptions) (*agent.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := append(append([]chatMessage(nil), c.history...), chatMessage{Role: "user", Content: text})
	content, err := c.complete(ctx, messages)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, agent.ErrNoReply
	}

	c.history = append(messages, chatMessage{Role: "assistant", Content: content})
	return agent.Shape(content, opts), nil
}

func (c *ChatAgent) StartNewConversation(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
	return true, nil
}

func (c *ChatAgent) complete(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{Model: c.Model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	client := c.Client
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call chat endpoint: %w", err)
	}
	defer resp.Body.Close()

	data, err := readResponseBody(resp)
	if err != nil {
		return "", err
	}

	var decoded chatResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("chat endpoint error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", agent.ErrNoReply
	}
	return decoded.Choices[0].Message.Content, nil
}

func readResponseBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet := strings.TrimSpace(string(body))
		if snippet == "" {
			snippet = resp.Status
		}
		return nil, fmt.Errorf("chat request failed (%s): %s", resp.Status, snippet)
	}

	return body, nil
}
