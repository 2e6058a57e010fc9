package adapters

import (
	"context"
	"sync"

	"github.com/opencode-ai/promptchain/internal/agent"
)

// EchoAgent answers every message with the message itself. It is used for
// dry runs and tests.
type EchoAgent struct {
	mu            sync.Mutex
	sent          []string
	conversations int
}

// NewEchoAgent creates an echo agent.
func NewEchoAgent() *EchoAgent {
	return &EchoAgent{conversations: 1}
}

func (e *EchoAgent) Ask(ctx context.Context, text string) (*agent.Reply, error) {
	return e.AskWith(ctx, text, agent.AskOptions{Expect: agent.ExpectText})
}

func (e *EchoAgent) AskWith(ctx context.Context, text string, opts agent.AskOptions) (*agent.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.sent = append(e.sent, text)
	e.mu.Unlock()
	return agent.Shape(text, opts), nil
}

func (e *EchoAgent) StartNewConversation(ctx context.Context) (bool, error) {
	e.mu.Lock()
	e.conversations++
	e.mu.Unlock()
	return true, nil
}

// Sent returns every message received so far.
func (e *EchoAgent) Sent() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.sent...)
}

// Conversations returns how many conversations have been started.
func (e *EchoAgent) Conversations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conversations
}
