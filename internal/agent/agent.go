// Package agent defines the conversational agent contract used by chain steps.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrReplyTimeout indicates the agent did not answer within the response wait.
	ErrReplyTimeout = errors.New("agent reply timed out")

	// ErrNoReply indicates the agent finished without producing a reply.
	ErrNoReply = errors.New("agent produced no reply")
)

// Expect selects what the caller wants back from a reply.
type Expect string

const (
	ExpectText  Expect = "text"
	ExpectImage Expect = "image"
)

// AskOptions tune a single request.
type AskOptions struct {
	Expect Expect
}

// Reply is an agent answer.
type Reply struct {
	Text   string
	Images []string
}

// Agent sends messages to a conversational agent and waits for its reply.
type Agent interface {
	// Ask sends text and returns the text reply.
	Ask(ctx context.Context, text string) (*Reply, error)

	// AskWith sends text and returns the reply shaped by opts.
	AskWith(ctx context.Context, text string, opts AskOptions) (*Reply, error)

	// StartNewConversation discards conversation state. It reports whether a
	// fresh conversation was actually started.
	StartNewConversation(ctx context.Context) (bool, error)
}

// WithTimeout bounds every Ask and AskWith call of a by timeout.
// A non-positive timeout returns a unchanged.
func WithTimeout(a Agent, timeout time.Duration) Agent {
	if timeout <= 0 {
		return a
	}
	return &timeoutAgent{inner: a, timeout: timeout}
}

type timeoutAgent struct {
	inner   Agent
	timeout time.Duration
}

func (t *timeoutAgent) Ask(ctx context.Context, text string) (*Reply, error) {
	return t.AskWith(ctx, text, AskOptions{Expect: ExpectText})
}

func (t *timeoutAgent) AskWith(ctx context.Context, text string, opts AskOptions) (*Reply, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	reply, err := t.inner.AskWith(callCtx, text, opts)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrReplyTimeout, t.timeout)
		}
		return nil, err
	}
	return reply, nil
}

func (t *timeoutAgent) StartNewConversation(ctx context.Context) (bool, error) {
	return t.inner.StartNewConversation(ctx)
}

// Close closes the wrapped agent when it holds resources.
func (t *timeoutAgent) Close() error {
	if closer, ok := t.inner.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
