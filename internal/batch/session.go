// Package batch runs a chain once per queued item.
package batch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/opencode-ai/promptchain/internal/queue"
)

// Session is the state of one batch run: the live queue, how many items
// have been processed, and whether the operator asked to stop.
type Session struct {
	ID    string
	Queue queue.Queue

	mu        sync.Mutex
	processed int
	startedAt time.Time
	cancel    atomic.Bool
}

// NewSession creates a session over q.
func NewSession(q queue.Queue) *Session {
	return &Session{ID: uuid.New().String(), Queue: q}
}

// Cancel asks the run to stop at the next check. The item in flight finishes.
func (s *Session) Cancel() {
	s.cancel.Store(true)
}

// CancelRequested reports whether Cancel was called.
func (s *Session) CancelRequested() bool {
	return s.cancel.Load()
}

// Processed returns how many items have been run so far.
func (s *Session) Processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed
}

// StartedAt returns when the run began, zero before it starts.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

func (s *Session) advance() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	return s.processed
}

func (s *Session) start(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startedAt = now
}
