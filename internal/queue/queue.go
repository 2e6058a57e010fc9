// Package queue provides the batch input queues.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/opencode-ai/promptchain/internal/db"
)

// ErrOutOfRange is returned for positions outside the queue.
var ErrOutOfRange = errors.New("queue position out of range")

// Queue is the ordered item list a batch consumes. It may be edited by
// others while a batch runs, so callers re-read the length every iteration.
type Queue interface {
	// Len returns the current number of items.
	Len(ctx context.Context) (int, error)
	// At returns the item at 0-based position i.
	At(ctx context.Context, i int) (any, error)
	// RemoveHead drops the first item.
	RemoveHead(ctx context.Context) error
}

// Memory is an in-process queue safe for concurrent edits.
type Memory struct {
	mu    sync.Mutex
	items []any
}

// NewMemory creates a queue holding items.
func NewMemory(items ...any) *Memory {
	return &Memory{items: append([]any(nil), items...)}
}

func (m *Memory) Len(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items), nil
}

func (m *Memory) At(ctx context.Context, i int) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.items) {
		return nil, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(m.items))
	}
	return m.items[i], nil
}

func (m *Memory) RemoveHead(ctx context.Context) error {
	return m.Remove(0)
}

// Append adds items to the tail.
func (m *Memory) Append(items ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, items...)
}

// Remove deletes the item at position i.
func (m *Memory) Remove(i int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.items) {
		return fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(m.items))
	}
	m.items = append(m.items[:i], m.items[i+1:]...)
	return nil
}

// Items returns a copy of the current items.
func (m *Memory) Items() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.items...)
}

// Persistent is a named queue stored in the database, editable from other
// processes while a batch runs.
type Persistent struct {
	repo *db.QueueRepository
	name string
}

// NewPersistent creates a handle on the named queue.
func NewPersistent(repo *db.QueueRepository, name string) *Persistent {
	return &Persistent{repo: repo, name: name}
}

// Name returns the queue name.
func (p *Persistent) Name() string { return p.name }

func (p *Persistent) Len(ctx context.Context) (int, error) {
	return p.repo.Count(ctx, p.name)
}

func (p *Persistent) At(ctx context.Context, i int) (any, error) {
	item, err := p.repo.At(ctx, p.name, i)
	if errors.Is(err, db.ErrQueueItemNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	if err != nil {
		return nil, err
	}
	return item.Decoded()
}

func (p *Persistent) RemoveHead(ctx context.Context) error {
	err := p.repo.RemoveAt(ctx, p.name, 0)
	if errors.Is(err, db.ErrQueueItemNotFound) {
		return fmt.Errorf("%w: queue is empty", ErrOutOfRange)
	}
	return err
}

// Append adds values to the tail.
func (p *Persistent) Append(ctx context.Context, values ...any) error {
	_, err := p.repo.Append(ctx, p.name, values...)
	return err
}

// Items returns the decoded values in order.
func (p *Persistent) Items(ctx context.Context) ([]any, error) {
	rows, err := p.repo.List(ctx, p.name)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		v, err := row.Decoded()
		if err != nil {
			return nil, fmt.Errorf("decode queue item %s: %w", row.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}
