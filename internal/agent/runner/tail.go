package runner

import "sync"

// Tail holds the most recent output lines of an agent process. Older lines
// are dropped once the limit is reached.
type Tail struct {
	mu    sync.Mutex
	limit int
	lines []string
}

// NewTail creates a tail that keeps at most limit lines.
func NewTail(limit int) *Tail {
	if limit < 1 {
		limit = 1
	}
	return &Tail{limit: limit, lines: make([]string, 0, limit)}
}

// Push appends line. A nil tail discards it.
func (t *Tail) Push(line string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.lines) == t.limit {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:t.limit-1]
	}
	t.lines = append(t.lines, line)
}

// Lines copies the retained lines, oldest first.
func (t *Tail) Lines() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}
