// Package chain walks a chain of steps from its entry step via next pointers.
package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/opencode-ai/promptchain/internal/models"
	"github.com/opencode-ai/promptchain/internal/templates"
)

// Chain errors.
var (
	ErrEmptyChain  = errors.New("chain has no steps")
	ErrDuplicateID = errors.New("duplicate step id")
	ErrMissingID   = errors.New("step id is required")
	ErrCycle       = errors.New("chain contains a cycle")
)

// StepError reports the step that failed a chain run.
type StepError struct {
	StepID string
	Type   models.StepType
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q (%s) failed: %v", e.StepID, e.Type, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ResolveEntry picks the first step: the explicit entry id when it names a
// step, else the only step no other step points at, else the first declared.
func ResolveEntry(c *models.Chain) (*models.Step, error) {
	if c == nil || len(c.Steps) == 0 {
		return nil, ErrEmptyChain
	}
	if step, ok := c.StepByID(c.EntryID); ok {
		return step, nil
	}

	referenced := make(map[string]bool, len(c.Steps))
	for _, s := range c.Steps {
		if s.Next != "" {
			referenced[s.Next] = true
		}
	}
	var candidate *models.Step
	for i := range c.Steps {
		if referenced[c.Steps[i].ID] {
			continue
		}
		if candidate != nil {
			candidate = nil
			break
		}
		candidate = &c.Steps[i]
	}
	if candidate != nil {
		return candidate, nil
	}
	return &c.Steps[0], nil
}

// Validate checks the invariants a run depends on: at least one step, unique
// non-empty ids, and no cycle reachable from the entry step.
func Validate(c *models.Chain) error {
	if c == nil || len(c.Steps) == 0 {
		return ErrEmptyChain
	}
	seen := make(map[string]bool, len(c.Steps))
	for i, s := range c.Steps {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return fmt.Errorf("%w: step %d", ErrMissingID, i+1)
		}
		if seen[id] {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		seen[id] = true
	}

	entry, err := ResolveEntry(c)
	if err != nil {
		return err
	}
	_, err = Path(c, entry)
	return err
}

// Path returns the step ids visited from start until the terminal state.
// It fails with ErrCycle when a step would be visited twice.
func Path(c *models.Chain, start *models.Step) ([]string, error) {
	visited := make(map[string]bool)
	var path []string
	for current := start; current != nil; {
		if visited[current.ID] {
			return path, fmt.Errorf("%w: %s -> %s", ErrCycle, strings.Join(path, " -> "), current.ID)
		}
		visited[current.ID] = true
		path = append(path, current.ID)

		next, ok := c.StepByID(current.Next)
		if !ok {
			break
		}
		current = next
	}
	return path, nil
}

// Warnings lists references that do not break a run but are probably mistakes.
func Warnings(c *models.Chain) []string {
	var warnings []string
	if c.EntryID != "" {
		if _, ok := c.StepByID(c.EntryID); !ok {
			warnings = append(warnings, fmt.Sprintf("entryId %q does not name a step", c.EntryID))
		}
	}
	for _, s := range c.Steps {
		if s.Next == "" {
			continue
		}
		if _, ok := c.StepByID(s.Next); !ok {
			warnings = append(warnings, fmt.Sprintf("step %q: next %q does not name a step; the chain ends there", s.ID, s.Next))
		}
	}
	for _, s := range c.Steps {
		for _, ref := range stepRefs(&s) {
			if _, ok := c.StepByID(ref); !ok {
				warnings = append(warnings, fmt.Sprintf("step %q: template refers to unknown step %q", s.ID, ref))
			}
		}
	}
	return warnings
}

// stepRefs returns the step ids named by steps.<id> placeholders in the
// rendered fields of s, without duplicates.
func stepRefs(s *models.Step) []string {
	seen := make(map[string]bool)
	var refs []string
	for _, field := range []string{s.Template, s.Elements, s.URL, s.BodyTemplate} {
		for _, path := range templates.Paths(field) {
			parts := strings.Split(path, ".")
			if len(parts) < 2 || parts[0] != "steps" || seen[parts[1]] {
				continue
			}
			seen[parts[1]] = true
			refs = append(refs, parts[1])
		}
	}
	return refs
}
