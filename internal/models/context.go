package models

import (
	"errors"
	"fmt"
)

// ErrResultExists is returned when a step result is written twice in one run.
var ErrResultExists = errors.New("step result already recorded")

// ExecutionContext accumulates state for one item's chain run.
type ExecutionContext struct {
	// Item is the queue element driving this run. Nil for an empty-queue run.
	Item any

	// Index is the 1-based position of the item in the batch.
	Index int

	// Total is the batch size as known when the item started.
	Total int

	// LastResponseText is the text form of the most recent step result.
	LastResponseText string

	// Steps holds results by step id. Entries are never removed.
	Steps map[string]StepResult

	// ChainScratch carries chain-level data such as resolved dynamic elements.
	ChainScratch ChainScratch
}

// ChainScratch is chain-level data shared by all steps of a run.
type ChainScratch struct {
	DynamicElements []any
}

// NewExecutionContext creates an empty context for one item.
func NewExecutionContext(item any, index, total int) *ExecutionContext {
	return &ExecutionContext{
		Item:  item,
		Index: index,
		Total: total,
		Steps: make(map[string]StepResult),
	}
}

// SetResult stores the result for a step id.
func (c *ExecutionContext) SetResult(stepID string, result StepResult) error {
	if c.Steps == nil {
		c.Steps = make(map[string]StepResult)
	}
	if _, exists := c.Steps[stepID]; exists {
		return fmt.Errorf("%w: %s", ErrResultExists, stepID)
	}
	c.Steps[stepID] = result
	if result != nil {
		c.LastResponseText = result.Text()
	}
	return nil
}

// Result returns the stored result for a step id.
func (c *ExecutionContext) Result(stepID string) (StepResult, bool) {
	r, ok := c.Steps[stepID]
	return r, ok
}

// StepFields returns every stored result in its template view.
func (c *ExecutionContext) StepFields() map[string]any {
	out := make(map[string]any, len(c.Steps))
	for id, r := range c.Steps {
		if r == nil {
			continue
		}
		out[id] = r.Fields()
	}
	return out
}

// TemplateData builds the interpolation context for rendering step fields.
func (c *ExecutionContext) TemplateData() map[string]any {
	var elements any
	if c.ChainScratch.DynamicElements != nil {
		elements = c.ChainScratch.DynamicElements
	}
	return map[string]any{
		"item":            c.Item,
		"index":           c.Index,
		"total":           c.Total,
		"lastResponse":    c.LastResponseText,
		"steps":           c.StepFields(),
		"dynamicElements": elements,
	}
}
