// Package models defines the core data types shared across promptchain packages.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// StepType identifies the kind of work a step performs.
type StepType string

const (
	StepTypePrompt   StepType = "prompt"
	StepTypeTemplate StepType = "template"
	StepTypeHTTP     StepType = "http"
	StepTypeJS       StepType = "js"
)

// Valid reports whether the step type is known.
func (t StepType) Valid() bool {
	switch t {
	case StepTypePrompt, StepTypeTemplate, StepTypeHTTP, StepTypeJS:
		return true
	}
	return false
}

// ResponseType selects what a prompt or template step captures from the agent.
type ResponseType string

const (
	ResponseTypeText  ResponseType = "text"
	ResponseTypeImage ResponseType = "image"
)

// Valid reports whether the response type is known. Empty means text.
func (t ResponseType) Valid() bool {
	switch t {
	case "", ResponseTypeText, ResponseTypeImage:
		return true
	}
	return false
}

// Chain is a directed sequence of steps connected by next pointers.
type Chain struct {
	// Name identifies the chain when loaded from a file. Optional.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description is free-form text shown by `chain list`.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// EntryID names the first step. When empty the entry is inferred.
	EntryID string `json:"entryId,omitempty" yaml:"entryId,omitempty"`

	// DynamicElements holds the chain-level element list or expression text.
	DynamicElements DynamicElements `json:"dynamicElements,omitempty" yaml:"dynamicElements,omitempty"`

	// Steps are the chain's steps in declaration order.
	Steps []Step `json:"steps" yaml:"steps"`

	// Source is the file path the chain was loaded from, or "builtin".
	Source string `json:"-" yaml:"-"`
}

// Step is a single typed unit of work within a chain.
type Step struct {
	ID    string   `json:"id" yaml:"id"`
	Type  StepType `json:"type" yaml:"type"`
	Title string   `json:"title,omitempty" yaml:"title,omitempty"`
	Next  string   `json:"next,omitempty" yaml:"next,omitempty"`

	// prompt and template
	Template        string       `json:"template,omitempty" yaml:"template,omitempty"`
	ResponseType    ResponseType `json:"responseType,omitempty" yaml:"responseType,omitempty"`
	NewConversation bool         `json:"newConversation,omitempty" yaml:"newConversation,omitempty"`

	// template only
	Elements                string `json:"elements,omitempty" yaml:"elements,omitempty"`
	UseChainDynamicElements bool   `json:"useChainDynamicElements,omitempty" yaml:"useChainDynamicElements,omitempty"`

	// http
	URL          string `json:"url,omitempty" yaml:"url,omitempty"`
	Method       string `json:"method,omitempty" yaml:"method,omitempty"`
	Headers      any    `json:"headers,omitempty" yaml:"headers,omitempty"`
	BodyTemplate string `json:"bodyTemplate,omitempty" yaml:"bodyTemplate,omitempty"`

	// js
	Code string `json:"code,omitempty" yaml:"code,omitempty"`
}

// Label returns the title when present, otherwise the id.
func (s *Step) Label() string {
	if strings.TrimSpace(s.Title) != "" {
		return s.Title
	}
	return s.ID
}

// StepByID returns the step with the given id.
func (c *Chain) StepByID(id string) (*Step, bool) {
	if id == "" {
		return nil, false
	}
	for i := range c.Steps {
		if c.Steps[i].ID == id {
			return &c.Steps[i], true
		}
	}
	return nil, false
}

// Clone returns a copy of the chain that shares no step storage with the original.
// A run always works on a clone so edits to the source do not leak into it.
func (c *Chain) Clone() *Chain {
	if c == nil {
		return nil
	}
	out := *c
	out.Steps = make([]Step, len(c.Steps))
	copy(out.Steps, c.Steps)
	if c.DynamicElements.Items != nil {
		out.DynamicElements.Items = append([]any(nil), c.DynamicElements.Items...)
	}
	return &out
}

// DynamicElements is either a literal list of items or expression text for the element parser.
type DynamicElements struct {
	Items      []any
	Expression string
}

// IsZero reports whether neither a list nor an expression is set.
func (d DynamicElements) IsZero() bool {
	return d.Items == nil && strings.TrimSpace(d.Expression) == ""
}

// MarshalJSON writes the list form when items are present, otherwise the expression string.
func (d DynamicElements) MarshalJSON() ([]byte, error) {
	if d.Items != nil {
		return json.Marshal(d.Items)
	}
	return json.Marshal(d.Expression)
}

// UnmarshalJSON accepts a JSON array or a string.
func (d *DynamicElements) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*d = DynamicElements{}
		return nil
	case trimmed[0] == '[':
		var items []any
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("dynamicElements: %w", err)
		}
		*d = DynamicElements{Items: items}
		return nil
	case trimmed[0] == '"':
		var expr string
		if err := json.Unmarshal(trimmed, &expr); err != nil {
			return fmt.Errorf("dynamicElements: %w", err)
		}
		*d = DynamicElements{Expression: expr}
		return nil
	default:
		return fmt.Errorf("dynamicElements must be a list or a string")
	}
}

// MarshalYAML mirrors MarshalJSON.
func (d DynamicElements) MarshalYAML() (any, error) {
	if d.Items != nil {
		return d.Items, nil
	}
	return d.Expression, nil
}

// UnmarshalYAML accepts a sequence or a scalar.
func (d *DynamicElements) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var items []any
		if err := node.Decode(&items); err != nil {
			return fmt.Errorf("dynamicElements: %w", err)
		}
		*d = DynamicElements{Items: normalizeYAML(items).([]any)}
		return nil
	case yaml.ScalarNode:
		*d = DynamicElements{Expression: node.Value}
		return nil
	default:
		return fmt.Errorf("dynamicElements must be a list or a string")
	}
}

// normalizeYAML converts map[string]any trees decoded by yaml into the shapes
// encoding/json produces so templates and scripts see one representation.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeYAML(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return v
	}
}
