// Package elements turns free-form text into an ordered list of items.
package elements

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/promptchain/internal/script"
)

// Evaluator evaluates expression text in an isolated environment.
type Evaluator func(ctx context.Context, expr string) (any, error)

// Parser parses dynamic element text. Parse never fails; problems are logged
// and produce an empty list.
type Parser struct {
	logger   zerolog.Logger
	evaluate Evaluator
}

// NewParser creates a parser backed by the script package's pure evaluator.
func NewParser(logger zerolog.Logger) *Parser {
	return &Parser{logger: logger, evaluate: script.Evaluate}
}

// WithEvaluator returns a copy of p using eval for expression text.
func (p *Parser) WithEvaluator(eval Evaluator) *Parser {
	cp := *p
	cp.evaluate = eval
	return &cp
}

// Parse converts raw into a list of items:
//
//  1. blank input yields an empty list
//  2. text starting with '[' must be a JSON array
//  3. text starting with '{' that is a JSON object becomes a one-element list
//  4. anything else is evaluated as an expression; a function result is
//     called, a list is returned as is, an object is wrapped, and a string
//     is re-read as a JSON array or object. Other results give an empty list.
func (p *Parser) Parse(ctx context.Context, raw string) []any {
	text := strings.TrimSpace(raw)
	if text == "" {
		return []any{}
	}

	if strings.HasPrefix(text, "[") {
		var items []any
		if err := json.Unmarshal([]byte(text), &items); err != nil {
			p.logger.Error().Err(err).Str("input", preview(text)).Msg("failed to parse element list")
			return []any{}
		}
		if items == nil {
			items = []any{}
		}
		return items
	}

	if strings.HasPrefix(text, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(text), &obj); err == nil {
			return []any{obj}
		}
	}

	items, err := p.evaluateExpression(ctx, text)
	if err != nil {
		p.logger.Error().Err(err).Str("input", preview(text)).Msg("failed to evaluate element expression")
		return []any{}
	}
	return items
}

func (p *Parser) evaluateExpression(ctx context.Context, text string) ([]any, error) {
	if p.evaluate == nil {
		return nil, fmt.Errorf("no expression evaluator configured")
	}
	value, err := p.evaluate(ctx, text)
	if err != nil {
		return nil, err
	}
	return shape(value)
}

func shape(value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case map[string]any:
		return []any{v}, nil
	case string:
		trimmed := strings.TrimSpace(v)
		switch {
		case strings.HasPrefix(trimmed, "["):
			var items []any
			if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
				return nil, fmt.Errorf("expression returned invalid JSON array: %w", err)
			}
			if items == nil {
				items = []any{}
			}
			return items, nil
		case strings.HasPrefix(trimmed, "{"):
			var obj map[string]any
			if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
				return nil, fmt.Errorf("expression returned invalid JSON object: %w", err)
			}
			return []any{obj}, nil
		default:
			return nil, fmt.Errorf("expression returned a string that is not JSON")
		}
	case nil:
		return nil, fmt.Errorf("expression returned nil")
	default:
		return nil, fmt.Errorf("expression returned unsupported %T", value)
	}
}

func preview(text string) string {
	const max = 80
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
