package models

import "strings"

// StepResult is the typed output of one executed step.
type StepResult interface {
	// Kind is the step type that produced the result.
	Kind() StepType

	// Text is the value chained into the next step as lastResponse.
	Text() string

	// Fields is the view templates and scripts see under steps.<id>.
	Fields() map[string]any
}

// PromptResult is produced by a prompt step.
type PromptResult struct {
	Response string   `json:"response,omitempty"`
	Images   []string `json:"images,omitempty"`
}

func (r *PromptResult) Kind() StepType { return StepTypePrompt }

func (r *PromptResult) Text() string {
	if r.Response == "" && len(r.Images) > 0 {
		return strings.Join(r.Images, "\n")
	}
	return r.Response
}

func (r *PromptResult) Fields() map[string]any {
	out := map[string]any{}
	if r.Images != nil {
		out["images"] = stringsToAny(r.Images)
	} else {
		out["response"] = r.Response
	}
	return out
}

// SubResponse is one sub-item answer inside a template step.
type SubResponse struct {
	Item     any      `json:"item"`
	Response string   `json:"response,omitempty"`
	Images   []string `json:"images,omitempty"`
}

func (s SubResponse) fields() map[string]any {
	out := map[string]any{"item": s.Item}
	if s.Images != nil {
		out["images"] = stringsToAny(s.Images)
	} else {
		out["response"] = s.Response
	}
	return out
}

// TemplateResult is produced by a template (batch-within-a-step) step.
type TemplateResult struct {
	Responses    []SubResponse `json:"responses"`
	ItemCount    int           `json:"itemCount"`
	LastResponse string        `json:"lastResponse"`

	// Response is set when the step degraded to a single prompt.
	Response string `json:"response,omitempty"`

	// Cancelled reports that cancellation stopped the sub-item loop early.
	Cancelled bool `json:"cancelled,omitempty"`
}

func (r *TemplateResult) Kind() StepType { return StepTypeTemplate }

func (r *TemplateResult) Text() string { return r.LastResponse }

func (r *TemplateResult) Fields() map[string]any {
	responses := make([]any, 0, len(r.Responses))
	for _, sub := range r.Responses {
		responses = append(responses, sub.fields())
	}
	out := map[string]any{
		"responses":    responses,
		"itemCount":    r.ItemCount,
		"lastResponse": r.LastResponse,
		// degraded template steps read like prompt steps
		"response": r.LastResponse,
	}
	if r.Response != "" {
		out["response"] = r.Response
	}
	return out
}

// HTTPResult is produced by an http step.
type HTTPResult struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	// Data is the decoded JSON body, or the raw text when the body is not JSON.
	Data    any    `json:"data"`
	RawText string `json:"rawText"`
}

func (r *HTTPResult) Kind() StepType { return StepTypeHTTP }

func (r *HTTPResult) Text() string { return r.RawText }

func (r *HTTPResult) Fields() map[string]any {
	headers := make(map[string]any, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = v
	}
	return map[string]any{
		"status":  r.Status,
		"headers": headers,
		"data":    r.Data,
		"rawText": r.RawText,
	}
}

// ScriptResult is produced by a js step.
type ScriptResult struct {
	Response any `json:"response"`
}

func (r *ScriptResult) Kind() StepType { return StepTypeJS }

func (r *ScriptResult) Text() string { return Stringify(r.Response) }

func (r *ScriptResult) Fields() map[string]any {
	return map[string]any{"response": r.Response}
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
