package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/opencode-ai/promptchain/internal/httpclient"
	"github.com/opencode-ai/promptchain/internal/models"
	"github.com/opencode-ai/promptchain/internal/templates"
)

type httpHandler struct {
	deps Deps
}

func (h *httpHandler) Type() models.StepType { return models.StepTypeHTTP }

func (h *httpHandler) Execute(ctx context.Context, step *models.Step, data map[string]any, exec *models.ExecutionContext, ctl Control) (models.StepResult, error) {
	if h.deps.HTTP == nil {
		return nil, fmt.Errorf("no http client configured")
	}

	url := strings.TrimSpace(templates.Render(step.URL, data))
	if url == "" {
		return nil, fmt.Errorf("http step %q: url rendered empty", step.ID)
	}
	method := strings.ToUpper(strings.TrimSpace(step.Method))
	if method == "" {
		method = http.MethodGet
	}

	req := httpclient.Request{
		Method:  method,
		URL:     url,
		Headers: h.headers(step, data),
	}
	if step.BodyTemplate != "" {
		req.Body = templates.Render(step.BodyTemplate, data)
	}

	resp, err := h.deps.HTTP.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("http %s %s: %w", method, url, err)
	}

	var parsed any = resp.BodyText
	var decoded any
	if err := json.Unmarshal([]byte(resp.BodyText), &decoded); err == nil {
		parsed = decoded
	}

	headers := resp.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	return &models.HTTPResult{
		Status:  resp.Status,
		Headers: headers,
		Data:    parsed,
		RawText: resp.BodyText,
	}, nil
}

// headers accepts an object or JSON text. Text is rendered before parsing.
// Unparseable headers are logged and dropped.
func (h *httpHandler) headers(step *models.Step, data map[string]any) map[string]string {
	var raw map[string]any
	switch v := step.Headers.(type) {
	case nil:
		return nil
	case map[string]any:
		raw = v
	case map[string]string:
		raw = make(map[string]any, len(v))
		for k, s := range v {
			raw[k] = s
		}
	case string:
		text := strings.TrimSpace(templates.Render(v, data))
		if text == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			h.deps.Logger.Error().Err(err).Str("step", step.ID).Msg("failed to parse http headers")
			return nil
		}
	default:
		h.deps.Logger.Error().Str("step", step.ID).Msgf("unsupported headers value %T", v)
		return nil
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = templates.Render(s, data)
			continue
		}
		out[k] = models.Stringify(v)
	}
	return out
}
