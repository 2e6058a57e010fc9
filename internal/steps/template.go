package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/opencode-ai/promptchain/internal/models"
	"github.com/opencode-ai/promptchain/internal/templates"
)

type templateHandler struct {
	deps Deps
}

func (h *templateHandler) Type() models.StepType { return models.StepTypeTemplate }

func (h *templateHandler) Execute(ctx context.Context, step *models.Step, data map[string]any, exec *models.ExecutionContext, ctl Control) (models.StepResult, error) {
	items := h.subItems(ctx, step, data, exec)

	if len(items) == 0 {
		text := templates.Render(step.Template, data)
		reply, err := send(ctx, h.deps, step, text)
		if err != nil {
			return nil, err
		}
		single := promptResult(step, reply)
		return &models.TemplateResult{
			Responses:    []models.SubResponse{},
			LastResponse: single.Text(),
			Response:     single.Text(),
		}, nil
	}

	count := len(items)
	result := &models.TemplateResult{
		Responses: make([]models.SubResponse, 0, count),
		ItemCount: count,
	}

	for i, item := range items {
		if ctl.cancelled() {
			result.Cancelled = true
			break
		}

		child := templates.WithItem(data, item, i+1, count)
		text := templates.Render(step.Template, child)
		reply, err := send(ctx, h.deps, step, text)
		if err != nil {
			return nil, fmt.Errorf("sub-item %d/%d: %w", i+1, count, err)
		}

		sub := models.SubResponse{Item: item}
		if step.ResponseType == models.ResponseTypeImage {
			sub.Images = promptResult(step, reply).Images
			result.LastResponse = strings.Join(sub.Images, "\n")
		} else {
			sub.Response = reply.Text
			result.LastResponse = reply.Text
		}
		result.Responses = append(result.Responses, sub)

		ctl.subProgress(i+1, count)

		if ctl.cancelled() {
			result.Cancelled = true
			break
		}
		if i < count-1 {
			if err := h.deps.Sleep(ctx, h.deps.SubItemWait); err != nil {
				return nil, err
			}
		}
	}

	if result.Cancelled {
		h.deps.Logger.Info().
			Str("step", step.ID).
			Int("completed", len(result.Responses)).
			Int("total", count).
			Msg("template step stopped by cancellation")
	}
	return result, nil
}

// subItems renders the elements source and parses it. An empty list falls
// back to the chain's dynamic elements when the step allows it.
func (h *templateHandler) subItems(ctx context.Context, step *models.Step, data map[string]any, exec *models.ExecutionContext) []any {
	var items []any
	if strings.TrimSpace(step.Elements) != "" {
		items = h.deps.Parser.Parse(ctx, templates.Render(step.Elements, data))
	}
	if len(items) == 0 && step.UseChainDynamicElements {
		items = exec.ChainScratch.DynamicElements
	}
	return items
}
