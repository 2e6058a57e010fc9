package steps

import (
	"context"
	"fmt"

	"github.com/opencode-ai/promptchain/internal/models"
	"github.com/opencode-ai/promptchain/internal/script"
)

type jsHandler struct {
	deps Deps
}

func (h *jsHandler) Type() models.StepType { return models.StepTypeJS }

func (h *jsHandler) Execute(ctx context.Context, step *models.Step, data map[string]any, exec *models.ExecutionContext, ctl Control) (models.StepResult, error) {
	out, err := h.deps.Sandbox.Run(ctx, step.Code, script.Env{
		LastResponse: exec.LastResponseText,
		Item:         exec.Item,
		Index:        exec.Index,
		Total:        exec.Total,
		Steps:        exec.StepFields(),
	})
	if err != nil {
		return nil, fmt.Errorf("js step %q: %w", step.ID, err)
	}
	return &models.ScriptResult{Response: out}, nil
}
