package templates

import "github.com/opencode-ai/promptchain/internal/models"

// RenderStep renders a step field against an execution context.
func RenderStep(tmpl string, exec *models.ExecutionContext) string {
	if exec == nil {
		return Render(tmpl, nil)
	}
	return Render(tmpl, exec.TemplateData())
}

// WithItem returns a shallow copy of data with item, index and total replaced.
// The template step uses it to build each sub-item's child context.
func WithItem(data map[string]any, item any, index, total int) map[string]any {
	out := make(map[string]any, len(data)+3)
	for k, v := range data {
		out[k] = v
	}
	out["item"] = item
	out["index"] = index
	out["total"] = total
	return out
}
