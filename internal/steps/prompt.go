package steps

import (
	"context"
	"fmt"

	"github.com/opencode-ai/promptchain/internal/agent"
	"github.com/opencode-ai/promptchain/internal/models"
	"github.com/opencode-ai/promptchain/internal/templates"
)

type promptHandler struct {
	deps Deps
}

func (h *promptHandler) Type() models.StepType { return models.StepTypePrompt }

func (h *promptHandler) Execute(ctx context.Context, step *models.Step, data map[string]any, exec *models.ExecutionContext, ctl Control) (models.StepResult, error) {
	text := templates.Render(step.Template, data)
	reply, err := send(ctx, h.deps, step, text)
	if err != nil {
		return nil, err
	}
	return promptResult(step, reply), nil
}

// send delivers text to the agent, starting a fresh conversation first when
// the step asks for one.
func send(ctx context.Context, deps Deps, step *models.Step, text string) (*agent.Reply, error) {
	if deps.Agent == nil {
		return nil, fmt.Errorf("no agent configured")
	}
	if step.NewConversation {
		started, err := deps.Agent.StartNewConversation(ctx)
		if err != nil {
			return nil, fmt.Errorf("start new conversation: %w", err)
		}
		if !started {
			deps.Logger.Warn().Str("step", step.ID).Msg("agent did not start a new conversation")
		}
	}

	var reply *agent.Reply
	var err error
	if step.ResponseType == models.ResponseTypeImage {
		reply, err = deps.Agent.AskWith(ctx, text, agent.AskOptions{Expect: agent.ExpectImage})
	} else {
		reply, err = deps.Agent.Ask(ctx, text)
	}
	if err != nil {
		return nil, fmt.Errorf("agent reply: %w", err)
	}
	if reply == nil {
		return nil, agent.ErrNoReply
	}
	return reply, nil
}

func promptResult(step *models.Step, reply *agent.Reply) *models.PromptResult {
	if step.ResponseType == models.ResponseTypeImage {
		images := reply.Images
		if images == nil {
			images = []string{}
		}
		return &models.PromptResult{Images: images}
	}
	return &models.PromptResult{Response: reply.Text}
}
