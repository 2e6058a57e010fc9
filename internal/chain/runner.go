package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/promptchain/internal/elements"
	"github.com/opencode-ai/promptchain/internal/httpclient"
	"github.com/opencode-ai/promptchain/internal/models"
	"github.com/opencode-ai/promptchain/internal/steps"
	"github.com/opencode-ai/promptchain/internal/templates"
)

// StepExecutor runs a single step against an execution context.
type StepExecutor interface {
	Execute(ctx context.Context, step *models.Step, exec *models.ExecutionContext, ctl steps.Control) (models.StepResult, error)
}

// Runner runs one chain for one item.
type Runner struct {
	Executor StepExecutor
	Parser   *elements.Parser
	Logger   zerolog.Logger

	// StepWait elapses between consecutive steps.
	StepWait time.Duration

	// Sleep waits between steps. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a runner.
func NewRunner(executor StepExecutor, parser *elements.Parser, logger zerolog.Logger, stepWait time.Duration) *Runner {
	return &Runner{Executor: executor, Parser: parser, Logger: logger, StepWait: stepWait}
}

// Run walks c from its entry step. The first step failure ends the run and
// is returned as a *StepError. A cancel observed after a step ends the run
// with steps.ErrCancelled; the step's result stays recorded in exec.
func (r *Runner) Run(ctx context.Context, c *models.Chain, exec *models.ExecutionContext, ctl steps.Control) error {
	if err := Validate(c); err != nil {
		return err
	}
	entry, err := ResolveEntry(c)
	if err != nil {
		return err
	}
	if exec.Steps == nil {
		exec.Steps = make(map[string]models.StepResult)
	}
	exec.ChainScratch.DynamicElements = r.chainElements(ctx, c, exec)

	sleep := r.Sleep
	if sleep == nil {
		sleep = httpclient.Sleep
	}

	visited := make(map[string]bool, len(c.Steps))
	for current := entry; current != nil; {
		if visited[current.ID] {
			return fmt.Errorf("%w at step %q", ErrCycle, current.ID)
		}
		visited[current.ID] = true

		r.Logger.Info().
			Str("step", current.ID).
			Str("type", string(current.Type)).
			Int("index", exec.Index).
			Msg("running step")

		if _, err := r.Executor.Execute(ctx, current, exec, ctl); err != nil {
			return &StepError{StepID: current.ID, Type: current.Type, Err: err}
		}
		if ctl.Cancelled != nil && ctl.Cancelled() {
			r.Logger.Info().Str("step", current.ID).Msg("chain stopped by cancellation")
			return fmt.Errorf("%w after step %q", steps.ErrCancelled, current.ID)
		}

		if current.Next == "" {
			return nil
		}
		next, ok := c.StepByID(current.Next)
		if !ok {
			r.Logger.Warn().Str("step", current.ID).Str("next", current.Next).Msg("next step not found; ending chain")
			return nil
		}

		if err := sleep(ctx, r.StepWait); err != nil {
			return err
		}
		current = next
	}
	return nil
}

// chainElements resolves the chain-level dynamic elements for this run.
func (r *Runner) chainElements(ctx context.Context, c *models.Chain, exec *models.ExecutionContext) []any {
	if c.DynamicElements.Items != nil {
		return append([]any(nil), c.DynamicElements.Items...)
	}
	if c.DynamicElements.Expression == "" || r.Parser == nil {
		return nil
	}
	return r.Parser.Parse(ctx, templates.Render(c.DynamicElements.Expression, exec.TemplateData()))
}
