// Package steps executes the individual step kinds of a chain.
package steps

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/promptchain/internal/agent"
	"github.com/opencode-ai/promptchain/internal/elements"
	"github.com/opencode-ai/promptchain/internal/httpclient"
	"github.com/opencode-ai/promptchain/internal/metrics"
	"github.com/opencode-ai/promptchain/internal/models"
	"github.com/opencode-ai/promptchain/internal/script"
)

// ErrUnknownStepType is returned for a step whose type has no handler.
var ErrUnknownStepType = errors.New("unknown step type")

// ErrCancelled ends a chain run that was stopped by the operator before its
// last step finished.
var ErrCancelled = errors.New("chain run cancelled")

// Control carries run-scoped hooks into a step.
type Control struct {
	// Cancelled reports whether the operator asked the run to stop.
	Cancelled func() bool

	// SubProgress receives (done, total) after each template sub-item.
	SubProgress func(done, total int)
}

func (c Control) cancelled() bool {
	return c.Cancelled != nil && c.Cancelled()
}

func (c Control) subProgress(done, total int) {
	if c.SubProgress != nil {
		c.SubProgress(done, total)
	}
}

// Handler executes one step kind.
type Handler interface {
	Type() models.StepType
	Execute(ctx context.Context, step *models.Step, data map[string]any, exec *models.ExecutionContext, ctl Control) (models.StepResult, error)
}

// Registry maps step types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[models.StepType]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.StepType]Handler)}
}

// Register adds or replaces the handler for its type.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Type()] = h
}

// Get returns the handler for t.
func (r *Registry) Get(t models.StepType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Deps are the collaborators handlers use.
type Deps struct {
	Agent   agent.Agent
	HTTP    httpclient.Client
	Parser  *elements.Parser
	Sandbox *script.Sandbox
	Logger  zerolog.Logger

	// SubItemWait elapses between template step sub-items.
	SubItemWait time.Duration

	// Sleep waits between sub-items. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Executor dispatches steps to their handlers and records results.
type Executor struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewExecutor creates an executor with the prompt, template, http and js handlers.
func NewExecutor(deps Deps) *Executor {
	if deps.Sleep == nil {
		deps.Sleep = httpclient.Sleep
	}
	if deps.Parser == nil {
		deps.Parser = elements.NewParser(deps.Logger)
	}
	if deps.Sandbox == nil {
		deps.Sandbox = script.NewSandbox(deps.HTTP, nil, deps.Logger)
	}

	registry := NewRegistry()
	registry.Register(&promptHandler{deps: deps})
	registry.Register(&templateHandler{deps: deps})
	registry.Register(&httpHandler{deps: deps})
	registry.Register(&jsHandler{deps: deps})
	return &Executor{registry: registry, logger: deps.Logger}
}

// Registry exposes the handler registry so callers can add step kinds.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs step against exec, stores its result under the step id and
// updates the last response text.
func (e *Executor) Execute(ctx context.Context, step *models.Step, exec *models.ExecutionContext, ctl Control) (models.StepResult, error) {
	h, ok := e.registry.Get(step.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStepType, step.Type)
	}

	e.logger.Debug().Str("step", step.ID).Str("type", string(step.Type)).Msg("executing step")

	start := time.Now()
	result, err := h.Execute(ctx, step, exec.TemplateData(), exec, ctl)
	metrics.ObserveStep(string(step.Type), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if err := exec.SetResult(step.ID, result); err != nil {
		return nil, err
	}
	return result, nil
}
