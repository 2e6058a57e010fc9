package chain

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/promptchain/internal/adapters"
	"github.com/opencode-ai/promptchain/internal/elements"
	"github.com/opencode-ai/promptchain/internal/models"
	"github.com/opencode-ai/promptchain/internal/steps"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func newRunner(t *testing.T, logs *bytes.Buffer) (*Runner, *adapters.EchoAgent) {
	t.Helper()
	logger := zerolog.Nop()
	if logs != nil {
		logger = zerolog.New(logs)
	}
	echo := adapters.NewEchoAgent()
	executor := steps.NewExecutor(steps.Deps{Agent: echo, Logger: logger, Sleep: noSleep})
	r := NewRunner(executor, elements.NewParser(logger), logger, time.Second)
	r.Sleep = noSleep
	return r, echo
}

func TestResolveEntry(t *testing.T) {
	c := &models.Chain{EntryID: "b", Steps: []models.Step{{ID: "a", Next: "b"}, {ID: "b"}}}
	entry, err := ResolveEntry(c)
	require.NoError(t, err)
	require.Equal(t, "b", entry.ID)

	c.EntryID = "missing"
	entry, err = ResolveEntry(c)
	require.NoError(t, err)
	require.Equal(t, "a", entry.ID, "only unreferenced step")

	c = &models.Chain{Steps: []models.Step{{ID: "x"}, {ID: "y"}}}
	entry, err = ResolveEntry(c)
	require.NoError(t, err)
	require.Equal(t, "x", entry.ID, "ambiguous falls back to first")

	_, err = ResolveEntry(&models.Chain{})
	require.ErrorIs(t, err, ErrEmptyChain)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(&models.Chain{Steps: []models.Step{{ID: "a", Next: "b"}, {ID: "b"}}}))

	err := Validate(&models.Chain{EntryID: "a", Steps: []models.Step{{ID: "a", Next: "b"}, {ID: "b", Next: "a"}}})
	require.ErrorIs(t, err, ErrCycle)

	err = Validate(&models.Chain{Steps: []models.Step{{ID: "a"}, {ID: "a"}}})
	require.ErrorIs(t, err, ErrDuplicateID)

	err = Validate(&models.Chain{Steps: []models.Step{{ID: " "}}})
	require.ErrorIs(t, err, ErrMissingID)
}

func TestWarnings(t *testing.T) {
	c := &models.Chain{EntryID: "nope", Steps: []models.Step{{ID: "a", Next: "ghost"}}}
	warnings := Warnings(c)
	require.Len(t, warnings, 2)
	require.Contains(t, warnings[1], "ghost")
}

func TestWarningsForUnknownStepReferences(t *testing.T) {
	c := &models.Chain{Steps: []models.Step{
		{ID: "a", Type: models.StepTypePrompt, Template: "hi {{item}}", Next: "b"},
		{ID: "b", Type: models.StepTypeTemplate, Template: "{steps.a.response} {{steps.typo.response}} {steps.typo.data}"},
	}}
	warnings := Warnings(c)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], `unknown step "typo"`)
}

func TestRunThreadsResultsBetweenSteps(t *testing.T) {
	r, echo := newRunner(t, nil)
	c := &models.Chain{
		EntryID: "s1",
		Steps: []models.Step{
			{ID: "s1", Type: models.StepTypePrompt, Template: "hi {{item}}", Next: "s2"},
			{ID: "s2", Type: models.StepTypeTemplate, Template: "echo {steps.s1.response}"},
		},
	}
	exec := models.NewExecutionContext("Bob", 1, 1)

	require.NoError(t, r.Run(context.Background(), c, exec, steps.Control{}))

	sent := echo.Sent()
	require.Len(t, sent, 2)
	require.Equal(t, "hi Bob", sent[0])

	first, ok := exec.Result("s1")
	require.True(t, ok)
	require.Equal(t, "echo "+first.Text(), sent[1])
	require.Equal(t, exec.LastResponseText, mustResult(t, exec, "s2").Text())
}

func TestRunWaitsBetweenStepsOnly(t *testing.T) {
	r, _ := newRunner(t, nil)
	var waits []time.Duration
	r.Sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	c := &models.Chain{Steps: []models.Step{
		{ID: "a", Type: models.StepTypePrompt, Template: "1", Next: "b"},
		{ID: "b", Type: models.StepTypePrompt, Template: "2", Next: "c"},
		{ID: "c", Type: models.StepTypePrompt, Template: "3"},
	}}
	require.NoError(t, r.Run(context.Background(), c, models.NewExecutionContext(nil, 1, 1), steps.Control{}))
	require.Equal(t, []time.Duration{time.Second, time.Second}, waits)
}

func TestRunEndsOnUnknownNext(t *testing.T) {
	var logs bytes.Buffer
	r, echo := newRunner(t, &logs)
	c := &models.Chain{Steps: []models.Step{
		{ID: "a", Type: models.StepTypePrompt, Template: "only", Next: "ghost"},
	}}
	require.NoError(t, r.Run(context.Background(), c, models.NewExecutionContext(nil, 1, 1), steps.Control{}))
	require.Len(t, echo.Sent(), 1)
	require.True(t, strings.Contains(logs.String(), "next step not found"))
}

func TestRunRejectsCycle(t *testing.T) {
	r, echo := newRunner(t, nil)
	c := &models.Chain{EntryID: "a", Steps: []models.Step{
		{ID: "a", Type: models.StepTypePrompt, Template: "x", Next: "b"},
		{ID: "b", Type: models.StepTypePrompt, Template: "y", Next: "a"},
	}}
	err := r.Run(context.Background(), c, models.NewExecutionContext(nil, 1, 1), steps.Control{})
	require.ErrorIs(t, err, ErrCycle)
	require.Empty(t, echo.Sent())
}

func TestRunWrapsStepFailure(t *testing.T) {
	r, _ := newRunner(t, nil)
	c := &models.Chain{Steps: []models.Step{
		{ID: "a", Type: models.StepTypePrompt, Template: "x", Next: "b"},
		{ID: "b", Type: "teleport"},
	}}
	err := r.Run(context.Background(), c, models.NewExecutionContext(nil, 1, 1), steps.Control{})
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	require.Equal(t, "b", stepErr.StepID)
	require.ErrorIs(t, err, steps.ErrUnknownStepType)
}

func TestRunResolvesChainElements(t *testing.T) {
	r, echo := newRunner(t, nil)
	c := &models.Chain{
		DynamicElements: models.DynamicElements{Expression: `["red", "blue"]`},
		Steps: []models.Step{
			{ID: "a", Type: models.StepTypeTemplate, Template: "paint {{item}}", UseChainDynamicElements: true},
		},
	}
	exec := models.NewExecutionContext("wall", 1, 1)
	require.NoError(t, r.Run(context.Background(), c, exec, steps.Control{}))
	require.Equal(t, []any{"red", "blue"}, exec.ChainScratch.DynamicElements)
	require.Equal(t, []string{"paint red", "paint blue"}, echo.Sent())
}

func TestRunStopsAfterCancelledTemplateStep(t *testing.T) {
	r, echo := newRunner(t, nil)
	c := &models.Chain{Steps: []models.Step{
		{ID: "a", Type: models.StepTypeTemplate, Elements: `["red", "blue", "green"]`, Template: "paint {{item}}", Next: "b"},
		{ID: "b", Type: models.StepTypePrompt, Template: "summarize"},
	}}
	cancelled := false
	ctl := steps.Control{
		Cancelled:   func() bool { return cancelled },
		SubProgress: func(done, total int) { cancelled = true },
	}
	exec := models.NewExecutionContext("wall", 1, 1)

	err := r.Run(context.Background(), c, exec, ctl)
	require.ErrorIs(t, err, steps.ErrCancelled)
	var stepErr *StepError
	require.False(t, errors.As(err, &stepErr), "cancellation is not a step failure")
	require.Equal(t, []string{"paint red"}, echo.Sent(), "following step must not run")

	partial, ok := mustResult(t, exec, "a").(*models.TemplateResult)
	require.True(t, ok)
	require.True(t, partial.Cancelled)
	require.Len(t, partial.Responses, 1)
	_, ran := exec.Result("b")
	require.False(t, ran)
}

func TestRunStopsBetweenStepsOnCancel(t *testing.T) {
	r, echo := newRunner(t, nil)
	c := &models.Chain{Steps: []models.Step{
		{ID: "a", Type: models.StepTypePrompt, Template: "1", Next: "b"},
		{ID: "b", Type: models.StepTypePrompt, Template: "2"},
	}}
	calls := 0
	ctl := steps.Control{Cancelled: func() bool {
		calls++
		return true
	}}
	err := r.Run(context.Background(), c, models.NewExecutionContext(nil, 1, 1), ctl)
	require.ErrorIs(t, err, steps.ErrCancelled)
	require.Equal(t, []string{"1"}, echo.Sent())
	require.Equal(t, 1, calls)
}

func mustResult(t *testing.T, exec *models.ExecutionContext, id string) models.StepResult {
	t.Helper()
	result, ok := exec.Result(id)
	require.True(t, ok)
	return result
}
