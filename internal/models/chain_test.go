package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDynamicElementsJSON(t *testing.T) {
	var c Chain
	require.NoError(t, json.Unmarshal([]byte(`{"entryId":"a","dynamicElements":["x",{"k":1}],"steps":[{"id":"a","type":"prompt"}]}`), &c))
	require.Equal(t, []any{"x", map[string]any{"k": float64(1)}}, c.DynamicElements.Items)

	require.NoError(t, json.Unmarshal([]byte(`{"dynamicElements":"range(3)","steps":[]}`), &c))
	require.Nil(t, c.DynamicElements.Items)
	require.Equal(t, "range(3)", c.DynamicElements.Expression)

	out, err := json.Marshal(DynamicElements{Items: []any{"a"}})
	require.NoError(t, err)
	require.JSONEq(t, `["a"]`, string(out))
}

func TestDynamicElementsYAML(t *testing.T) {
	src := `
entryId: s1
dynamicElements:
  - name: one
    n: 2
  - two
steps:
  - id: s1
    type: template
    template: "hi {{item}}"
`
	var c Chain
	require.NoError(t, yaml.Unmarshal([]byte(src), &c))
	require.Len(t, c.DynamicElements.Items, 2)
	require.Equal(t, map[string]any{"name": "one", "n": float64(2)}, c.DynamicElements.Items[0])
	require.Equal(t, StepTypeTemplate, c.Steps[0].Type)
}

func TestChainCloneIsIndependent(t *testing.T) {
	c := &Chain{Steps: []Step{{ID: "a", Template: "one"}}}
	clone := c.Clone()
	clone.Steps[0].Template = "two"
	require.Equal(t, "one", c.Steps[0].Template)
}

func TestExecutionContextSetResultOnce(t *testing.T) {
	ctx := NewExecutionContext("Bob", 1, 1)
	require.NoError(t, ctx.SetResult("s1", &PromptResult{Response: "hello"}))
	require.Equal(t, "hello", ctx.LastResponseText)
	require.ErrorIs(t, ctx.SetResult("s1", &PromptResult{Response: "again"}), ErrResultExists)

	data := ctx.TemplateData()
	steps := data["steps"].(map[string]any)
	require.Equal(t, "hello", steps["s1"].(map[string]any)["response"])
	require.Equal(t, "Bob", data["item"])
}

func TestStringify(t *testing.T) {
	require.Equal(t, "", Stringify(nil))
	require.Equal(t, "3", Stringify(float64(3)))
	require.Equal(t, `{"a":"<b>"}`, Stringify(map[string]any{"a": "<b>"}))
	require.Equal(t, "true", Stringify(true))
}
