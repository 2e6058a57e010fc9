package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/promptchain/internal/batch"
	"github.com/opencode-ai/promptchain/internal/config"
	"github.com/opencode-ai/promptchain/internal/db"
	"github.com/opencode-ai/promptchain/internal/elements"
	"github.com/opencode-ai/promptchain/internal/logging"
	"github.com/opencode-ai/promptchain/internal/models"
)

func withOutputFlags(t *testing.T, json, jsonl bool) {
	t.Helper()
	origJSON, origJSONL := jsonOutput, jsonlOutput
	jsonOutput, jsonlOutput = json, jsonl
	t.Cleanup(func() {
		jsonOutput, jsonlOutput = origJSON, origJSONL
	})
}

func TestParseItemsText(t *testing.T) {
	parser := elements.NewParser(logging.Component("elements"))
	ctx := context.Background()

	items := parseItemsText(ctx, parser, `["alpha", "beta"]`, false)
	assert.Equal(t, []any{"alpha", "beta"}, items)

	lines := parseItemsText(ctx, parser, "one\n\n  two  \n", true)
	assert.Equal(t, []any{"one", "two"}, lines)

	assert.Empty(t, parseItemsText(ctx, parser, "   ", false))
}

func TestQueueValues(t *testing.T) {
	ctx := context.Background()

	values, err := queueValues(ctx, []string{"a", `{"id":1}`}, false, "")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", `{"id":1}`}, values)

	values, err = queueValues(ctx, []string{`{"id":1}`}, true, `["x"]`)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, map[string]any{"id": float64(1)}, values[0])
	assert.Equal(t, "x", values[1])

	_, err = queueValues(ctx, []string{"{not json"}, true, "")
	assert.Error(t, err)
}

func TestQueueRowsAndShortID(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := queueRows([]*models.QueueItem{
		{ID: "0123456789abcdef", Position: 0, Value: []byte(`"hello"`), CreatedAt: created},
		{ID: "short", Position: 1, Value: []byte(`{"a":1}`), CreatedAt: created},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, "0", rows[0][0])
	assert.Equal(t, "01234567", rows[0][1])
	assert.Equal(t, "hello", rows[0][2])
	assert.Equal(t, "short", rows[1][1])
	assert.Equal(t, `{"a":1}`, rows[1][2])
}

func TestParseKVValue(t *testing.T) {
	assert.Equal(t, float64(42), parseKVValue("42", false))
	assert.Equal(t, "42", parseKVValue("42", true))
	assert.Equal(t, []any{"a"}, parseKVValue(`["a"]`, false))
	assert.Equal(t, "plain text", parseKVValue("plain text", false))
}

func TestRenderContext(t *testing.T) {
	data, err := renderContext(`{"name":"Ada"}`, "", false, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ada"}, data)

	data, err = renderContext("", `{"id":7}`, true, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": float64(7)}, data["item"])
	assert.Equal(t, 2, data["index"])
	assert.Equal(t, 5, data["total"])

	data, err = renderContext("", "plain", true, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, "plain", data["item"])

	_, err = renderContext("[1,2]", "", false, 0, 0)
	assert.Error(t, err)
}

func TestValidateChainRef(t *testing.T) {
	dir := t.TempDir()

	ok := validateChainRef("greet", dir)
	assert.True(t, ok.Valid)
	assert.Equal(t, "greet", ok.Chain)
	assert.Empty(t, ok.Errors)

	missing := validateChainRef("no-such-chain", dir)
	assert.False(t, missing.Valid)
	assert.Len(t, missing.Errors, 1)
}

func TestChainSourceFilters(t *testing.T) {
	dir := "/work/project"
	list := []*models.Chain{
		{Name: "greet", Source: "builtin"},
		{Name: "local", Source: "/work/project/.promptchain/chains/local.yaml"},
		{Name: "mine", Source: "/home/me/.config/promptchain/chains/mine.yaml"},
		{Name: "shared", Source: "/usr/share/promptchain/chains/shared.yaml"},
	}

	assert.Equal(t, "builtin", sourceKind(list[0].Source, dir))
	assert.Equal(t, "project", sourceKind(list[1].Source, dir))
	assert.Equal(t, "user", sourceKind(list[2].Source, dir))
	assert.Equal(t, "system", sourceKind(list[3].Source, dir))
	assert.Equal(t, "-", sourceKind("", dir))

	assert.Len(t, filterChainsBySource(list, "", dir), 4)
	project := filterChainsBySource(list, " Project ", dir)
	require.Len(t, project, 1)
	assert.Equal(t, "local", project[0].Name)

	assert.Equal(t, "mine", findChainByName(list, "MINE").Name)
	assert.Nil(t, findChainByName(list, "absent"))
}

func TestReportRunSummarizesFailures(t *testing.T) {
	withOutputFlags(t, false, false)

	summary := &batch.Summary{
		SessionID: "s1",
		Chain:     "greet",
		Processed: 2,
		Failures:  []batch.ItemFailure{{Index: 1, Item: "b", Err: errors.New("boom")}},
		Duration:  1500 * time.Millisecond,
	}
	var out bytes.Buffer
	err := reportRun(&out, summary, nil, nil)

	require.Error(t, err)
	assert.Equal(t, "1 item(s) failed", err.Error())
	assert.Contains(t, out.String(), "Processed 2 item(s), 1 failed in 1.5s")
}

func TestReportRunLockRefused(t *testing.T) {
	withOutputFlags(t, false, false)

	summary := &batch.Summary{
		LockRefused: true,
		Holder:      &models.LockRecord{OwnerID: "host-a:123"},
	}
	var out bytes.Buffer
	err := reportRun(&out, summary, nil, batch.ErrLockHeld)

	var preflight *PreflightError
	require.ErrorAs(t, err, &preflight)
	assert.Contains(t, preflight.Message, "host-a:123")
	assert.Empty(t, out.String())
}

func TestReportRunSuccessAndRunError(t *testing.T) {
	withOutputFlags(t, false, false)

	var out bytes.Buffer
	require.NoError(t, reportRun(&out, &batch.Summary{Processed: 3, Cancelled: true}, nil, nil))
	assert.Contains(t, out.String(), "Processed 3 item(s) (cancelled)")

	runErr := errors.New("queue unavailable")
	assert.Equal(t, runErr, reportRun(&bytes.Buffer{}, nil, nil, runErr))
}

func TestBuildRunReport(t *testing.T) {
	summary := &batch.Summary{
		SessionID: "s1",
		Chain:     "greet",
		Processed: 1,
		Duration:  time.Second,
		Holder:    &models.LockRecord{OwnerID: "other"},
	}
	report := buildRunReport(summary, nil, errors.New("stopped"))

	assert.Equal(t, "s1", report.SessionID)
	assert.Equal(t, "greet", report.Chain)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, "other", report.Holder)
	assert.Equal(t, "stopped", report.Error)
	assert.NotNil(t, report.Items)
}

func TestItemCollector(t *testing.T) {
	exec := models.NewExecutionContext("a", 0, 1)
	require.NoError(t, exec.SetResult("hello", &models.PromptResult{Response: "hi"}))

	c := &itemCollector{}
	c.ItemFinished(batch.ItemOutcome{Index: 0, Item: "a", Exec: exec, Duration: time.Second})
	c.ItemFinished(batch.ItemOutcome{Index: 1, Item: "b", Err: errors.New("boom")})

	items := c.items()
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Item)
	assert.Contains(t, items[0].Steps, "hello")
	assert.Equal(t, "boom", items[1].Error)
}

func TestConsoleObserver(t *testing.T) {
	withOutputFlags(t, false, false)
	if _, ok := os.LookupEnv("PROMPTCHAIN_NO_PROGRESS"); ok {
		t.Skip("progress disabled by environment")
	}
	if _, ok := os.LookupEnv("NO_PROGRESS"); ok {
		t.Skip("progress disabled by environment")
	}

	var out bytes.Buffer
	o := newConsoleObserver(&out)
	o.Started(batch.StartInfo{Chain: "greet", QueueSize: 2, Mode: batch.ModeAutoRemove})
	o.Progress(0, 2)
	o.ItemFinished(batch.ItemOutcome{Item: "alpha"})
	o.Progress(1, 2)
	o.ItemFinished(batch.ItemOutcome{Item: "beta", Err: errors.New("agent gone")})
	o.Progress(2, 3)
	o.Finished(&batch.Summary{})

	text := out.String()
	assert.Contains(t, text, "Running chain greet over 2 item(s)")
	assert.Contains(t, text, "[1/2]... alpha done")
	assert.Contains(t, text, "[2/2]... failed: agent gone")
	assert.True(t, strings.HasSuffix(text, "[3/3]... skipped\n"))
}

func TestResolveDaemonAddrs(t *testing.T) {
	origGRPC, origHTTP := serveGRPCAddr, serveHTTPAddr
	t.Cleanup(func() {
		serveGRPCAddr, serveHTTPAddr = origGRPC, origHTTP
	})
	serveGRPCAddr, serveHTTPAddr = "", ""

	cfg := config.DefaultConfig()
	assert.Equal(t, "127.0.0.1:7090", resolveGRPCAddr(cfg))
	assert.Equal(t, "127.0.0.1:7091", resolveHTTPAddr(cfg))

	serveGRPCAddr, serveHTTPAddr = ":9000", ":9001"
	assert.Equal(t, ":9000", resolveGRPCAddr(cfg))
	assert.Equal(t, ":9001", resolveHTTPAddr(cfg))
}

func TestCollectStatus(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	origConfig := appConfig
	appConfig = config.DefaultConfig()
	t.Cleanup(func() { appConfig = origConfig })

	_, err := db.NewQueueRepository(database).Append(ctx, "default", "a", "b")
	require.NoError(t, err)
	require.NoError(t, db.NewKVRepository(database).Set(ctx, "last_url", "https://example.com"))
	_, err = db.NewEventRepository(database).Record(ctx, models.EventTypeBatchStarted, models.EntityTypeBatch, "s1", nil)
	require.NoError(t, err)
	acquired, err := db.NewLockRepository(database).TryAcquire(ctx, appConfig.Lock.Name, "owner-1", time.Now(), appConfig.Lock.TTL)
	require.NoError(t, err)
	require.True(t, acquired)

	status, err := collectStatus(ctx, database, 10)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"default": 2}, status.Queues)
	assert.Equal(t, []string{"last_url"}, status.Keys)
	require.Len(t, status.Events, 1)
	assert.Equal(t, lockStateHeld, status.Lock.State)
	assert.Equal(t, "owner-1", status.Lock.OwnerID)
}

func TestResolveAskPrompt(t *testing.T) {
	got, err := resolveAskPrompt([]string{"  hi  "}, "", false, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	got, err = resolveAskPrompt(nil, "", true, strings.NewReader("from stdin\n"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	path := t.TempDir() + "/prompt.txt"
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o644))
	got, err = resolveAskPrompt(nil, path, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "from file", got)

	_, err = resolveAskPrompt(nil, "", false, nil)
	assert.Error(t, err)
	_, err = resolveAskPrompt([]string{"x"}, path, false, nil)
	assert.Error(t, err)
	_, err = resolveAskPrompt([]string{"   "}, "", false, nil)
	assert.Error(t, err)
}

func TestSummarizeChain(t *testing.T) {
	c := &models.Chain{
		Name:        "two",
		Description: "two steps",
		Source:      "builtin",
		Steps: []models.Step{
			{ID: "b", Type: models.StepTypePrompt, Template: "x"},
			{ID: "a", Type: models.StepTypePrompt, Template: "y", Next: "b"},
		},
	}
	summary := summarizeChain(c)
	assert.Equal(t, "a", summary.Entry)
	assert.Equal(t, 2, summary.Steps)
	assert.Equal(t, "builtin", summary.Source)

	empty := summarizeChain(&models.Chain{Name: "empty"})
	assert.Equal(t, "", empty.Entry)
	assert.Equal(t, 0, empty.Steps)
}
