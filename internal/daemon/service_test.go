package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/opencode-ai/promptchain/internal/adapters"
	"github.com/opencode-ai/promptchain/internal/batch"
	"github.com/opencode-ai/promptchain/internal/chain"
	"github.com/opencode-ai/promptchain/internal/db"
	"github.com/opencode-ai/promptchain/internal/models"
	"github.com/opencode-ai/promptchain/internal/queue"
	"github.com/opencode-ai/promptchain/internal/steps"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func newTestService(t *testing.T) (*Service, *adapters.EchoAgent) {
	t.Helper()
	database, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Migrate(context.Background()))

	logger := zerolog.Nop()
	echo := adapters.NewEchoAgent()
	executor := steps.NewExecutor(steps.Deps{Agent: echo, Logger: logger, Sleep: noSleep})
	runner := chain.NewRunner(executor, nil, logger, 0)
	runner.Sleep = noSleep

	controller := &batch.Controller{
		Runner: runner,
		Chain: &models.Chain{Name: "hello", Steps: []models.Step{
			{ID: "s1", Type: models.StepTypePrompt, Template: "hello {{item}}"},
		}},
		Mode:   batch.ModeAutoRemove,
		Logger: logger,
		Sleep:  noSleep,
	}
	q := queue.NewPersistent(db.NewQueueRepository(database), "default")
	return NewService(controller, q, time.Hour, logger), echo
}

func TestPollDrainsQueue(t *testing.T) {
	svc, echo := newTestService(t)
	ctx := context.Background()

	svc.poll(ctx)
	require.Empty(t, echo.Sent(), "an empty queue does not start a batch")

	require.NoError(t, svc.Queue().Append(ctx, "Ann", "Bob"))
	svc.poll(ctx)
	require.Equal(t, []string{"hello Ann", "hello Bob"}, echo.Sent())

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	require.False(t, st.Running)
	require.Equal(t, 0, st.Pending)
	require.Equal(t, "success", st.Last.Outcome)
	require.Equal(t, 2, st.Last.Processed)
}

func TestHealthStatusIdle(t *testing.T) {
	svc, _ := newTestService(t)
	resp, err := svc.Health().Check(context.Background(), &healthpb.HealthCheckRequest{Service: BatchHealthService})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	resp, err = svc.Health().Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestHTTPQueueAPI(t *testing.T) {
	svc, _ := newTestService(t)
	server := httptest.NewServer(svc.Handler(nil))
	defer server.Close()

	resp, err := http.Post(server.URL+"/v1/queue", "application/json", strings.NewReader(`["a", {"n": 1}]`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(server.URL+"/v1/queue", "application/json", strings.NewReader(`"single"`))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Post(server.URL+"/v1/queue", "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(server.URL + "/v1/queue")
	require.NoError(t, err)
	var listing struct {
		Queue string `json:"queue"`
		Items []any  `json:"items"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	resp.Body.Close()
	require.Equal(t, "default", listing.Queue)
	require.Equal(t, []any{"a", map[string]any{"n": float64(1)}, "single"}, listing.Items)

	resp, err = http.Post(server.URL+"/v1/cancel", "application/json", nil)
	require.NoError(t, err)
	var cancel map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cancel))
	resp.Body.Close()
	require.False(t, cancel["cancelled"], "nothing running")

	resp, err = http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/v1/status")
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	require.Equal(t, 3, st.Pending)
}

func TestRunReturnsOnCanceledContext(t *testing.T) {
	svc, _ := newTestService(t)
	d, err := New(svc, nil, zerolog.Nop(), Options{GRPCAddr: "127.0.0.1:0", HTTPAddr: "127.0.0.1:0"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}

func TestNewRequiresService(t *testing.T) {
	_, err := New(nil, nil, zerolog.Nop(), Options{})
	require.Error(t, err)
}
