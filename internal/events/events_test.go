package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/promptchain/internal/batch"
	"github.com/opencode-ai/promptchain/internal/models"
)

type fakeRepo struct {
	events []*models.Event
}

func (r *fakeRepo) Append(ctx context.Context, event *models.Event) error {
	r.events = append(r.events, event)
	return nil
}

func (r *fakeRepo) last() *models.Event {
	return r.events[len(r.events)-1]
}

func TestLogItemMarksFailures(t *testing.T) {
	repo := &fakeRepo{}

	if err := LogItem(context.Background(), repo, "batch-1", models.ItemPayload{Index: 1, Item: "a"}); err != nil {
		t.Fatalf("LogItem failed: %v", err)
	}
	if repo.last().Type != models.EventTypeItemCompleted {
		t.Fatalf("unexpected event type: %q", repo.last().Type)
	}

	if err := LogItem(context.Background(), repo, "batch-1", models.ItemPayload{Index: 2, Error: "boom"}); err != nil {
		t.Fatalf("LogItem failed: %v", err)
	}
	if repo.last().Type != models.EventTypeItemFailed {
		t.Fatalf("unexpected event type: %q", repo.last().Type)
	}
	if repo.last().EntityID != "batch-1" {
		t.Fatalf("unexpected entity id: %q", repo.last().EntityID)
	}
}

func TestLogRequiresRepositoryAndID(t *testing.T) {
	if err := LogBatchStarted(context.Background(), nil, "b", models.BatchStartedPayload{}); err == nil {
		t.Fatal("expected error for nil repository")
	}
	if err := LogBatchStarted(context.Background(), &fakeRepo{}, "", models.BatchStartedPayload{}); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestRecorderFinishedEventTypes(t *testing.T) {
	tests := []struct {
		name    string
		summary *batch.Summary
		want    models.EventType
	}{
		{"finished", &batch.Summary{SessionID: "s", Processed: 2}, models.EventTypeBatchFinished},
		{"cancelled", &batch.Summary{SessionID: "s", Cancelled: true}, models.EventTypeBatchCancelled},
		{"failed", &batch.Summary{SessionID: "s", Err: errors.New("boom")}, models.EventTypeBatchFailed},
		{"refused", &batch.Summary{SessionID: "s", LockRefused: true, Holder: &models.LockRecord{OwnerID: "other"}}, models.EventTypeLockRefused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{}
			rec := NewRecorder(repo, zerolog.Nop(), "promptchain.run", "me")
			rec.Finished(tt.summary)
			if len(repo.events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(repo.events))
			}
			if repo.last().Type != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, repo.last().Type)
			}
		})
	}
}

func TestRecorderItemPayload(t *testing.T) {
	repo := &fakeRepo{}
	rec := NewRecorder(repo, zerolog.Nop(), "run", "me")
	rec.Started(batch.StartInfo{SessionID: "s", Chain: "greet", Mode: batch.ModePositional, QueueSize: 3})
	rec.ItemFinished(batch.ItemOutcome{SessionID: "s", Index: 1, Item: "Bob", Duration: 1500 * time.Millisecond})

	var payload models.ItemPayload
	if err := json.Unmarshal(repo.last().Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Item != "Bob" || payload.Duration != "1.5s" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if repo.events[0].Type != models.EventTypeBatchStarted {
		t.Fatalf("unexpected first event: %q", repo.events[0].Type)
	}
}
