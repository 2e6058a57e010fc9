// Package events records batch run history in the event log.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opencode-ai/promptchain/internal/models"
)

// Repository is the minimal interface needed to write events.
type Repository interface {
	Append(ctx context.Context, event *models.Event) error
}

func appendEvent(ctx context.Context, repo Repository, eventType models.EventType, entityType models.EntityType, entityID string, payload any) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}
	if entityID == "" {
		return fmt.Errorf("%s id is required", entityType)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return repo.Append(ctx, &models.Event{
		Type:       eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    data,
	})
}

// LogBatchStarted records the start of a batch.
func LogBatchStarted(ctx context.Context, repo Repository, batchID string, payload models.BatchStartedPayload) error {
	return appendEvent(ctx, repo, models.EventTypeBatchStarted, models.EntityTypeBatch, batchID, payload)
}

// LogItem records a finished item. A non-empty payload error marks it failed.
func LogItem(ctx context.Context, repo Repository, batchID string, payload models.ItemPayload) error {
	eventType := models.EventTypeItemCompleted
	if payload.Error != "" {
		eventType = models.EventTypeItemFailed
	}
	return appendEvent(ctx, repo, eventType, models.EntityTypeBatch, batchID, payload)
}

// LogBatchFinished records the end of a batch as finished, failed or cancelled.
func LogBatchFinished(ctx context.Context, repo Repository, batchID string, payload models.BatchFinishedPayload) error {
	eventType := models.EventTypeBatchFinished
	switch {
	case payload.Error != "":
		eventType = models.EventTypeBatchFailed
	case payload.Cancelled:
		eventType = models.EventTypeBatchCancelled
	}
	return appendEvent(ctx, repo, eventType, models.EntityTypeBatch, batchID, payload)
}

// LogLockRefused records a run that did not start because the lock was held.
func LogLockRefused(ctx context.Context, repo Repository, payload models.LockRefusedPayload) error {
	return appendEvent(ctx, repo, models.EventTypeLockRefused, models.EntityTypeLock, payload.Name, payload)
}
