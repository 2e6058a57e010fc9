package models

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType categorizes events in the run history.
type EventType string

const (
	// Batch events
	EventTypeBatchStarted   EventType = "batch.started"
	EventTypeBatchFinished  EventType = "batch.finished"
	EventTypeBatchCancelled EventType = "batch.cancelled"
	EventTypeBatchFailed    EventType = "batch.failed"

	// Item events
	EventTypeItemCompleted EventType = "item.completed"
	EventTypeItemFailed    EventType = "item.failed"

	// Lock events
	EventTypeLockRefused EventType = "lock.refused"
)

// EntityType identifies the type of entity an event relates to.
type EntityType string

const (
	EntityTypeBatch EntityType = "batch"
	EntityTypeQueue EntityType = "queue"
	EntityTypeLock  EntityType = "lock"
)

// Event represents an append-only log entry.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// EntityType identifies what kind of entity this event relates to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the ID of the related entity.
	EntityID string `json:"entity_id"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Metadata contains additional context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks if the event is valid.
func (e *Event) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(string(e.Type)) == "" {
		validation.AddMessage("type", "event type is required")
	}
	if strings.TrimSpace(string(e.EntityType)) == "" {
		validation.AddMessage("entity_type", "entity_type is required")
	}
	if strings.TrimSpace(e.EntityID) == "" {
		validation.AddMessage("entity_id", "entity_id is required")
	}
	return validation.Err()
}

// BatchStartedPayload is the payload for batch.started events.
type BatchStartedPayload struct {
	Chain     string `json:"chain"`
	Mode      string `json:"mode"`
	QueueSize int    `json:"queue_size"`
}

// ItemPayload is the payload for item.completed and item.failed events.
type ItemPayload struct {
	Index    int    `json:"index"`
	Item     any    `json:"item"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// BatchFinishedPayload is the payload for batch.finished, batch.failed and batch.cancelled events.
type BatchFinishedPayload struct {
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Cancelled bool   `json:"cancelled"`
	Error     string `json:"error,omitempty"`
}

// LockRefusedPayload is the payload for lock.refused events.
type LockRefusedPayload struct {
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
	Holder  string `json:"holder,omitempty"`
}
