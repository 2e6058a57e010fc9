package models

import (
	"encoding/json"
	"time"
)

// QueueItem is one persisted batch input.
type QueueItem struct {
	// ID is the unique identifier for the item.
	ID string `json:"id"`

	// Queue is the name of the queue the item belongs to.
	Queue string `json:"queue"`

	// Position is the 0-based position within the queue at read time.
	Position int `json:"position"`

	// Value is the JSON encoded item.
	Value json.RawMessage `json:"value"`

	// CreatedAt is when the item was enqueued.
	CreatedAt time.Time `json:"created_at"`
}

// Decoded returns the item value as a generic Go value.
func (q *QueueItem) Decoded() (any, error) {
	if len(q.Value) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(q.Value, &v); err != nil {
		return nil, err
	}
	return v, nil
}
