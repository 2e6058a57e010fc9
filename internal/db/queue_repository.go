package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opencode-ai/promptchain/internal/models"
)

// Queue repository errors.
var (
	ErrQueueItemNotFound = errors.New("queue item not found")
	ErrInvalidQueueName  = errors.New("queue name is required")
)

// QueueRepository stores named, ordered queues of batch inputs.
type QueueRepository struct {
	db *DB
}

// NewQueueRepository creates a new QueueRepository.
func NewQueueRepository(db *DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Append adds values to the tail of queue.
func (r *QueueRepository) Append(ctx context.Context, queue string, values ...any) ([]*models.QueueItem, error) {
	if strings.TrimSpace(queue) == "" {
		return nil, ErrInvalidQueueName
	}
	if len(values) == 0 {
		return nil, nil
	}

	items := make([]*models.QueueItem, 0, len(values))
	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		var maxSeq sql.NullInt64
		if err := tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM queue_items WHERE queue = ?`, queue).Scan(&maxSeq); err != nil {
			return fmt.Errorf("failed to read queue tail: %w", err)
		}
		seq := maxSeq.Int64

		for _, value := range values {
			data, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("failed to encode queue item: %w", err)
			}
			seq++
			item := &models.QueueItem{
				ID:        uuid.New().String(),
				Queue:     queue,
				Value:     data,
				CreatedAt: time.Now().UTC(),
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO queue_items (id, queue, seq, value_json, created_at) VALUES (?, ?, ?, ?, ?)
			`, item.ID, queue, seq, string(data), item.CreatedAt.Format(time.RFC3339)); err != nil {
				return fmt.Errorf("failed to insert queue item: %w", err)
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// List returns the items of queue in order.
func (r *QueueRepository) List(ctx context.Context, queue string) ([]*models.QueueItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, queue, value_json, created_at FROM queue_items WHERE queue = ? ORDER BY seq
	`, queue)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	defer rows.Close()

	var items []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		item.Position = len(items)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue: %w", err)
	}
	return items, nil
}

// Count returns the number of items in queue.
func (r *QueueRepository) Count(ctx context.Context, queue string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_items WHERE queue = ?`, queue).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return n, nil
}

// Names returns every queue that has items, with its item count.
func (r *QueueRepository) Names(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT queue, COUNT(*) FROM queue_items GROUP BY queue ORDER BY queue`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queues: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("failed to scan queue: %w", err)
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// At returns the item at 0-based position.
func (r *QueueRepository) At(ctx context.Context, queue string, position int) (*models.QueueItem, error) {
	if position < 0 {
		return nil, ErrQueueItemNotFound
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT id, queue, value_json, created_at FROM queue_items WHERE queue = ? ORDER BY seq LIMIT 1 OFFSET ?
	`, queue, position)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQueueItemNotFound
	}
	if err != nil {
		return nil, err
	}
	item.Position = position
	return item, nil
}

// RemoveAt deletes the item at 0-based position.
func (r *QueueRepository) RemoveAt(ctx context.Context, queue string, position int) error {
	item, err := r.At(ctx, queue, position)
	if err != nil {
		return err
	}
	return r.Delete(ctx, item.ID)
}

// Delete removes an item by id.
func (r *QueueRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM queue_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete queue item: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrQueueItemNotFound
	}
	return nil
}

// Clear removes every item of queue and returns how many were removed.
func (r *QueueRepository) Clear(ctx context.Context, queue string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM queue_items WHERE queue = ?`, queue)
	if err != nil {
		return 0, fmt.Errorf("failed to clear queue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

func scanQueueItem(row scanner) (*models.QueueItem, error) {
	var item models.QueueItem
	var value, createdAt string
	if err := row.Scan(&item.ID, &item.Queue, &value, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan queue item: %w", err)
	}
	item.Value = json.RawMessage(value)
	item.CreatedAt = parseTime(createdAt)
	return &item, nil
}
