package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opencode-ai/promptchain/internal/models"
)

// LockRepository stores run lock records in the run_locks table. Every write
// is a single conditional statement so competing processes cannot both win.
type LockRepository struct {
	db *DB
}

// NewLockRepository creates a new LockRepository.
func NewLockRepository(db *DB) *LockRepository {
	return &LockRepository{db: db}
}

// Get returns the current record, or nil when the lock is free.
func (r *LockRepository) Get(ctx context.Context, name string) (*models.LockRecord, error) {
	var owner string
	var ms int64
	err := r.db.QueryRowContext(ctx, `SELECT owner_id, timestamp_ms FROM run_locks WHERE name = ?`, name).Scan(&owner, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lock %q: %w", name, err)
	}
	return &models.LockRecord{OwnerID: owner, Timestamp: time.UnixMilli(ms).UTC()}, nil
}

// TryAcquire writes owner into the record when it is absent, expired at now,
// or already held by owner.
func (r *LockRepository) TryAcquire(ctx context.Context, name, owner string, now time.Time, ttl time.Duration) (bool, error) {
	stale := now.Add(-ttl).UnixMilli()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO run_locks (name, owner_id, timestamp_ms) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET owner_id = excluded.owner_id, timestamp_ms = excluded.timestamp_ms
		WHERE run_locks.owner_id = excluded.owner_id OR run_locks.timestamp_ms <= ?
	`, name, owner, now.UnixMilli(), stale)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %q: %w", name, err)
	}
	return affected(res)
}

// Renew refreshes the timestamp only while owner still holds the record.
func (r *LockRepository) Renew(ctx context.Context, name, owner string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE run_locks SET timestamp_ms = ? WHERE name = ? AND owner_id = ?`,
		now.UnixMilli(), name, owner)
	if err != nil {
		return false, fmt.Errorf("failed to renew lock %q: %w", name, err)
	}
	return affected(res)
}

// Release deletes the record only while owner still holds it.
func (r *LockRepository) Release(ctx context.Context, name, owner string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM run_locks WHERE name = ? AND owner_id = ?`, name, owner)
	if err != nil {
		return false, fmt.Errorf("failed to release lock %q: %w", name, err)
	}
	return affected(res)
}

// ForceRelease deletes the record regardless of owner.
func (r *LockRepository) ForceRelease(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM run_locks WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to release lock %q: %w", name, err)
	}
	return nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}
