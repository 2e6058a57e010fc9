package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/promptchain/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := database.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestOpenCreatesFile(t *testing.T) {
	path := t.TempDir() + "/nested/state.db"
	database, err := Open(Config{Path: path})
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, database.Migrate(context.Background()))
	require.NoError(t, database.Migrate(context.Background()), "migrations are idempotent")
	require.Equal(t, path, database.Path())
}

func TestKVRepository(t *testing.T) {
	repo := NewKVRepository(setupTestDB(t))
	ctx := context.Background()

	value, err := repo.Get(ctx, "counter", float64(7))
	require.NoError(t, err)
	require.Equal(t, float64(7), value)

	require.NoError(t, repo.Set(ctx, "counter", 1))
	require.NoError(t, repo.Set(ctx, "counter", map[string]any{"n": 2}))
	value, err = repo.Get(ctx, "counter", nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"n": float64(2)}, value)

	keys, err := repo.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"counter"}, keys)

	require.NoError(t, repo.Delete(ctx, "counter"))
	value, err = repo.Get(ctx, "counter", "gone")
	require.NoError(t, err)
	require.Equal(t, "gone", value)

	require.ErrorIs(t, repo.Set(ctx, " ", 1), ErrInvalidKey)
}

func TestLockRepository(t *testing.T) {
	repo := NewLockRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now()
	ttl := 15 * time.Second

	record, err := repo.Get(ctx, "run")
	require.NoError(t, err)
	require.Nil(t, record)

	ok, err := repo.TryAcquire(ctx, "run", "a", now, ttl)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.TryAcquire(ctx, "run", "b", now.Add(5*time.Second), ttl)
	require.NoError(t, err)
	require.False(t, ok, "fresh record held by another owner")

	ok, err = repo.Renew(ctx, "run", "b", now)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = repo.Release(ctx, "run", "b")
	require.NoError(t, err)
	require.False(t, ok, "non-owner cannot release")

	ok, err = repo.TryAcquire(ctx, "run", "b", now.Add(16*time.Second), ttl)
	require.NoError(t, err)
	require.True(t, ok, "stale record is taken over")

	record, err = repo.Get(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, "b", record.OwnerID)

	ok, err = repo.Release(ctx, "run", "b")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.ForceRelease(ctx, "run"))
}

func TestLockRepositoryConcurrentAcquire(t *testing.T) {
	repo := NewLockRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, owner := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			ok, err := repo.TryAcquire(ctx, "run", owner, now, time.Minute)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(owner)
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func TestQueueRepository(t *testing.T) {
	repo := NewQueueRepository(setupTestDB(t))
	ctx := context.Background()

	_, err := repo.Append(ctx, "default", "a", map[string]any{"name": "b"})
	require.NoError(t, err)
	_, err = repo.Append(ctx, "default", "c")
	require.NoError(t, err)
	_, err = repo.Append(ctx, "other", "x")
	require.NoError(t, err)

	count, err := repo.Count(ctx, "default")
	require.NoError(t, err)
	require.Equal(t, 3, count)

	names, err := repo.Names(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"default": 3, "other": 1}, names)

	items, err := repo.List(ctx, "default")
	require.NoError(t, err)
	require.Len(t, items, 3)
	second, err := items[1].Decoded()
	require.NoError(t, err)
	require.Equal(t, map[string]any{"name": "b"}, second)
	require.Equal(t, 2, items[2].Position)

	head, err := repo.At(ctx, "default", 0)
	require.NoError(t, err)
	value, err := head.Decoded()
	require.NoError(t, err)
	require.Equal(t, "a", value)

	require.NoError(t, repo.RemoveAt(ctx, "default", 0))
	head, err = repo.At(ctx, "default", 0)
	require.NoError(t, err)
	require.Equal(t, items[1].ID, head.ID)

	_, err = repo.At(ctx, "default", 5)
	require.ErrorIs(t, err, ErrQueueItemNotFound)

	removed, err := repo.Clear(ctx, "default")
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	_, err = repo.Append(ctx, "", "x")
	require.ErrorIs(t, err, ErrInvalidQueueName)
}

func TestEventRepository(t *testing.T) {
	repo := NewEventRepository(setupTestDB(t))
	ctx := context.Background()

	started, err := repo.Record(ctx, models.EventTypeBatchStarted, models.EntityTypeBatch, "batch-1",
		models.BatchStartedPayload{Chain: "greet", Mode: "auto-remove", QueueSize: 2})
	require.NoError(t, err)
	require.NotEmpty(t, started.ID)

	_, err = repo.Record(ctx, models.EventTypeBatchFinished, models.EntityTypeBatch, "batch-1",
		models.BatchFinishedPayload{Processed: 2})
	require.NoError(t, err)
	_, err = repo.Record(ctx, models.EventTypeLockRefused, models.EntityTypeLock, "run", nil)
	require.NoError(t, err)

	got, err := repo.Get(ctx, started.ID)
	require.NoError(t, err)
	require.Equal(t, models.EventTypeBatchStarted, got.Type)
	require.JSONEq(t, `{"chain":"greet","mode":"auto-remove","queue_size":2}`, string(got.Payload))

	events, err := repo.ListByEntity(ctx, models.EntityTypeBatch, "batch-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	recent, err := repo.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	page, err := repo.Query(ctx, EventQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	require.NotEmpty(t, page.NextCursor)
	next, err := repo.Query(ctx, EventQuery{Cursor: page.NextCursor, Limit: 2})
	require.NoError(t, err)
	require.Len(t, next.Events, 1)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrEventNotFound)

	err = repo.Append(ctx, &models.Event{Type: models.EventTypeBatchStarted})
	require.ErrorIs(t, err, ErrInvalidEvent)
}
