package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/promptchain/internal/db"
)

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemory("a", "b")
	q.Append("c")

	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	v, err := q.At(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "b", v)

	require.NoError(t, q.RemoveHead(ctx))
	require.Equal(t, []any{"b", "c"}, q.Items())

	require.NoError(t, q.Remove(1))
	require.Equal(t, []any{"b"}, q.Items())

	_, err = q.At(ctx, 4)
	require.ErrorIs(t, err, ErrOutOfRange)
	require.ErrorIs(t, q.Remove(-1), ErrOutOfRange)
}

func TestPersistentQueue(t *testing.T) {
	ctx := context.Background()
	database, err := db.OpenInMemory()
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, database.Migrate(ctx))

	q := NewPersistent(db.NewQueueRepository(database), "default")
	require.NoError(t, q.Append(ctx, "x", map[string]any{"n": 1}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	v, err := q.At(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"n": float64(1)}, v)

	require.NoError(t, q.RemoveHead(ctx))
	items, err := q.Items(ctx)
	require.NoError(t, err)
	require.Equal(t, []any{map[string]any{"n": float64(1)}}, items)

	require.NoError(t, q.RemoveHead(ctx))
	require.ErrorIs(t, q.RemoveHead(ctx), ErrOutOfRange)
	_, err = q.At(ctx, 0)
	require.ErrorIs(t, err, ErrOutOfRange)
}
