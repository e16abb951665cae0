package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/artiklix/kirjasto-harvester/internal/harvest"
	"github.com/artiklix/kirjasto-harvester/internal/queue/memory"
)

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue[harvest.ArticleRef](2)
	ctx := context.Background()

	task := harvest.ArticleRef{ArticleID: "dlk00001", Name: "Flunssa"}
	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, task, got)
}

func TestDequeueAfterCloseDrainsThenErrClosed(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue[harvest.ArticleRef](2)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, harvest.ArticleRef{ArticleID: "a"}))
	q.Close()
	q.Close() // idempotent

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", got.ArticleID)

	_, err = q.Dequeue(ctx)
	require.ErrorIs(t, err, memory.ErrClosed)
}

func TestEnqueueRespectsContext(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue[harvest.ArticleRef](1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, harvest.ArticleRef{ArticleID: "a"}))

	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(shortCtx, harvest.ArticleRef{ArticleID: "b"})
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}
