package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentloop/internal/agent/domain"
	"agentloop/internal/server/ports"
)

func TestInMemoryTaskStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryTaskStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		session := "s1"
		if id == "b" {
			session = "s2"
		}
		require.NoError(t, store.Create(ctx, &ports.Task{
			ID: id, SessionID: session, Status: domain.StatusQueued,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	assert.ErrorIs(t, store.Create(ctx, &ports.Task{ID: "a"}), ErrConflict)
	assert.ErrorIs(t, store.Create(ctx, &ports.Task{}), ErrValidation)

	page, total, err := store.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].ID)
	assert.Equal(t, "b", page[1].ID)

	page, _, err = store.List(ctx, 2, 5)
	require.NoError(t, err)
	assert.Empty(t, page)

	bySession, err := store.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, bySession, 2)
	assert.Equal(t, "c", bySession[0].ID)

	updated, err := store.Update(ctx, "a", func(task *ports.Task) error {
		task.Status = domain.StatusRunning
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, updated.Status)

	_, err = store.Update(ctx, "a", func(task *ports.Task) error {
		task.Status = domain.StatusFailed
		return errors.New("refused")
	})
	require.Error(t, err)
	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, got.Status, "a failed mutation leaves the record unchanged")

	got.Status = domain.StatusSucceeded
	again, _ := store.Get(ctx, "a")
	assert.Equal(t, domain.StatusRunning, again.Status, "returned tasks are copies")

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "a"), ErrNotFound)
}
