package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/mautops/dispatch-gin/internal/model"
	"github.com/mautops/dispatch-gin/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEventRepository_SaveAndFind 测试保存和查询事件
func TestEventRepository_SaveAndFind(t *testing.T) {
	repo := repository.NewEventRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Save(ctx, &model.EventModel{
		ID: "event-001", TaskID: "1", Worker: "ivan", Type: "task_confirmed",
		Data: []byte(`{"isOnSite":true}`), CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, repo.Save(ctx, &model.EventModel{
		ID: "event-002", TaskID: "1", Worker: "ivan", Type: "task_completed",
		Data: []byte(`{"completed":true}`), CreatedAt: now.Add(time.Second), UpdatedAt: now,
	}))

	events, err := repo.FindByTaskID(ctx, "1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "task_confirmed", events[0].Type)
	assert.Equal(t, model.EventStatusPending, events[0].Status)

	require.NoError(t, repo.UpdateStatus(ctx, "event-001", model.EventStatusSuccess, 1))

	pending, err := repo.FindPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "event-002", pending[0].ID)
}

// TestEventRepository_SaveInvalid 测试保存无效事件
func TestEventRepository_SaveInvalid(t *testing.T) {
	repo := repository.NewEventRepository(setupTestDB(t))
	err := repo.Save(context.Background(), &model.EventModel{ID: "event-001"})
	assert.Error(t, err)
}
