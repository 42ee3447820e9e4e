package repository_test

import (
	"context"
	"testing"

	"github.com/mautops/dispatch-gin/internal/model"
	"github.com/mautops/dispatch-gin/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUserRepository_CreateAndFind 测试创建和查找用户
func TestUserRepository_CreateAndFind(t *testing.T) {
	repo := repository.NewUserRepository(setupTestDB(t))
	ctx := context.Background()

	user := &model.UserModel{Username: "ivan", PasswordHash: "hash", UserType: model.UserTypeWorker}
	require.NoError(t, repo.Create(ctx, user))

	found, err := repo.FindByUsername(ctx, "ivan")
	require.NoError(t, err)
	assert.Equal(t, model.UserTypeWorker, found.UserType)

	err = repo.Create(ctx, &model.UserModel{Username: "ivan", PasswordHash: "x", UserType: model.UserTypeAdmin})
	assert.ErrorIs(t, err, repository.ErrUserExists)

	_, err = repo.FindByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

// TestUserRepository_ListByType 测试按类型列出用户
func TestUserRepository_ListByType(t *testing.T) {
	repo := repository.NewUserRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.UserModel{Username: "olga", PasswordHash: "h", UserType: model.UserTypeWorker}))
	require.NoError(t, repo.Create(ctx, &model.UserModel{Username: "ivan", PasswordHash: "h", UserType: model.UserTypeWorker}))
	require.NoError(t, repo.Create(ctx, &model.UserModel{Username: "boss", PasswordHash: "h", UserType: model.UserTypeAdmin}))

	workers, err := repo.ListByType(ctx, model.UserTypeWorker)
	require.NoError(t, err)
	require.Len(t, workers, 2)
	assert.Equal(t, "ivan", workers[0].Username)
	assert.Equal(t, "olga", workers[1].Username)
}

// TestUserRepository_UpdatePhoto 测试更新头像
func TestUserRepository_UpdatePhoto(t *testing.T) {
	repo := repository.NewUserRepository(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &model.UserModel{Username: "ivan", PasswordHash: "h", UserType: model.UserTypeWorker}))

	require.NoError(t, repo.UpdatePhoto(ctx, "ivan", "/media/photos/ivan.jpg"))
	found, err := repo.FindByUsername(ctx, "ivan")
	require.NoError(t, err)
	assert.Equal(t, "/media/photos/ivan.jpg", found.PhotoURL)

	assert.ErrorIs(t, repo.UpdatePhoto(ctx, "nobody", "x"), repository.ErrUserNotFound)
}
