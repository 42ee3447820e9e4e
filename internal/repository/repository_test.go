package repository_test

import (
	"testing"

	"github.com/mautops/dispatch-gin/internal/model"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB 创建内存测试数据库
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// 内存库每个连接独立,订阅协程必须复用同一连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&model.TaskModel{}, &model.UserModel{}, &model.EventModel{}, &model.AuditLogModel{})
	require.NoError(t, err)

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}
