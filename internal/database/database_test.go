package database_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mautops/dispatch-gin/internal/config"
	"github.com/mautops/dispatch-gin/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBuildDSN 测试 DSN 构建
func TestBuildDSN(t *testing.T) {
	dsn := database.BuildDSN(config.DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", DBName: "dispatch", SSLMode: "disable",
	})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=dispatch sslmode=disable", dsn)

	assert.Equal(t, ":memory:", database.BuildSQLiteDSN(config.DatabaseConfig{Path: ":memory:"}))
	assert.Contains(t, database.BuildSQLiteDSN(config.DatabaseConfig{Path: "x.db"}), "_journal_mode=WAL")
}

// TestGetPoolConfig 测试连接池默认值
func TestGetPoolConfig(t *testing.T) {
	pool := database.GetPoolConfig(config.DatabaseConfig{MaxOpenConns: 20})
	assert.Equal(t, 20, pool.MaxOpenConns)
	assert.Equal(t, 10, pool.MaxIdleConns)
	assert.Equal(t, 3600, pool.ConnMaxLifetime)
}

// TestConnect_UnsupportedDriver 测试不支持的驱动
func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := database.Connect(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

// TestMigrate_SQLite 测试 SQLite 迁移可重复执行
func TestMigrate_SQLite(t *testing.T) {
	cfg := config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "dispatch.db")}
	db, err := database.ConnectWithRetry(cfg, 2, 10*time.Millisecond)
	require.NoError(t, err)
	defer database.Close(db)

	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.Migrate(db))

	for _, table := range []string{"tasks", "users", "events", "audit_logs"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasIndex("tasks", "idx_tasks_worker_completed"))
	assert.True(t, db.Migrator().HasIndex("events", "idx_events_status_created_at"))
	assert.True(t, db.Migrator().HasIndex("audit_logs", "idx_audit_actor_created_at"))
	assert.True(t, db.Migrator().HasIndex("audit_logs", "idx_audit_task"))
	assert.True(t, database.CheckHealth(db))
}
