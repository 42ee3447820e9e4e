package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mautops/dispatch-gin/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefault_Geofence 测试默认到场阈值
func TestDefault_Geofence(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, 100.0, cfg.Geofence.Radius)
	assert.Equal(t, 100.0, cfg.Geofence.ConfirmAccuracy)
	assert.Equal(t, 50.0, cfg.Geofence.CompleteAccuracy)
	assert.Equal(t, 15*time.Second, cfg.Geofence.AcquireTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Geofence.ProgressInterval)
	assert.Equal(t, 5, cfg.Geofence.ProgressStep)
	assert.False(t, cfg.Geofence.SerializePerTask)
	assert.Equal(t, "sql", cfg.Store.Backend)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

// TestLoad_FromFile 测试从配置文件加载配置
func TestLoad_FromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
store:
  backend: "firebase"
geofence:
  radius: 150
  acquire_timeout: "20s"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "firebase", cfg.Store.Backend)
	assert.Equal(t, 150.0, cfg.Geofence.Radius)
	assert.Equal(t, 20*time.Second, cfg.Geofence.AcquireTimeout)
	// 未覆盖的值保持默认
	assert.Equal(t, 50.0, cfg.Geofence.CompleteAccuracy)
}

// TestLoad_FromEnv 测试环境变量覆盖
func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_SERVER_PORT", "9090")
	t.Setenv("APP_GEOFENCE_COMPLETE_ACCURACY", "30")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30.0, cfg.Geofence.CompleteAccuracy)
}

// TestLoad_MissingFile 测试配置文件不存在
func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// TestIsProduction 测试环境判断
func TestIsProduction(t *testing.T) {
	assert.False(t, config.IsProduction(nil))
	assert.False(t, config.IsProduction(&config.Config{Env: "development"}))
	assert.True(t, config.IsProduction(&config.Config{Env: "production"}))
}

// TestConfigWatcher_Reload 测试配置热更新
func TestConfigWatcher_Reload(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("geofence:\n  radius: 100\n"), 0644))

	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	watcher := config.NewConfigWatcher(cfg, configPath)
	var mu sync.Mutex
	var radius float64
	watcher.OnConfigChange(func(c *config.Config) {
		mu.Lock()
		defer mu.Unlock()
		radius = c.Geofence.Radius
	})

	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(configPath, []byte("geofence:\n  radius: 250\n"), 0644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return radius == 250
	}, 3*time.Second, 50*time.Millisecond)
	assert.Eventually(t, func() bool {
		return watcher.GetConfig().Geofence.Radius == 250
	}, time.Second, 20*time.Millisecond)

	// 非法阈值被拒绝,保留上一份配置
	require.NoError(t, os.WriteFile(configPath, []byte("geofence:\n  radius: -5\n"), 0644))
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 250.0, watcher.GetConfig().Geofence.Radius)
}

// TestValidateGeofence 测试阈值校验
func TestValidateGeofence(t *testing.T) {
	assert.NoError(t, config.ValidateGeofence(config.Default().Geofence))

	bad := config.Default().Geofence
	bad.Radius = 0
	assert.Error(t, config.ValidateGeofence(bad))

	bad = config.Default().Geofence
	bad.CompleteAccuracy = -1
	assert.Error(t, config.ValidateGeofence(bad))

	bad = config.Default().Geofence
	bad.AcquireTimeout = 0
	assert.Error(t, config.ValidateGeofence(bad))
}
