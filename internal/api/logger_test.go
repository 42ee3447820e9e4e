package api

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mautops/dispatch-gin/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewLoggerFromConfig_JSON 测试 JSON 日志带默认字段
func TestNewLoggerFromConfig_JSON(t *testing.T) {
	logger, err := NewLoggerFromConfig(&config.LogConfig{Level: "warn", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.Level)

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.WithField("task_id", "1").Warn("task completion failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "dispatch-gin", entry["service"])
	assert.Equal(t, "1", entry["task_id"])
	assert.Equal(t, "warning", entry["level"])
}

// TestNewLoggerFromConfig_File 测试写入日志文件
func TestNewLoggerFromConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	logger, err := NewLoggerFromConfig(&config.LogConfig{Level: "bogus", Format: "text", Output: "file", File: path})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.Level)

	logger.Info("hello")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}
