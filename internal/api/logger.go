package api

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mautops/dispatch-gin/internal/config"
	"github.com/sirupsen/logrus"
)

const logTimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// ConfigureLogger 按配置设置 logrus 全局日志,各包通过 logrus 包级函数写日志
func ConfigureLogger(cfg *config.LogConfig) error {
	logger, err := NewLoggerFromConfig(cfg)
	if err != nil {
		return err
	}
	std := logrus.StandardLogger()
	std.SetFormatter(logger.Formatter)
	std.SetLevel(logger.Level)
	std.SetOutput(logger.Out)
	std.ReplaceHooks(logger.Hooks)
	return nil
}

// NewLoggerFromConfig 根据配置创建日志记录器;无法识别的级别按 info 处理
func NewLoggerFromConfig(cfg *config.LogConfig) (*logrus.Logger, error) {
	out, err := logOutput(cfg.Output, cfg.File)
	if err != nil {
		return nil, err
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(out)
	logger.SetFormatter(logFormatter(cfg.Format))
	logger.AddHook(staticFields{"service": serviceName})
	return logger, nil
}

func logFormatter(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{TimestampFormat: logTimestampFormat}
	}
	return &logrus.TextFormatter{TimestampFormat: logTimestampFormat, FullTimestamp: true}
}

// logOutput output 取 stdout、file 或 both,其余值按 stdout 处理
func logOutput(output, file string) (io.Writer, error) {
	if output != "file" && output != "both" {
		return os.Stdout, nil
	}

	if file == "" {
		file = filepath.Join("logs", serviceName+".log")
	}
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	if output == "both" {
		return io.MultiWriter(os.Stdout, f), nil
	}
	return f, nil
}

// staticFields 给每条日志附加固定字段,便于日志聚合按服务过滤
type staticFields logrus.Fields

func (h staticFields) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h staticFields) Fire(entry *logrus.Entry) error {
	for k, v := range h {
		if _, exists := entry.Data[k]; !exists {
			entry.Data[k] = v
		}
	}
	return nil
}
