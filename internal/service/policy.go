package service

import (
	"time"

	"github.com/mautops/dispatch-gin/internal/config"
)

// GeofencePolicy 到场确认使用的阈值,每次调用取一份快照
type GeofencePolicy struct {
	Radius             float64
	ConfirmAccuracy    float64
	CompleteAccuracy   float64
	AcquireTimeout     time.Duration
	ProgressInterval   time.Duration
	ProgressStep       int
	ProgressResetDelay time.Duration
	SerializePerTask   bool
}

// DefaultGeofencePolicy 默认阈值: 半径 100 米,确认精度 100 米,完成精度 50 米,超时 15 秒
func DefaultGeofencePolicy() GeofencePolicy {
	return PolicyFromConfig(config.Default().Geofence)
}

// PolicyFromConfig 从配置构建阈值
func PolicyFromConfig(cfg config.GeofenceConfig) GeofencePolicy {
	return GeofencePolicy{
		Radius:             cfg.Radius,
		ConfirmAccuracy:    cfg.ConfirmAccuracy,
		CompleteAccuracy:   cfg.CompleteAccuracy,
		AcquireTimeout:     cfg.AcquireTimeout,
		ProgressInterval:   cfg.ProgressInterval,
		ProgressStep:       cfg.ProgressStep,
		ProgressResetDelay: cfg.ProgressResetDelay,
		SerializePerTask:   cfg.SerializePerTask,
	}
}
