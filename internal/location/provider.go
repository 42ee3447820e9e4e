// Package location 定义定位来源以及带超时的定位竞速
package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mautops/dispatch-gin/internal/geo"
)

// AccuracyMode 定位精度模式
type AccuracyMode string

const (
	// AccuracyBalanced 中等精度,用于到场确认
	AccuracyBalanced AccuracyMode = "balanced"
	// AccuracyHigh 高精度,用于完成任务
	AccuracyHigh AccuracyMode = "high"
)

var (
	// ErrUnavailable 无法获取定位
	ErrUnavailable = errors.New("location unavailable")
	// ErrTimeout 定位超时
	ErrTimeout = fmt.Errorf("%w: acquisition timed out", ErrUnavailable)
	// ErrNoDevice 用户没有在线设备
	ErrNoDevice = fmt.Errorf("%w: no connected device", ErrUnavailable)
	// ErrPermissionDenied 定位权限被拒绝
	ErrPermissionDenied = errors.New("location permission denied")
)

var validate = validator.New()

// Fix 一次定位结果
type Fix struct {
	Latitude  float64   `json:"latitude" validate:"latitude"`
	Longitude float64   `json:"longitude" validate:"longitude"`
	Accuracy  float64   `json:"accuracy" validate:"gte=0"` // 不确定半径(米),越小越好
	Timestamp time.Time `json:"timestamp"`
}

// Validate 校验坐标和精度
func (f Fix) Validate() error {
	return validate.Struct(f)
}

// Point 转换为坐标点
func (f Fix) Point() geo.Point {
	return geo.Point{Latitude: f.Latitude, Longitude: f.Longitude}
}

// Provider 定位来源
type Provider interface {
	// RequestPermission 请求或确认定位权限
	RequestPermission(ctx context.Context) (bool, error)
	// CurrentPosition 获取当前位置
	CurrentPosition(ctx context.Context, mode AccuracyMode) (Fix, error)
}
