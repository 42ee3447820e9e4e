package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// reloadDebounce 编辑器保存时常触发多次写事件,合并为一次重载
const reloadDebounce = 100 * time.Millisecond

// ConfigWatcher 配置监听器
// 配置文件变更时重新解析,校验通过后通知回调;目前用于到场阈值热更新
type ConfigWatcher struct {
	viper      *viper.Viper
	configPath string

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
	stopped   bool
	timer     *time.Timer
}

// NewConfigWatcher 创建配置监听器
func NewConfigWatcher(cfg *Config, configPath string) *ConfigWatcher {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &ConfigWatcher{
		config:     cfg,
		configPath: configPath,
		viper:      v,
	}
}

// OnConfigChange 注册配置变更回调
func (w *ConfigWatcher) OnConfigChange(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 启动配置监听
func (w *ConfigWatcher) Start() error {
	if err := w.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	w.viper.OnConfigChange(func(e fsnotify.Event) {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.stopped {
			return
		}
		if w.timer != nil {
			w.timer.Stop()
		}
		w.timer = time.AfterFunc(reloadDebounce, w.reload)
	})
	w.viper.WatchConfig()

	return nil
}

// reload 解析新配置;阈值不合法时保留旧配置
func (w *ConfigWatcher) reload() {
	var newCfg Config
	if err := w.viper.Unmarshal(&newCfg); err != nil {
		logrus.WithError(err).WithField("path", w.configPath).Warn("failed to unmarshal reloaded config")
		return
	}
	if err := ValidateGeofence(newCfg.Geofence); err != nil {
		logrus.WithError(err).WithField("path", w.configPath).Warn("reloaded config rejected")
		return
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.config = &newCfg
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	// 在锁外执行回调,避免死锁
	for _, callback := range callbacks {
		callback(&newCfg)
	}
}

// Stop 停止配置监听,之后的文件变更被忽略
func (w *ConfigWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
}

// GetConfig 获取当前配置
func (w *ConfigWatcher) GetConfig() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// ValidateGeofence 校验到场阈值
func ValidateGeofence(g GeofenceConfig) error {
	switch {
	case g.Radius <= 0:
		return fmt.Errorf("geofence radius must be positive, got %v", g.Radius)
	case g.ConfirmAccuracy <= 0 || g.CompleteAccuracy <= 0:
		return fmt.Errorf("geofence accuracy limits must be positive")
	case g.AcquireTimeout <= 0:
		return fmt.Errorf("geofence acquire timeout must be positive, got %s", g.AcquireTimeout)
	}
	return nil
}
