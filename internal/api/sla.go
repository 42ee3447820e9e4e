package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SLAConfig 各路由的期望响应时间,key 为 gin 路由模板
type SLAConfig map[string]time.Duration

// DefaultSLAConfig 返回默认 SLA 配置
// 到场确认和完成任务包含一次定位,期望时间在定位超时之上留出余量
func DefaultSLAConfig(acquireTimeout time.Duration) SLAConfig {
	return SLAConfig{
		"POST /api/v1/tasks":                     3 * time.Second, // 含一次地址解析
		"GET /api/v1/tasks":                      500 * time.Millisecond,
		"GET /api/v1/tasks/:worker/:id":          200 * time.Millisecond,
		"POST /api/v1/tasks/:worker/:id/confirm":  acquireTimeout + 2*time.Second,
		"POST /api/v1/tasks/:worker/:id/complete": acquireTimeout + 2*time.Second,
	}
}

// Expected 获取期望的响应时间,未配置的路由返回 0
func (s SLAConfig) Expected(c *gin.Context) (string, time.Duration) {
	operation := c.Request.Method + " " + c.FullPath()
	return operation, s[operation]
}

// SLAMonitorMiddleware SLA 监控中间件,超时的请求记录告警日志并设置响应头
func SLAMonitorMiddleware(config SLAConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		operation, expected := config.Expected(c)
		if expected <= 0 {
			c.Next()
			return
		}

		// 响应头必须在写响应之前设置
		c.Writer.Header().Set("X-SLA-Expected", expected.String())
		c.Next()

		duration := time.Since(start)
		if duration > expected {
			logrus.WithFields(logrus.Fields{
				"request_id": c.GetString("request_id"),
				"operation":  operation,
				"duration":   duration.String(),
				"expected":   expected.String(),
			}).Warn("SLA violation")
		}
	}
}
