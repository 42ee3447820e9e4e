package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthCheck 单项健康检查
type HealthCheck func(ctx context.Context) error

// HealthController 健康检查控制器
type HealthController struct {
	checks map[string]HealthCheck
}

// NewHealthController 创建健康检查控制器,db 为 nil 时不检查数据库
func NewHealthController(db *gorm.DB) *HealthController {
	h := &HealthController{checks: make(map[string]HealthCheck)}
	if db != nil {
		h.AddCheck("database", func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		})
	}
	return h
}

// AddCheck 注册健康检查项
func (h *HealthController) AddCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// Check 健康检查
func (h *HealthController) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	checks := make(map[string]string, len(h.checks))

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			status = "unhealthy"
			checks[name] = "unhealthy: " + err.Error()
		} else {
			checks[name] = "healthy"
		}
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}
