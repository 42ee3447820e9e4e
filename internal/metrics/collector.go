package metrics

import (
	"context"
	"fmt"

	"github.com/mautops/dispatch-gin/internal/model"
	"gorm.io/gorm"
)

// TaskLister 列出全部任务
type TaskLister interface {
	List(ctx context.Context, worker string) ([]*model.Task, error)
}

// Collector 指标收集器,由定时任务周期调用 Collect
type Collector struct {
	db    *gorm.DB
	tasks TaskLister
}

// NewCollector 创建指标收集器,db 为 nil 时跳过连接池指标
func NewCollector(db *gorm.DB, tasks TaskLister) *Collector {
	return &Collector{db: db, tasks: tasks}
}

// Collect 刷新连接池和任务状态分布指标
func (c *Collector) Collect(ctx context.Context) error {
	if c.db != nil {
		if err := UpdateDatabaseConnections(c.db); err != nil {
			return err
		}
	}
	if c.tasks == nil {
		return nil
	}

	tasks, err := c.tasks.List(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}
	for state, count := range CountByState(tasks) {
		UpdateTasksByState(state, float64(count))
	}
	return nil
}

// CountByState 按状态统计任务数
func CountByState(tasks []*model.Task) map[string]int {
	counts := map[string]int{"pending": 0, "on_site": 0, "completed": 0}
	for _, t := range tasks {
		switch {
		case t.Completed:
			counts["completed"]++
		case t.IsOnSite:
			counts["on_site"]++
		default:
			counts["pending"]++
		}
	}
	return counts
}
