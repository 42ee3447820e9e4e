package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/mautops/dispatch-gin/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrTaskNotFound 任务不存在
var ErrTaskNotFound = errors.New("task not found")

// Unsubscribe 取消订阅
type Unsubscribe func()

// TaskRepository 任务仓储接口
//
// 任务按 tasks/{worker}/{id} 组织。Update 是一次原子的多字段合并写入;
// Subscribe 在订阅时和每次变化后回调该子树的完整任务列表,worker 为空时订阅全部任务。
type TaskRepository interface {
	Create(ctx context.Context, task *model.Task) error
	Get(ctx context.Context, worker, id string) (*model.Task, error)
	List(ctx context.Context, worker string) ([]*model.Task, error)
	Update(ctx context.Context, worker, id string, upd *model.TaskUpdate) error
	Subscribe(ctx context.Context, worker string, onChange func([]*model.Task)) (Unsubscribe, error)
}

// taskRepository 基于 gorm 的任务仓储实现
type taskRepository struct {
	db   *gorm.DB
	feed *changeFeed
}

// NewTaskRepository 创建任务仓储
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db, feed: newChangeFeed()}
}

// Create 保存新任务
func (r *taskRepository) Create(ctx context.Context, task *model.Task) error {
	m, err := model.NewTaskModel(task)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	r.feed.notify(task.AssignedTo)
	return nil
}

// Get 根据工人和 ID 查找任务
func (r *taskRepository) Get(ctx context.Context, worker, id string) (*model.Task, error) {
	var m model.TaskModel
	err := r.db.WithContext(ctx).Where("worker = ? AND id = ?", worker, id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.ToTask()
}

// List 列出工人的任务,worker 为空时列出全部
func (r *taskRepository) List(ctx context.Context, worker string) ([]*model.Task, error) {
	var models []*model.TaskModel
	query := r.db.WithContext(ctx).Model(&model.TaskModel{})
	if worker != "" {
		query = query.Where("worker = ?", worker)
	}
	if err := query.Order("created_at ASC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	tasks := make([]*model.Task, 0, len(models))
	for _, m := range models {
		t, err := m.ToTask()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Update 合并更新任务字段
func (r *taskRepository) Update(ctx context.Context, worker, id string, upd *model.TaskUpdate) error {
	columns, err := upd.Columns()
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&model.TaskModel{}).
		Where("worker = ? AND id = ?", worker, id).
		Updates(columns)
	if result.Error != nil {
		return fmt.Errorf("failed to update task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}

	r.feed.notify(worker)
	return nil
}

// Subscribe 订阅任务子树变化
func (r *taskRepository) Subscribe(ctx context.Context, worker string, onChange func([]*model.Task)) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := r.feed.add(worker)

	initial, err := r.List(ctx, worker)
	if err != nil {
		r.feed.remove(sub)
		cancel()
		return nil, err
	}
	onChange(initial)

	go func() {
		defer r.feed.remove(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.changed:
				tasks, err := r.List(ctx, worker)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					logrus.WithError(err).WithField("worker", worker).Warn("failed to reload tasks for subscriber")
					continue
				}
				onChange(tasks)
			}
		}
	}()

	return Unsubscribe(cancel), nil
}
