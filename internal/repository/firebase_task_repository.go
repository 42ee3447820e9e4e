package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"firebase.google.com/go/v4/db"
	"github.com/mautops/dispatch-gin/internal/model"
	"github.com/sirupsen/logrus"
)

// firebaseTaskRepository 基于 Firebase Realtime Database 的任务仓储
//
// 数据布局为 tasks/{worker}/{id}。订阅通过 ETag 条件读取轮询实现,
// 子树未变化时不会回调。
type firebaseTaskRepository struct {
	client       *db.Client
	pollInterval time.Duration
}

// NewFirebaseTaskRepository 创建 Firebase 任务仓储
func NewFirebaseTaskRepository(client *db.Client, pollInterval time.Duration) TaskRepository {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &firebaseTaskRepository{client: client, pollInterval: pollInterval}
}

// Create 保存新任务
func (r *firebaseTaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if err := r.client.NewRef(model.TaskPath(task.AssignedTo, task.ID)).Set(ctx, task); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// Get 读取单个任务
func (r *firebaseTaskRepository) Get(ctx context.Context, worker, id string) (*model.Task, error) {
	var task *model.Task
	if err := r.client.NewRef(model.TaskPath(worker, id)).Get(ctx, &task); err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	task.ID = id
	task.AssignedTo = worker
	return task, nil
}

// List 列出工人的任务,worker 为空时列出全部
func (r *firebaseTaskRepository) List(ctx context.Context, worker string) ([]*model.Task, error) {
	if worker != "" {
		var subtree map[string]*model.Task
		if err := r.client.NewRef(workerPath(worker)).Get(ctx, &subtree); err != nil {
			return nil, fmt.Errorf("failed to list tasks: %w", err)
		}
		return flattenWorker(worker, subtree), nil
	}

	var tree map[string]map[string]*model.Task
	if err := r.client.NewRef("tasks").Get(ctx, &tree); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return flattenTree(tree), nil
}

// Update 合并更新任务字段
func (r *firebaseTaskRepository) Update(ctx context.Context, worker, id string, upd *model.TaskUpdate) error {
	fields := upd.Fields()
	if len(fields) == 0 {
		return nil
	}
	if _, err := r.Get(ctx, worker, id); err != nil {
		return err
	}
	if err := r.client.NewRef(model.TaskPath(worker, id)).Update(ctx, fields); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// Subscribe 订阅任务子树变化
func (r *firebaseTaskRepository) Subscribe(ctx context.Context, worker string, onChange func([]*model.Task)) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)

	path := "tasks"
	if worker != "" {
		path = workerPath(worker)
	}
	ref := r.client.NewRef(path)

	decode := func(get func(v interface{}) error) ([]*model.Task, error) {
		if worker != "" {
			var subtree map[string]*model.Task
			if err := get(&subtree); err != nil {
				return nil, err
			}
			return flattenWorker(worker, subtree), nil
		}
		var tree map[string]map[string]*model.Task
		if err := get(&tree); err != nil {
			return nil, err
		}
		return flattenTree(tree), nil
	}

	var etag string
	initial, err := decode(func(v interface{}) error {
		tag, err := ref.GetWithETag(ctx, v)
		etag = tag
		return err
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe tasks: %w", err)
	}
	onChange(initial)

	go func() {
		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			var changed bool
			tasks, err := decode(func(v interface{}) error {
				ok, tag, err := ref.GetIfChanged(ctx, etag, v)
				if err == nil && ok {
					changed = true
					etag = tag
				}
				return err
			})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logrus.WithError(err).WithField("path", path).Warn("failed to poll tasks")
				continue
			}
			if changed {
				onChange(tasks)
			}
		}
	}()

	return Unsubscribe(cancel), nil
}

func workerPath(worker string) string {
	return "tasks/" + worker
}

// flattenWorker 将 {id: task} 展开为按创建时间排序的列表
func flattenWorker(worker string, subtree map[string]*model.Task) []*model.Task {
	tasks := make([]*model.Task, 0, len(subtree))
	for id, task := range subtree {
		if task == nil {
			continue
		}
		task.ID = id
		task.AssignedTo = worker
		tasks = append(tasks, task)
	}
	sortTasks(tasks)
	return tasks
}

func flattenTree(tree map[string]map[string]*model.Task) []*model.Task {
	tasks := make([]*model.Task, 0)
	for worker, subtree := range tree {
		tasks = append(tasks, flattenWorker(worker, subtree)...)
	}
	sortTasks(tasks)
	return tasks
}

func sortTasks(tasks []*model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}
