package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mautops/dispatch-gin/internal/geocode"
	"github.com/mautops/dispatch-gin/internal/metrics"
	"github.com/mautops/dispatch-gin/internal/model"
	"github.com/mautops/dispatch-gin/internal/repository"
	"github.com/mautops/dispatch-gin/internal/utils"
	"github.com/sirupsen/logrus"
)

// ErrAddressNotFound 任务地址无法解析
var ErrAddressNotFound = geocode.ErrAddressNotFound

// 任务状态过滤
const (
	TaskStatusActive    = "active"
	TaskStatusCompleted = "completed"
	TaskStatusAll       = "all"
)

// maxIDAttempts ID 冲突时最多顺延的次数
const maxIDAttempts = 1000

var validate = validator.New()

// CreateTaskRequest 创建任务请求
type CreateTaskRequest struct {
	Title      string `json:"title" binding:"required" validate:"required,max=255"`
	Location   string `json:"location" binding:"required" validate:"required"`
	Time       string `json:"time" binding:"required" validate:"required,datetime=15:04"` // HH:MM
	AssignedTo string `json:"assignedTo" binding:"required" validate:"required"`
}

// TaskFilter 任务列表过滤条件
type TaskFilter struct {
	Worker string // 为空表示全部工人
	Status string // active, completed, all
}

// TaskService 任务服务接口
type TaskService interface {
	Create(ctx context.Context, actor string, req *CreateTaskRequest) (*model.Task, error)
	Get(ctx context.Context, worker, id string) (*model.Task, error)
	List(ctx context.Context, filter TaskFilter) ([]*model.Task, error)
	Suggest(ctx context.Context, query string) ([]geocode.Suggestion, error)
}

type taskService struct {
	repo        repository.TaskRepository
	users       repository.UserRepository
	geocoder    geocode.Geocoder
	events      EventPublisher
	auditLogSvc AuditLogService
	now         func() time.Time
}

// NewTaskService 创建任务服务
func NewTaskService(
	repo repository.TaskRepository,
	users repository.UserRepository,
	geocoder geocode.Geocoder,
	events EventPublisher,
	auditLogSvc AuditLogService,
) TaskService {
	return &taskService{
		repo:        repo,
		users:       users,
		geocoder:    geocoder,
		events:      events,
		auditLogSvc: auditLogSvc,
		now:         time.Now,
	}
}

// Create 创建任务: 校验执行人,解析地址,按毫秒时间戳生成 ID
func (s *taskService) Create(ctx context.Context, actor string, req *CreateTaskRequest) (*model.Task, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty request", ErrInvalidInput)
	}
	req.Title = utils.SanitizeString(strings.TrimSpace(req.Title))
	req.Location = utils.SanitizeString(strings.TrimSpace(req.Location))
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	worker, err := s.users.FindByUsername(ctx, req.AssignedTo)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: unknown worker %s", ErrInvalidInput, req.AssignedTo)
		}
		return nil, err
	}
	if worker.UserType != model.UserTypeWorker {
		return nil, fmt.Errorf("%w: %s is not a worker", ErrInvalidInput, req.AssignedTo)
	}

	// 地址只解析一次,坐标随任务保存
	place, err := s.geocoder.Geocode(ctx, req.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to geocode address: %w", err)
	}

	now := s.now()
	id, err := s.nextID(ctx, req.AssignedTo, now)
	if err != nil {
		return nil, err
	}

	task := &model.Task{
		ID:          id,
		Title:       req.Title,
		Location:    req.Location,
		Coordinates: place.Point,
		Time:        req.Time,
		AssignedTo:  req.AssignedTo,
		AssignedBy:  actor,
		CreatedAt:   now,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	// 记录业务指标
	metrics.RecordTaskCreated()

	logrus.WithFields(logrus.Fields{
		"task_id": task.ID,
		"worker":  task.AssignedTo,
		"actor":   actor,
	}).Info("task created")

	if s.events != nil {
		event := &model.TaskEvent{
			ID:     uuid.New().String(),
			Type:   model.EventTaskCreated,
			TaskID: task.ID,
			Worker: task.AssignedTo,
			Actor:  actor,
			Task:   task,
			Time:   now,
		}
		if err := s.events.Publish(ctx, event); err != nil {
			logrus.WithError(err).WithField("task_id", task.ID).Warn("failed to publish task event")
		}
	}

	// 记录审计日志
	if s.auditLogSvc != nil && actor != "" {
		entry := AuditEntry{
			Actor:  actor,
			Action: model.AuditTaskCreated,
			Worker: task.AssignedTo,
			TaskID: task.ID,
			Details: map[string]interface{}{
				"title":    task.Title,
				"location": task.Location,
			},
		}
		if err := s.auditLogSvc.Record(ctx, entry); err != nil {
			logrus.WithError(err).WithField("task_id", task.ID).Warn("failed to record audit log")
		}
	}

	return task, nil
}

// nextID 以毫秒时间戳为 ID,与该工人已有任务冲突时顺延
func (s *taskService) nextID(ctx context.Context, worker string, now time.Time) (string, error) {
	ms := now.UnixMilli()
	for i := 0; i < maxIDAttempts; i++ {
		id := strconv.FormatInt(ms+int64(i), 10)
		_, err := s.repo.Get(ctx, worker, id)
		if errors.Is(err, repository.ErrTaskNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check task id: %w", err)
		}
	}
	return "", fmt.Errorf("failed to allocate task id for %s", worker)
}

// Get 获取任务详情
func (s *taskService) Get(ctx context.Context, worker, id string) (*model.Task, error) {
	return s.repo.Get(ctx, worker, id)
}

// List 列出任务
func (s *taskService) List(ctx context.Context, filter TaskFilter) ([]*model.Task, error) {
	status := filter.Status
	if status == "" {
		status = TaskStatusAll
	}
	if status != TaskStatusActive && status != TaskStatusCompleted && status != TaskStatusAll {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
	}

	tasks, err := s.repo.List(ctx, filter.Worker)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	if status == TaskStatusAll {
		return tasks, nil
	}

	filtered := make([]*model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Completed == (status == TaskStatusCompleted) {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// Suggest 地址联想
func (s *taskService) Suggest(ctx context.Context, query string) ([]geocode.Suggestion, error) {
	return s.geocoder.Suggest(ctx, query)
}
