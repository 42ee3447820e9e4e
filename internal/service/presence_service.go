package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/dispatch-gin/internal/geo"
	"github.com/mautops/dispatch-gin/internal/location"
	"github.com/mautops/dispatch-gin/internal/metrics"
	"github.com/mautops/dispatch-gin/internal/model"
	"github.com/mautops/dispatch-gin/internal/repository"
	"github.com/sirupsen/logrus"
)

// EventPublisher 任务事件发布
type EventPublisher interface {
	Publish(ctx context.Context, event *model.TaskEvent) error
}

// PresenceRequest 到场确认或完成任务的请求
type PresenceRequest struct {
	Actor    string            // 当前用户,必须是任务的执行人
	Worker   string            // 任务所属工人
	TaskID   string            // 任务 ID
	Provider location.Provider // 本次调用使用的定位来源
}

// ConfirmResult 到场确认结果
type ConfirmResult struct {
	TaskID    string    `json:"taskId"`
	OnSite    bool      `json:"onSite"`
	Distance  float64   `json:"distance"`
	Remaining int       `json:"remaining"` // 距离围栏边界还差多少米,到场时为 0
	Accuracy  float64   `json:"accuracy"`
	CheckedAt time.Time `json:"checkedAt"`
}

// CompleteResult 完成任务结果
type CompleteResult struct {
	TaskID      string    `json:"taskId"`
	Distance    float64   `json:"distance"`
	Accuracy    float64   `json:"accuracy"`
	CompletedAt time.Time `json:"completedAt"`
}

// PresenceService 到场确认与完成任务工作流
type PresenceService interface {
	// Confirm 确认工人是否在任务地点附近并记录结果
	Confirm(ctx context.Context, req *PresenceRequest) (*ConfirmResult, error)
	// Complete 重新定位后完成任务
	Complete(ctx context.Context, req *PresenceRequest) (*CompleteResult, error)
	// Progress 读取任务当前的进度提示
	Progress(worker, taskID string) Progress
	// Policy 当前阈值
	Policy() GeofencePolicy
	// SetPolicy 替换阈值,进行中的调用不受影响
	SetPolicy(policy GeofencePolicy)
}

// PresenceOption 工作流可选项
type PresenceOption func(*presenceService)

// WithClock 替换时钟
func WithClock(now func() time.Time) PresenceOption {
	return func(s *presenceService) {
		s.now = now
	}
}

// WithEventPublisher 设置事件发布
func WithEventPublisher(events EventPublisher) PresenceOption {
	return func(s *presenceService) {
		s.events = events
	}
}

// WithAuditLog 设置审计日志
func WithAuditLog(audit AuditLogService) PresenceOption {
	return func(s *presenceService) {
		s.audit = audit
	}
}

// WithProgressBoard 使用外部的进度板
func WithProgressBoard(board *ProgressBoard) PresenceOption {
	return func(s *presenceService) {
		s.board = board
	}
}

type presenceService struct {
	repo   repository.TaskRepository
	board  *ProgressBoard
	events EventPublisher
	audit  AuditLogService
	now    func() time.Time

	mu     sync.RWMutex
	policy GeofencePolicy

	locks taskLocks
}

// NewPresenceService 创建到场确认工作流
func NewPresenceService(repo repository.TaskRepository, policy GeofencePolicy, opts ...PresenceOption) PresenceService {
	s := &presenceService{
		repo:   repo,
		policy: policy,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.board == nil {
		s.board = NewProgressBoard()
	}
	return s
}

func (s *presenceService) Policy() GeofencePolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

func (s *presenceService) SetPolicy(policy GeofencePolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = policy
}

func (s *presenceService) Progress(worker, taskID string) Progress {
	return s.board.Get(worker, taskID)
}

// Confirm 到场确认
func (s *presenceService) Confirm(ctx context.Context, req *PresenceRequest) (*ConfirmResult, error) {
	policy := s.Policy()
	if !policy.SerializePerTask {
		return s.confirm(ctx, req, policy)
	}

	release, err := s.locks.acquire(ctx, progressKey(req.Worker, req.TaskID))
	if err != nil {
		return nil, fmt.Errorf("failed to wait for task lock: %w", err)
	}
	defer release()
	return s.confirm(ctx, req, policy)
}

func (s *presenceService) confirm(ctx context.Context, req *PresenceRequest, policy GeofencePolicy) (result *ConfirmResult, err error) {
	logger := logrus.WithFields(logrus.Fields{
		"task_id": req.TaskID,
		"worker":  req.Worker,
		"action":  "confirm",
	})
	defer func() {
		outcome := Outcome(err)
		if result != nil {
			outcome = "off_site"
			if result.OnSite {
				outcome = "on_site"
			}
		}
		metrics.RecordPresenceCheck(outcome)
		if err != nil {
			logger.WithError(err).WithField("outcome", outcome).Info("presence confirmation failed")
		}
	}()

	task, err := s.loadTask(ctx, req)
	if err != nil {
		return nil, err
	}
	if task.Completed {
		return nil, workflowError(ErrTaskCompleted, nil)
	}

	granted, err := req.Provider.RequestPermission(ctx)
	if err != nil {
		return nil, locationFailure(err)
	}
	if !granted {
		return nil, workflowError(ErrPermissionDenied, nil)
	}

	run := s.board.Begin(req.Worker, req.TaskID, policy.ProgressInterval, policy.ProgressStep)
	fix, err := s.acquire(ctx, req.Provider, location.AccuracyBalanced, policy.AcquireTimeout)
	run.Settle(err == nil, policy.ProgressResetDelay)
	if err != nil {
		return nil, locationFailure(err)
	}

	if fix.Accuracy > policy.ConfirmAccuracy {
		return nil, &WorkflowError{Kind: ErrAccuracyTooLow, Accuracy: fix.Accuracy, Limit: policy.ConfirmAccuracy}
	}

	distance := geo.Distance(fix.Point(), task.Coordinates)
	onSite := geo.Within(distance, policy.Radius)
	now := s.now()

	upd := &model.TaskUpdate{
		IsOnSite:    &onSite,
		LastChecked: &now,
		LastLocation: &model.LocationReading{
			Latitude:  fix.Latitude,
			Longitude: fix.Longitude,
			Accuracy:  fix.Accuracy,
			Timestamp: &now,
		},
	}
	if err := s.repo.Update(ctx, req.Worker, req.TaskID, upd); err != nil {
		return nil, fmt.Errorf("failed to record presence: %w", err)
	}
	upd.Apply(task)

	result = &ConfirmResult{
		TaskID:    req.TaskID,
		OnSite:    onSite,
		Distance:  distance,
		Remaining: geo.Remaining(distance, policy.Radius),
		Accuracy:  fix.Accuracy,
		CheckedAt: now,
	}

	logger.WithFields(logrus.Fields{
		"distance": distance,
		"accuracy": fix.Accuracy,
		"on_site":  onSite,
	}).Info("presence confirmed")

	details := map[string]interface{}{
		"onSite":    onSite,
		"distance":  distance,
		"remaining": result.Remaining,
		"accuracy":  fix.Accuracy,
	}
	s.afterWrite(ctx, req, model.EventTaskPresenceChecked, model.AuditPresenceConfirmed, task, details)
	return result, nil
}

// Complete 完成任务
func (s *presenceService) Complete(ctx context.Context, req *PresenceRequest) (*CompleteResult, error) {
	policy := s.Policy()
	if !policy.SerializePerTask {
		return s.complete(ctx, req, policy)
	}

	release, err := s.locks.acquire(ctx, progressKey(req.Worker, req.TaskID))
	if err != nil {
		return nil, fmt.Errorf("failed to wait for task lock: %w", err)
	}
	defer release()
	return s.complete(ctx, req, policy)
}

func (s *presenceService) complete(ctx context.Context, req *PresenceRequest, policy GeofencePolicy) (result *CompleteResult, err error) {
	logger := logrus.WithFields(logrus.Fields{
		"task_id": req.TaskID,
		"worker":  req.Worker,
		"action":  "complete",
	})
	defer func() {
		outcome := Outcome(err)
		metrics.RecordTaskCompletion(outcome)
		if err != nil {
			logger.WithError(err).WithField("outcome", outcome).Info("task completion failed")
		}
	}()

	task, err := s.loadTask(ctx, req)
	if err != nil {
		return nil, err
	}
	if task.Completed {
		return nil, workflowError(ErrTaskCompleted, nil)
	}
	// 以存储中的确认状态为准,不重新推导
	if !task.IsOnSite {
		return nil, workflowError(ErrNotOnSite, nil)
	}

	run := s.board.Begin(req.Worker, req.TaskID, 0, 0)
	fix, err := s.acquire(ctx, req.Provider, location.AccuracyHigh, policy.AcquireTimeout)
	run.Settle(err == nil, policy.ProgressResetDelay)
	if err != nil {
		return nil, locationFailure(err)
	}

	if fix.Accuracy > policy.CompleteAccuracy {
		return nil, &WorkflowError{Kind: ErrAccuracyTooLow, Accuracy: fix.Accuracy, Limit: policy.CompleteAccuracy}
	}

	distance := geo.Distance(fix.Point(), task.Coordinates)
	if !geo.Within(distance, policy.Radius) {
		return nil, &WorkflowError{Kind: ErrOutOfRange, Accuracy: fix.Accuracy, Distance: distance, Limit: policy.Radius}
	}

	now := s.now()
	completed := true
	upd := &model.TaskUpdate{
		Completed:   &completed,
		CompletedAt: &now,
		CompletedLocation: &model.LocationReading{
			Latitude:  fix.Latitude,
			Longitude: fix.Longitude,
			Accuracy:  fix.Accuracy,
		},
	}
	if err := s.repo.Update(ctx, req.Worker, req.TaskID, upd); err != nil {
		return nil, fmt.Errorf("failed to record completion: %w", err)
	}
	upd.Apply(task)

	result = &CompleteResult{
		TaskID:      req.TaskID,
		Distance:    distance,
		Accuracy:    fix.Accuracy,
		CompletedAt: now,
	}

	logger.WithFields(logrus.Fields{
		"distance": distance,
		"accuracy": fix.Accuracy,
	}).Info("task completed")

	details := map[string]interface{}{
		"distance": distance,
		"accuracy": fix.Accuracy,
	}
	s.afterWrite(ctx, req, model.EventTaskCompleted, model.AuditTaskCompleted, task, details)
	return result, nil
}

// loadTask 读取任务并校验调用者
func (s *presenceService) loadTask(ctx context.Context, req *PresenceRequest) (*model.Task, error) {
	if req == nil || req.Worker == "" || req.TaskID == "" {
		return nil, fmt.Errorf("%w: worker and task id are required", ErrInvalidInput)
	}
	if req.Provider == nil {
		return nil, workflowError(ErrLocationUnavailable, location.ErrNoDevice)
	}
	if req.Actor != req.Worker {
		return nil, workflowError(ErrNotAssignee, nil)
	}

	task, err := s.repo.Get(ctx, req.Worker, req.TaskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return task, nil
}

func (s *presenceService) acquire(ctx context.Context, p location.Provider, mode location.AccuracyMode, timeout time.Duration) (location.Fix, error) {
	start := time.Now()
	fix, err := location.Acquire(ctx, p, mode, timeout)
	metrics.ObserveLocationAcquire(string(mode), time.Since(start))
	return fix, err
}

// afterWrite 写入成功后发布事件和审计日志,失败只记录日志
func (s *presenceService) afterWrite(ctx context.Context, req *PresenceRequest, eventType, action string, task *model.Task, details map[string]interface{}) {
	if s.events != nil {
		event := &model.TaskEvent{
			ID:     uuid.New().String(),
			Type:   eventType,
			TaskID: req.TaskID,
			Worker: req.Worker,
			Actor:  req.Actor,
			Task:   task,
			Data:   details,
			Time:   s.now(),
		}
		if err := s.events.Publish(ctx, event); err != nil {
			logrus.WithError(err).WithField("task_id", req.TaskID).Warn("failed to publish task event")
		}
	}

	if s.audit != nil {
		if err := s.audit.Record(ctx, AuditEntry{Actor: req.Actor, Action: action, Worker: req.Worker, TaskID: req.TaskID, Details: details}); err != nil {
			logrus.WithError(err).WithField("task_id", req.TaskID).Warn("failed to record audit log")
		}
	}
}

// locationFailure 将定位错误归类为权限拒绝或定位不可用
func locationFailure(err error) error {
	if errors.Is(err, location.ErrPermissionDenied) {
		return workflowError(ErrPermissionDenied, err)
	}
	return workflowError(ErrLocationUnavailable, err)
}
