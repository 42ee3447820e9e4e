package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/dispatch-gin/internal/model"
	"github.com/mautops/dispatch-gin/internal/repository"
)

// AuditEntry 待记录的任务操作
type AuditEntry struct {
	Actor   string
	Action  string
	Worker  string
	TaskID  string
	Details map[string]interface{}
}

// AuditLogService 审计日志服务
type AuditLogService interface {
	Record(ctx context.Context, entry AuditEntry) error
	History(ctx context.Context, worker, taskID string) ([]*model.AuditLogModel, error)
	Purge(ctx context.Context, maxAge time.Duration) (int64, error)
}

type auditLogService struct {
	repo repository.AuditLogRepository
	now  func() time.Time
}

// NewAuditLogService 创建审计日志服务
func NewAuditLogService(repo repository.AuditLogRepository) AuditLogService {
	return &auditLogService{repo: repo, now: time.Now}
}

// Record 记录一次任务操作,请求元数据取自 ctx
func (s *auditLogService) Record(ctx context.Context, entry AuditEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	info := requestInfo(ctx)
	return s.repo.Save(ctx, &model.AuditLogModel{
		ID:        uuid.New().String(),
		Actor:     entry.Actor,
		Action:    entry.Action,
		Worker:    entry.Worker,
		TaskID:    entry.TaskID,
		RequestID: info.RequestID,
		IP:        info.IP,
		UserAgent: info.UserAgent,
		Details:   details,
		CreatedAt: s.now(),
	})
}

// History 返回任务的操作历史
func (s *auditLogService) History(ctx context.Context, worker, taskID string) ([]*model.AuditLogModel, error) {
	return s.repo.FindByTask(ctx, worker, taskID)
}

// Purge 删除超过保留期的审计日志
func (s *auditLogService) Purge(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.repo.DeleteBefore(ctx, s.now().Add(-maxAge))
}
