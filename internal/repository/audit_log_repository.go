package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/dispatch-gin/internal/model"
	"gorm.io/gorm"
)

// AuditLogRepository 审计日志仓储接口
type AuditLogRepository interface {
	Save(ctx context.Context, log *model.AuditLogModel) error
	FindByActor(ctx context.Context, actor string) ([]*model.AuditLogModel, error)
	FindByTask(ctx context.Context, worker, taskID string) ([]*model.AuditLogModel, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository 创建审计日志仓储
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

// Save 追加一条审计记录,记录不可修改
func (r *auditLogRepository) Save(ctx context.Context, log *model.AuditLogModel) error {
	if err := log.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to save audit log: %w", err)
	}
	return nil
}

// FindByActor 按操作人查询,新记录在前
func (r *auditLogRepository) FindByActor(ctx context.Context, actor string) ([]*model.AuditLogModel, error) {
	var logs []*model.AuditLogModel
	err := r.db.WithContext(ctx).Where("actor = ?", actor).Order("created_at DESC").Find(&logs).Error
	return logs, err
}

// FindByTask 查询某个任务的操作历史,新记录在前
func (r *auditLogRepository) FindByTask(ctx context.Context, worker, taskID string) ([]*model.AuditLogModel, error) {
	var logs []*model.AuditLogModel
	err := r.db.WithContext(ctx).
		Where("worker = ? AND task_id = ?", worker, taskID).
		Order("created_at DESC").
		Find(&logs).Error
	return logs, err
}

// DeleteBefore 删除早于指定时间的审计日志,返回删除条数
func (r *auditLogRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&model.AuditLogModel{})
	return result.RowsAffected, result.Error
}
