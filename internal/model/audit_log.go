package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// 审计动作
const (
	AuditTaskCreated       = "task.create"
	AuditPresenceConfirmed = "task.confirm"
	AuditTaskCompleted     = "task.complete"
)

// AuditLogModel 一条任务操作审计记录
// Worker/TaskID 定位被操作的任务,Actor 为发起请求的用户(管理员代为确认时两者不同)
type AuditLogModel struct {
	ID        string         `gorm:"primaryKey;type:varchar(64)"`
	Actor     string         `gorm:"type:varchar(64);not null;index"`
	Action    string         `gorm:"type:varchar(32);not null;index"`
	Worker    string         `gorm:"type:varchar(64);not null;index:idx_audit_task"`
	TaskID    string         `gorm:"type:varchar(64);not null;index:idx_audit_task"`
	RequestID string         `gorm:"type:varchar(64);index"`
	IP        string         `gorm:"type:varchar(45)"`
	UserAgent string         `gorm:"type:text"`
	Details   datatypes.JSON // 定位读数、距离、阈值等
	CreatedAt time.Time      `gorm:"not null;index"`
}

// TableName 指定表名
func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// Validate 校验必填字段
func (alm *AuditLogModel) Validate() error {
	switch {
	case alm.ID == "":
		return errors.New("audit log ID is required")
	case alm.Actor == "":
		return errors.New("audit actor is required")
	case alm.Action == "":
		return errors.New("audit action is required")
	case alm.Worker == "" || alm.TaskID == "":
		return errors.New("audit task reference is required")
	}
	return nil
}
