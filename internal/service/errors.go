package service

import (
	"errors"
	"fmt"

	"github.com/mautops/dispatch-gin/internal/repository"
)

// 工作流错误类型
var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrAccuracyTooLow      = errors.New("location accuracy too low")
	ErrNotOnSite           = errors.New("presence not confirmed")
	ErrOutOfRange          = errors.New("too far from task location")
	ErrTaskCompleted       = errors.New("task already completed")
	ErrNotAssignee         = errors.New("task is not assigned to this user")
	ErrTaskNotFound        = repository.ErrTaskNotFound
	ErrInvalidInput        = errors.New("invalid input")
)

// WorkflowError 工作流失败,Kind 为上面的错误类型之一
type WorkflowError struct {
	Kind     error
	Accuracy float64 // 测得的精度(米)
	Distance float64 // 测得的距离(米)
	Limit    float64 // 触发失败的阈值(米)
	Err      error   // 底层错误
}

func (e *WorkflowError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case errors.Is(e.Kind, ErrAccuracyTooLow):
		return fmt.Sprintf("%s: %.0f m (limit %.0f m)", e.Kind, e.Accuracy, e.Limit)
	case errors.Is(e.Kind, ErrOutOfRange):
		return fmt.Sprintf("%s: %.0f m (limit %.0f m)", e.Kind, e.Distance, e.Limit)
	default:
		return e.Kind.Error()
	}
}

// Is 使 errors.Is(err, ErrXxx) 按 Kind 匹配
func (e *WorkflowError) Is(target error) bool {
	return e.Kind == target
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func workflowError(kind error, err error) *WorkflowError {
	return &WorkflowError{Kind: kind, Err: err}
}

// Outcome 用于指标和日志的失败分类
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrLocationUnavailable):
		return "location_unavailable"
	case errors.Is(err, ErrAccuracyTooLow):
		return "accuracy_too_low"
	case errors.Is(err, ErrNotOnSite):
		return "not_on_site"
	case errors.Is(err, ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, ErrTaskCompleted):
		return "task_completed"
	case errors.Is(err, ErrNotAssignee):
		return "not_assignee"
	case errors.Is(err, ErrTaskNotFound):
		return "not_found"
	default:
		return "error"
	}
}
