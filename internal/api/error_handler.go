package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/dispatch-gin/internal/service"
	"github.com/sirupsen/logrus"
)

// ErrorHandlerMiddleware 把处理器通过 c.Error 记录的最后一个错误写成本地化响应
// 处理器已写出响应时不再处理
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if last := c.Errors.Last(); last != nil && !c.Writer.Written() {
			writeServiceError(c, last.Err)
		}
	}
}

// errorMapping 服务层错误到 HTTP 状态和消息 key 的映射,按顺序匹配
var errorMapping = []struct {
	err    error
	status int
	key    string
	kind   string
}{
	{service.ErrPermissionDenied, http.StatusForbidden, "error.permission_denied", "PermissionDenied"},
	{service.ErrLocationUnavailable, http.StatusGatewayTimeout, "error.location_unavailable", "LocationUnavailable"},
	{service.ErrAccuracyTooLow, http.StatusUnprocessableEntity, "error.accuracy_too_low", "AccuracyTooLow"},
	{service.ErrNotOnSite, http.StatusConflict, "error.not_on_site", "NotOnSite"},
	{service.ErrOutOfRange, http.StatusUnprocessableEntity, "error.out_of_range", "OutOfRange"},
	{service.ErrTaskCompleted, http.StatusConflict, "error.task_completed", "TaskCompleted"},
	{service.ErrNotAssignee, http.StatusForbidden, "error.not_assignee", "NotAssignee"},
	{service.ErrTaskNotFound, http.StatusNotFound, "error.not_found", ""},
	{service.ErrUserNotFound, http.StatusNotFound, "error.not_found", ""},
	{service.ErrAddressNotFound, http.StatusUnprocessableEntity, "error.address_not_found", ""},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "error.invalid_credentials", ""},
	{service.ErrUserExists, http.StatusConflict, "error.user_exists", ""},
	{service.ErrInvalidInput, http.StatusBadRequest, "error.bad_request", ""},
}

// writeServiceError 将服务层错误转换为本地化的错误响应,未归类的错误按 500 返回
func writeServiceError(c *gin.Context, err error) {
	for _, m := range errorMapping {
		if !errors.Is(err, m.err) {
			continue
		}
		resp := ErrorResponse{
			Code:    m.status,
			Message: T(c, m.key),
			Detail:  err.Error(),
			Kind:    m.kind,
		}
		var wfErr *service.WorkflowError
		if errors.As(err, &wfErr) {
			resp.Details = workflowDetails(wfErr)
		}
		c.JSON(m.status, resp)
		return
	}

	logrus.WithError(err).WithField("request_id", c.GetString("request_id")).Error("unhandled service error")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Code:    http.StatusInternalServerError,
		Message: T(c, "error.internal_error"),
		Detail:  err.Error(),
	})
}

func workflowDetails(e *service.WorkflowError) map[string]interface{} {
	details := make(map[string]interface{})
	if e.Accuracy > 0 {
		details["accuracy"] = e.Accuracy
	}
	if e.Distance > 0 {
		details["distance"] = e.Distance
	}
	if e.Limit > 0 {
		details["limit"] = e.Limit
	}
	if len(details) == 0 {
		return nil
	}
	return details
}
