package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/dispatch-gin/internal/auth"
	"github.com/mautops/dispatch-gin/internal/location"
	"github.com/mautops/dispatch-gin/internal/service"
	"github.com/mautops/dispatch-gin/internal/utils"
)

// maxReportSize 定位上报请求体上限
const maxReportSize = 16 * 1024

// DeviceProviders 按工人返回其在线设备的定位来源
type DeviceProviders interface {
	Provider(worker string) location.Provider
}

// TaskController 任务控制器
type TaskController struct {
	taskService     service.TaskService
	presenceService service.PresenceService
	exportService   service.ExportService
	devices         DeviceProviders
}

// NewTaskController 创建任务控制器,devices 为 nil 时只接受请求体上报的定位
func NewTaskController(
	taskService service.TaskService,
	presenceService service.PresenceService,
	exportService service.ExportService,
	devices DeviceProviders,
) *TaskController {
	return &TaskController{
		taskService:     taskService,
		presenceService: presenceService,
		exportService:   exportService,
		devices:         devices,
	}
}

// taskKey 校验路径中的工人名和任务 ID
func taskKey(c *gin.Context) (string, string, bool) {
	worker, id := c.Param("worker"), c.Param("id")
	for _, key := range []string{worker, id} {
		if err := utils.ValidateKey(key); err != nil {
			BadRequest(c, err)
			return "", "", false
		}
	}
	return worker, id, true
}

// forbidden 返回 403
func forbidden(c *gin.Context) {
	Fail(c, http.StatusForbidden, "error.forbidden", "")
}

// Create 创建任务并分配给工人
// POST /api/v1/tasks
func (tc *TaskController) Create(c *gin.Context) {
	var req service.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err)
		return
	}

	task, err := tc.taskService.Create(c.Request.Context(), auth.UserID(c), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	Created(c, task)
}

// List 列出任务,工人只能查看自己的任务
// GET /api/v1/tasks?worker=&status=
func (tc *TaskController) List(c *gin.Context) {
	worker := c.Query("worker")
	if !auth.IsAdmin(c) {
		if worker != "" && worker != auth.UserID(c) {
			forbidden(c)
			return
		}
		worker = auth.UserID(c)
	}

	tasks, err := tc.taskService.List(c.Request.Context(), service.TaskFilter{
		Worker: worker,
		Status: c.Query("status"),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	Success(c, tasks)
}

// Get 获取任务详情
// GET /api/v1/tasks/:worker/:id
func (tc *TaskController) Get(c *gin.Context) {
	worker, id, ok := taskKey(c)
	if !ok {
		return
	}
	if !auth.CanAccessWorker(c, worker) {
		forbidden(c)
		return
	}

	task, err := tc.taskService.Get(c.Request.Context(), worker, id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	Success(c, task)
}

// Confirm 到场确认
// POST /api/v1/tasks/:worker/:id/confirm
func (tc *TaskController) Confirm(c *gin.Context) {
	req, ok := tc.presenceRequest(c)
	if !ok {
		return
	}

	result, err := tc.presenceService.Confirm(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if !result.OnSite {
		Success(c, result)
		return
	}
	SuccessMessage(c, "success.confirmed", result)
}

// Complete 完成任务
// POST /api/v1/tasks/:worker/:id/complete
func (tc *TaskController) Complete(c *gin.Context) {
	req, ok := tc.presenceRequest(c)
	if !ok {
		return
	}

	result, err := tc.presenceService.Complete(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	SuccessMessage(c, "success.completed", result)
}

// presenceRequest 构造到场请求
// 请求体带定位结果时直接使用,空请求体时通过 WebSocket 向工人的设备索取
func (tc *TaskController) presenceRequest(c *gin.Context) (*service.PresenceRequest, bool) {
	worker, id, ok := taskKey(c)
	if !ok {
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxReportSize))
	if err != nil {
		BadRequest(c, err)
		return nil, false
	}

	var report location.Report
	if len(bytes.TrimSpace(body)) > 0 {
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		if err := c.ShouldBindJSON(&report); err != nil {
			BadRequest(c, err)
			return nil, false
		}
	}

	var provider location.Provider
	if report.Empty() && tc.devices != nil {
		provider = tc.devices.Provider(worker)
	} else {
		provider = location.NewReportedProvider(report)
	}

	return &service.PresenceRequest{
		Actor:    auth.UserID(c),
		Worker:   worker,
		TaskID:   id,
		Provider: provider,
	}, true
}

// Progress 获取定位进度
// GET /api/v1/tasks/:worker/:id/progress
func (tc *TaskController) Progress(c *gin.Context) {
	worker, id, ok := taskKey(c)
	if !ok {
		return
	}
	if !auth.CanAccessWorker(c, worker) {
		forbidden(c)
		return
	}

	Success(c, tc.presenceService.Progress(worker, id))
}

// Export 导出已完成任务
// GET /api/v1/tasks/export?worker=&format=csv|xlsx
func (tc *TaskController) Export(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", service.ExportFormatCSV))

	// 先写入缓冲区,失败时仍可返回 JSON 错误
	var buf bytes.Buffer
	n, err := tc.exportService.ExportCompleted(c.Request.Context(), c.Query("worker"), format, &buf)
	if err != nil {
		_ = c.Error(err)
		return
	}

	filename := fmt.Sprintf("completed-tasks-%s.%s", time.Now().Format("20060102"), format)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("X-Total-Count", fmt.Sprint(n))
	c.Data(http.StatusOK, service.ContentType(format), buf.Bytes())
}

// Suggest 地址联想
// GET /api/v1/geocode/suggest?q=
func (tc *TaskController) Suggest(c *gin.Context) {
	suggestions, err := tc.taskService.Suggest(c.Request.Context(), c.Query("q"))
	if err != nil {
		if errors.Is(err, service.ErrAddressNotFound) {
			Success(c, []interface{}{})
			return
		}
		Fail(c, http.StatusBadGateway, "error.internal_error", err.Error())
		return
	}

	Success(c, suggestions)
}
