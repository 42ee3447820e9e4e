package api_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/mautops/dispatch-gin/internal/api"
	"github.com/mautops/dispatch-gin/internal/auth"
	"github.com/mautops/dispatch-gin/internal/location"
	"github.com/mautops/dispatch-gin/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type confirmBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		TaskID   string  `json:"taskId"`
		OnSite   bool    `json:"onSite"`
		Distance float64 `json:"distance"`
	} `json:"data"`
}

// TestConfirmAndComplete 到场确认后完成任务
func TestConfirmAndComplete(t *testing.T) {
	f := setupAPI(t)
	f.seedTask("ivan", "1")
	token := f.token("ivan", auth.RoleWorker)

	w := f.do(http.MethodPost, "/api/v1/tasks/ivan/1/confirm", token, fixAt(40, 20))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var confirmed confirmBody
	decode(t, w, &confirmed)
	assert.True(t, confirmed.Data.OnSite)
	assert.InDelta(t, 40, confirmed.Data.Distance, 1)

	w = f.do(http.MethodPost, "/api/v1/tasks/ivan/1/complete", token, fixAt(10, 10))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	task, err := f.tasks.Get(context.Background(), "ivan", "1")
	require.NoError(t, err)
	assert.True(t, task.Completed)
	require.NotNil(t, task.CompletedLocation)
	assert.Equal(t, 10.0, task.CompletedLocation.Accuracy)
}

// TestConfirm_OffSite 围栏外确认返回成功但未到场
func TestConfirm_OffSite(t *testing.T) {
	f := setupAPI(t)
	f.seedTask("ivan", "1")

	w := f.do(http.MethodPost, "/api/v1/tasks/ivan/1/confirm", f.token("ivan", auth.RoleWorker), fixAt(250, 20))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body confirmBody
	decode(t, w, &body)
	assert.False(t, body.Data.OnSite)
	assert.Equal(t, "success", body.Message)
}

// TestPresence_ErrorMapping 工作流错误到 HTTP 状态的映射
func TestPresence_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		user   string
		body   interface{}
		status int
		kind   string
	}{
		{"permission denied", "/api/v1/tasks/ivan/1/confirm", "ivan", map[string]interface{}{"permissionGranted": false}, http.StatusForbidden, "PermissionDenied"},
		{"no fix and no device", "/api/v1/tasks/ivan/1/confirm", "ivan", nil, http.StatusGatewayTimeout, "LocationUnavailable"},
		{"device error", "/api/v1/tasks/ivan/1/confirm", "ivan", map[string]interface{}{"error": "timeout"}, http.StatusGatewayTimeout, "LocationUnavailable"},
		{"coarse confirm", "/api/v1/tasks/ivan/1/confirm", "ivan", fixAt(10, 150), http.StatusUnprocessableEntity, "AccuracyTooLow"},
		{"complete before confirm", "/api/v1/tasks/ivan/1/complete", "ivan", fixAt(10, 10), http.StatusConflict, "NotOnSite"},
		{"not assignee", "/api/v1/tasks/ivan/1/confirm", "olga", fixAt(10, 10), http.StatusForbidden, "NotAssignee"},
		{"unknown task", "/api/v1/tasks/ivan/404/confirm", "ivan", fixAt(10, 10), http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupAPI(t)
			f.seedTask("ivan", "1")

			w := f.do(http.MethodPost, tt.path, f.token(tt.user, auth.RoleWorker), tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())

			var resp api.ErrorResponse
			decode(t, w, &resp)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

// TestComplete_AccuracyAndRange 完成任务的精度与距离检查
func TestComplete_AccuracyAndRange(t *testing.T) {
	f := setupAPI(t)
	f.seedTask("ivan", "1")
	token := f.token("ivan", auth.RoleWorker)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/tasks/ivan/1/confirm", token, fixAt(10, 20)).Code)

	w := f.do(http.MethodPost, "/api/v1/tasks/ivan/1/complete", token, fixAt(10, 80))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp api.ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, "AccuracyTooLow", resp.Kind)
	assert.Equal(t, 80.0, resp.Details["accuracy"])
	assert.Equal(t, 50.0, resp.Details["limit"])

	w = f.do(http.MethodPost, "/api/v1/tasks/ivan/1/complete", token, fixAt(300, 10))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp = api.ErrorResponse{}
	decode(t, w, &resp)
	assert.Equal(t, "OutOfRange", resp.Kind)
	assert.Equal(t, 100.0, resp.Details["limit"])

	task, err := f.tasks.Get(context.Background(), "ivan", "1")
	require.NoError(t, err)
	assert.False(t, task.Completed)
	assert.True(t, task.IsOnSite)
}

// TestConfirm_RussianMessages 按 Accept-Language 返回俄语消息
func TestConfirm_RussianMessages(t *testing.T) {
	f := setupAPI(t)
	f.seedTask("ivan", "1")

	w := f.do(http.MethodPost, "/api/v1/tasks/ivan/1/complete", f.token("ivan", auth.RoleWorker), fixAt(0, 5),
		"Accept-Language", "ru-RU,ru;q=0.9")
	require.Equal(t, http.StatusConflict, w.Code)

	var resp api.ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, "Вы должны находиться на месте для завершения задачи", resp.Message)
}

// fakeDevices 固定返回同一个定位来源
type fakeDevices struct {
	provider location.Provider
	workers  []string
}

func (d *fakeDevices) Provider(worker string) location.Provider {
	d.workers = append(d.workers, worker)
	return d.provider
}

// TestConfirm_EmptyBodyUsesDevice 空请求体时向工人设备索取定位
func TestConfirm_EmptyBodyUsesDevice(t *testing.T) {
	f := setupAPI(t)
	f.seedTask("ivan", "1")

	fix := fixAt(5, 5)["fix"].(map[string]interface{})
	devices := &fakeDevices{provider: location.NewReportedProvider(location.Report{Fix: &location.Fix{
		Latitude:  fix["latitude"].(float64),
		Longitude: fix["longitude"].(float64),
		Accuracy:  5,
	}})}
	f.withDevices(devices)

	w := f.do(http.MethodPost, "/api/v1/tasks/ivan/1/confirm", f.token("ivan", auth.RoleWorker), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"ivan"}, devices.workers)
}

// TestTasks_AccessControl 工人只能访问自己的任务
func TestTasks_AccessControl(t *testing.T) {
	f := setupAPI(t)
	f.seedTask("ivan", "1")
	f.seedTask("olga", "2")
	worker := f.token("ivan", auth.RoleWorker)
	admin := f.token("boss", auth.RoleAdmin)

	var list struct {
		Data []*model.Task `json:"data"`
	}
	w := f.do(http.MethodGet, "/api/v1/tasks", worker, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "ivan", list.Data[0].AssignedTo)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/api/v1/tasks?worker=olga", worker, nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/api/v1/tasks/olga/2", worker, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/tasks/olga/2", admin, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/tasks", "", nil).Code)

	list.Data = nil
	w = f.do(http.MethodGet, "/api/v1/tasks?status=all", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	assert.Len(t, list.Data, 2)
}

// TestTasks_CreateRequiresAdmin 只有管理员可以创建任务
func TestTasks_CreateRequiresAdmin(t *testing.T) {
	f := setupAPI(t)
	body := map[string]string{"title": "Check meter", "location": "Red Square 1", "time": "09:30", "assignedTo": "ivan"}

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/api/v1/tasks", f.token("ivan", auth.RoleWorker), body).Code)

	w := f.do(http.MethodPost, "/api/v1/tasks", f.token("boss", auth.RoleAdmin), body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Data model.Task `json:"data"`
	}
	decode(t, w, &created)
	assert.NotEmpty(t, created.Data.ID)
	assert.Equal(t, sitePoint, created.Data.Coordinates)

	body["time"] = "25:99"
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/v1/tasks", f.token("boss", auth.RoleAdmin), body).Code)
}

// TestTasks_Export 导出已完成任务
func TestTasks_Export(t *testing.T) {
	f := setupAPI(t)
	f.seedTask("ivan", "1")
	admin := f.token("boss", auth.RoleAdmin)

	w := f.do(http.MethodGet, "/api/v1/tasks/export?format=csv", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "completed-tasks-")
	assert.Equal(t, "0", w.Header().Get("X-Total-Count"))

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/tasks/export?format=pdf", admin, nil).Code)
}

// TestSuggest 地址联想
func TestSuggest(t *testing.T) {
	f := setupAPI(t)
	token := f.token("boss", auth.RoleAdmin)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/api/v1/geocode/suggest?q=Tverskaya", f.token("ivan", auth.RoleWorker), nil).Code)

	var resp struct {
		Data []map[string]interface{} `json:"data"`
	}
	w := f.do(http.MethodGet, "/api/v1/geocode/suggest?q=Tv", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Empty(t, resp.Data)

	w = f.do(http.MethodGet, "/api/v1/geocode/suggest?q=Tverskaya", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "Tverskaya", resp.Data[0]["address"])
}
