package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mautops/dispatch-gin/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHandler_ExposesDispatchMetrics 测试 /metrics 输出业务指标
func TestHandler_ExposesDispatchMetrics(t *testing.T) {
	metrics.RecordTaskCreated()
	metrics.RecordPresenceCheck("on_site")
	metrics.RecordTaskCompletion("out_of_range")
	metrics.ObserveLocationAcquire("confirm", 300*time.Millisecond)
	metrics.RecordAPIRequest(http.MethodPost, "/api/v1/tasks/:worker/:id/confirm", http.StatusOK, 0.3)
	metrics.RecordAPIRequest(http.MethodGet, "", http.StatusNotFound, 0.001)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, "dispatch_tasks_created_total")
	assert.Contains(t, text, `dispatch_presence_confirmations_total{outcome="on_site"}`)
	assert.Contains(t, text, `dispatch_presence_completions_total{outcome="out_of_range"}`)
	assert.Contains(t, text, `dispatch_location_acquire_duration_seconds_count{mode="confirm"}`)
	assert.Contains(t, text, `code="200"`)
	assert.Contains(t, text, `route="unmatched"`)
	assert.Contains(t, text, "go_goroutines")
}
