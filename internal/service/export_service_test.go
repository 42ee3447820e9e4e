package service_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/mautops/dispatch-gin/internal/model"
	"github.com/mautops/dispatch-gin/internal/repository"
	"github.com/mautops/dispatch-gin/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func seedCompleted(t *testing.T) repository.TaskRepository {
	repo := repository.NewTaskRepository(setupTestDB(t))
	ctx := context.Background()

	done := &model.Task{ID: "1", Title: "Fix pump", Location: "Arbat 5", Coordinates: taskPoint, Time: "08:00", AssignedTo: "ivan", CreatedAt: fixedNow}
	open := &model.Task{ID: "2", Title: "Paint wall", Location: "Arbat 7", Coordinates: taskPoint, Time: "12:00", AssignedTo: "ivan", CreatedAt: fixedNow}
	other := &model.Task{ID: "3", Title: "Other", Location: "Tverskaya", Coordinates: taskPoint, Time: "13:00", AssignedTo: "olga", CreatedAt: fixedNow}
	for _, task := range []*model.Task{done, open, other} {
		require.NoError(t, repo.Create(ctx, task))
	}

	completed := true
	completedAt := fixedNow
	require.NoError(t, repo.Update(ctx, "ivan", "1", &model.TaskUpdate{
		Completed:         &completed,
		CompletedAt:       &completedAt,
		CompletedLocation: &model.LocationReading{Latitude: 55.75, Longitude: 37.62, Accuracy: 12.5},
	}))
	require.NoError(t, repo.Update(ctx, "olga", "3", &model.TaskUpdate{Completed: &completed, CompletedAt: &completedAt}))
	return repo
}

// TestExportService_CSV 测试 CSV 导出
func TestExportService_CSV(t *testing.T) {
	svc := service.NewExportService(seedCompleted(t))

	var buf bytes.Buffer
	n, err := svc.ExportCompleted(context.Background(), "ivan", service.ExportFormatCSV, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"title", "location", "time", "assignedTo", "completedAt", "accuracy"}, records[0])
	assert.Equal(t, []string{"Fix pump", "Arbat 5", "08:00", "ivan", fixedNow.Format(time.RFC3339), "12.5"}, records[1])
}

// TestExportService_XLSX 测试 XLSX 导出全部工人
func TestExportService_XLSX(t *testing.T) {
	svc := service.NewExportService(seedCompleted(t))

	var buf bytes.Buffer
	n, err := svc.ExportCompleted(context.Background(), "", service.ExportFormatXLSX, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Completed")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "title", rows[0][0])
}

// TestExportService_UnknownFormat 测试未知格式
func TestExportService_UnknownFormat(t *testing.T) {
	svc := service.NewExportService(seedCompleted(t))
	_, err := svc.ExportCompleted(context.Background(), "", "pdf", &bytes.Buffer{})
	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

// TestStatisticsService 测试按工人和按天统计
func TestStatisticsService(t *testing.T) {
	svc := service.NewStatisticsService(seedCompleted(t))
	ctx := context.Background()

	byWorker, err := svc.GetTaskStatisticsByWorker(ctx)
	require.NoError(t, err)
	require.Len(t, byWorker, 2)
	assert.Equal(t, "ivan", byWorker[0].Worker)
	assert.Equal(t, int64(1), byWorker[0].Completed)
	assert.Equal(t, int64(1), byWorker[0].Pending)
	assert.Equal(t, int64(2), byWorker[0].Total)

	byDay, err := svc.GetCompletionsByDay(ctx, "")
	require.NoError(t, err)
	require.Len(t, byDay, 1)
	assert.Equal(t, "2024-05-20", byDay[0].Date)
	assert.Equal(t, int64(2), byDay[0].Count)
}
