package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/mautops/dispatch-gin/internal/model"
	"github.com/mautops/dispatch-gin/internal/repository"
	"github.com/xuri/excelize/v2"
)

// 导出格式
const (
	ExportFormatCSV  = "csv"
	ExportFormatXLSX = "xlsx"
)

const exportSheet = "Completed"

var exportHeader = []string{"title", "location", "time", "assignedTo", "completedAt", "accuracy"}

// ExportService 已完成任务导出
type ExportService interface {
	// ExportCompleted 导出已完成任务,worker 为空时导出全部
	ExportCompleted(ctx context.Context, worker, format string, w io.Writer) (int, error)
}

type exportService struct {
	repo repository.TaskRepository
}

// NewExportService 创建导出服务
func NewExportService(repo repository.TaskRepository) ExportService {
	return &exportService{repo: repo}
}

// ContentType 导出格式对应的 MIME 类型
func ContentType(format string) string {
	if format == ExportFormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// ExportCompleted 导出已完成任务,返回导出行数
func (s *exportService) ExportCompleted(ctx context.Context, worker, format string, w io.Writer) (int, error) {
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatXLSX {
		return 0, fmt.Errorf("%w: unknown export format %q", ErrInvalidInput, format)
	}

	tasks, err := s.repo.List(ctx, worker)
	if err != nil {
		return 0, fmt.Errorf("failed to list tasks: %w", err)
	}
	completed := completedTasks(tasks)

	rows := make([][]string, 0, len(completed))
	for _, t := range completed {
		rows = append(rows, exportRow(t))
	}

	if format == ExportFormatXLSX {
		return len(rows), writeXLSX(w, rows)
	}
	return len(rows), writeCSV(w, rows)
}

func exportRow(t *model.Task) []string {
	accuracy := ""
	if t.CompletedLocation != nil {
		accuracy = strconv.FormatFloat(t.CompletedLocation.Accuracy, 'f', 1, 64)
	}
	return []string{
		t.Title,
		t.Location,
		t.Time,
		t.AssignedTo,
		t.CompletedAt.UTC().Format(time.RFC3339),
		accuracy,
	}
}

func writeCSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func writeXLSX(w io.Writer, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}

	all := append([][]string{exportHeader}, rows...)
	for i, row := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write xlsx row: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}
