package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mautops/dispatch-gin/internal/model"
	"github.com/mautops/dispatch-gin/internal/repository"
)

// StatisticsService 统计服务接口
type StatisticsService interface {
	GetTaskStatisticsByWorker(ctx context.Context) ([]*TaskStatisticsByWorker, error)
	GetCompletionsByDay(ctx context.Context, worker string) ([]*TaskStatisticsByTime, error)
}

// TaskStatisticsByWorker 按工人统计
type TaskStatisticsByWorker struct {
	Worker    string `json:"worker"`
	Pending   int64  `json:"pending"`
	OnSite    int64  `json:"onSite"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
}

// TaskStatisticsByTime 按时间统计
type TaskStatisticsByTime struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// statisticsService 统计服务实现,基于任务仓储,对所有存储后端可用
type statisticsService struct {
	repo repository.TaskRepository
}

// NewStatisticsService 创建统计服务
func NewStatisticsService(repo repository.TaskRepository) StatisticsService {
	return &statisticsService{repo: repo}
}

// GetTaskStatisticsByWorker 按工人统计任务状态
func (s *statisticsService) GetTaskStatisticsByWorker(ctx context.Context) ([]*TaskStatisticsByWorker, error) {
	tasks, err := s.repo.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get task statistics by worker: %w", err)
	}

	byWorker := make(map[string]*TaskStatisticsByWorker)
	for _, t := range tasks {
		stat, ok := byWorker[t.AssignedTo]
		if !ok {
			stat = &TaskStatisticsByWorker{Worker: t.AssignedTo}
			byWorker[t.AssignedTo] = stat
		}
		stat.Total++
		switch {
		case t.Completed:
			stat.Completed++
		case t.IsOnSite:
			stat.OnSite++
		default:
			stat.Pending++
		}
	}

	stats := make([]*TaskStatisticsByWorker, 0, len(byWorker))
	for _, stat := range byWorker {
		stats = append(stats, stat)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Worker < stats[j].Worker })
	return stats, nil
}

// GetCompletionsByDay 按天统计完成数(UTC),worker 为空时统计全部
func (s *statisticsService) GetCompletionsByDay(ctx context.Context, worker string) ([]*TaskStatisticsByTime, error) {
	tasks, err := s.repo.List(ctx, worker)
	if err != nil {
		return nil, fmt.Errorf("failed to get completions by day: %w", err)
	}

	counts := make(map[string]int64)
	for _, t := range completedTasks(tasks) {
		counts[t.CompletedAt.UTC().Format(time.DateOnly)]++
	}

	stats := make([]*TaskStatisticsByTime, 0, len(counts))
	for date, count := range counts {
		stats = append(stats, &TaskStatisticsByTime{Date: date, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Date < stats[j].Date })
	return stats, nil
}

// completedTasks 过滤出已完成且有完成时间的任务
func completedTasks(tasks []*model.Task) []*model.Task {
	completed := make([]*model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Completed && t.CompletedAt != nil {
			completed = append(completed, t)
		}
	}
	return completed
}
