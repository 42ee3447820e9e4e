package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/dispatch-gin/internal/service"
)

// StatisticsController 统计控制器
type StatisticsController struct {
	statisticsService service.StatisticsService
}

// NewStatisticsController 创建统计控制器
func NewStatisticsController(statisticsService service.StatisticsService) *StatisticsController {
	return &StatisticsController{statisticsService: statisticsService}
}

// ByWorker 按工人统计任务状态
// GET /api/v1/statistics/workers
func (sc *StatisticsController) ByWorker(c *gin.Context) {
	stats, err := sc.statisticsService.GetTaskStatisticsByWorker(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	Success(c, stats)
}

// CompletionsByDay 按天统计完成数
// GET /api/v1/statistics/completions?worker=
func (sc *StatisticsController) CompletionsByDay(c *gin.Context) {
	stats, err := sc.statisticsService.GetCompletionsByDay(c.Request.Context(), c.Query("worker"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	Success(c, stats)
}
