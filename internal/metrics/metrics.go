package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

const namespace = "dispatch"

// registry 独立注册表,避免与引入方的默认注册表冲突
var registry = prometheus.NewRegistry()

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"method", "route", "code"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		// 定位请求最长等待 15s,桶需覆盖到该上限之后
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 15, 20},
	}, []string{"method", "route"})

	tasksCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_created_total",
		Help:      "Tasks assigned to workers.",
	})

	// outcome: on_site, off_site 或错误类别
	presenceOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "presence",
		Name:      "confirmations_total",
		Help:      "Presence confirmations by outcome.",
	}, []string{"outcome"})

	completionOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "presence",
		Name:      "completions_total",
		Help:      "Task completion attempts by outcome.",
	}, []string{"outcome"})

	// mode: confirm 或 complete
	acquireLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "location",
		Name:      "acquire_duration_seconds",
		Help:      "Time spent waiting for a location fix.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
	}, []string{"mode"})

	// state: in_use, idle, max
	dbConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "connections",
		Help:      "Database pool connections by state.",
	}, []string{"state"})

	deviceConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "websocket",
		Name:      "connections",
		Help:      "Open device WebSocket connections.",
	})

	// state: pending, on_site, completed
	tasksByState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tasks",
		Help:      "Tasks by lifecycle state.",
	}, []string{"state"})
)

func init() {
	registry.MustRegister(
		httpRequests,
		httpDuration,
		tasksCreated,
		presenceOutcomes,
		completionOutcomes,
		acquireLatency,
		dbConnections,
		deviceConnections,
		tasksByState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// RecordAPIRequest 记录一次 HTTP 请求;route 为 gin 的路由模板,未匹配时为空
func RecordAPIRequest(method, route string, status int, duration float64) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(duration)
}

// RecordTaskCreated 记录任务创建
func RecordTaskCreated() {
	tasksCreated.Inc()
}

// RecordPresenceCheck 记录到场确认结果
func RecordPresenceCheck(outcome string) {
	presenceOutcomes.WithLabelValues(outcome).Inc()
}

// RecordTaskCompletion 记录任务完成结果
func RecordTaskCompletion(outcome string) {
	completionOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveLocationAcquire 记录一次定位耗时
func ObserveLocationAcquire(mode string, elapsed time.Duration) {
	acquireLatency.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// UpdateDatabaseConnections 刷新连接池指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	dbConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
	dbConnections.WithLabelValues("idle").Set(float64(stats.Idle))
	dbConnections.WithLabelValues("max").Set(float64(stats.MaxOpenConnections))
	return nil
}

// UpdateTasksByState 更新任务状态分布
func UpdateTasksByState(state string, count float64) {
	tasksByState.WithLabelValues(state).Set(count)
}

// SetDeviceConnections 更新 WebSocket 连接数
func SetDeviceConnections(n int) {
	deviceConnections.Set(float64(n))
}
