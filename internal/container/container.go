package container

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/mautops/dispatch-gin/internal/api"
	"github.com/mautops/dispatch-gin/internal/auth"
	"github.com/mautops/dispatch-gin/internal/config"
	"github.com/mautops/dispatch-gin/internal/database"
	"github.com/mautops/dispatch-gin/internal/geocode"
	"github.com/mautops/dispatch-gin/internal/integration"
	"github.com/mautops/dispatch-gin/internal/jobs"
	"github.com/mautops/dispatch-gin/internal/location"
	"github.com/mautops/dispatch-gin/internal/metrics"
	"github.com/mautops/dispatch-gin/internal/repository"
	"github.com/mautops/dispatch-gin/internal/service"
	"github.com/mautops/dispatch-gin/internal/websocket"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

// 任务存储后端
const (
	BackendSQL       = "sql"
	BackendFirebase  = "firebase"
	BackendFirestore = "firestore"
)

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、任务存储、推送通道和各个服务
type Container struct {
	cfg             *config.Config
	db              *gorm.DB
	firestoreClient *firestore.Client

	tasks  repository.TaskRepository
	users  repository.UserRepository
	tokens *auth.TokenManager

	hub          *websocket.Hub
	bridge       *location.DeviceBridge
	board        *service.ProgressBoard
	eventHandler *integration.EventHandler
	scheduler    *jobs.Scheduler

	taskService       service.TaskService
	presenceService   service.PresenceService
	exportService     service.ExportService
	userService       service.UserService
	statisticsService service.StatisticsService
	auditLogService   service.AuditLogService
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config) (*Container, error) {
	ctx := context.Background()

	// 1. 初始化数据库（带重试机制）
	// 用户、事件和审计日志始终保存在关系库中
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	c := &Container{cfg: cfg, db: db}

	// 2. 任务存储与 FCM
	var app *firebase.App
	if cfg.Store.Backend == BackendFirebase || cfg.Firebase.FCMTopic != "" {
		app, err = newFirebaseApp(ctx, cfg.Firebase)
		if err != nil {
			c.Close()
			return nil, err
		}
	}
	if err := c.initTaskStore(ctx, app); err != nil {
		c.Close()
		return nil, err
	}
	c.users = repository.NewUserRepository(db)
	c.tokens = auth.NewTokenManager(cfg.Auth)

	// 3. WebSocket Hub 与设备定位桥
	c.hub = websocket.NewHub()
	go c.hub.Run()
	c.bridge = location.NewDeviceBridge(c.hub, cfg.Geofence.AcquireTimeout)
	c.hub.OnMessage(func(client *websocket.Client, msg websocket.Message) {
		if !c.bridge.HandleResponse(client.UserID, msg.Type, msg.RequestID, msg.Data) {
			logrus.WithFields(logrus.Fields{
				"user_id":    client.UserID,
				"type":       msg.Type,
				"request_id": msg.RequestID,
			}).Debug("unmatched device message")
		}
	})

	// 4. 事件投递: WebSocket、FCM 和 webhook
	opts := []integration.EventHandlerOption{integration.WithPusher(c.hub)}
	if app != nil && cfg.Firebase.FCMTopic != "" {
		client, err := app.Messaging(ctx)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize firebase messaging: %w", err)
		}
		opts = append(opts, integration.WithMessaging(client, cfg.Firebase.FCMTopic))
	}
	c.eventHandler = integration.NewEventHandler(repository.NewEventRepository(db), cfg.Events, opts...)
	if n, err := c.eventHandler.Recover(ctx); err != nil {
		logrus.WithError(err).Warn("failed to recover pending events")
	} else if n > 0 {
		logrus.WithField("count", n).Info("recovered pending events")
	}

	// 5. 服务
	c.auditLogService = service.NewAuditLogService(repository.NewAuditLogRepository(db))
	c.board = service.NewProgressBoard()
	c.board.SetListener(func(p service.Progress) {
		c.hub.Publish(p.Worker, websocket.MessageProgress, p)
	})
	c.presenceService = service.NewPresenceService(c.tasks, service.PolicyFromConfig(cfg.Geofence),
		service.WithEventPublisher(c.eventHandler),
		service.WithAuditLog(c.auditLogService),
		service.WithProgressBoard(c.board),
	)
	c.taskService = service.NewTaskService(c.tasks, c.users, geocode.NewClient(cfg.Geocoder), c.eventHandler, c.auditLogService)
	c.exportService = service.NewExportService(c.tasks)
	c.userService = service.NewUserService(c.users, c.tokens, cfg.Media)
	c.statisticsService = service.NewStatisticsService(c.tasks)

	// 6. 定时任务
	c.scheduler = jobs.NewScheduler(cfg.Jobs, metrics.NewCollector(db, c.tasks), c.auditLogService)

	return c, nil
}

// newFirebaseApp 初始化 Firebase 应用
func newFirebaseApp(ctx context.Context, cfg config.FirebaseConfig) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{
		DatabaseURL: cfg.DatabaseURL,
		ProjectID:   cfg.ProjectID,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	return app, nil
}

// initTaskStore 按配置选择任务存储后端
func (c *Container) initTaskStore(ctx context.Context, app *firebase.App) error {
	switch c.cfg.Store.Backend {
	case "", BackendSQL:
		c.tasks = repository.NewTaskRepository(c.db)
	case BackendFirebase:
		client, err := app.Database(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize firebase database: %w", err)
		}
		c.tasks = repository.NewFirebaseTaskRepository(client, c.cfg.Store.PollInterval)
	case BackendFirestore:
		var opts []option.ClientOption
		if c.cfg.Firestore.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(c.cfg.Firestore.CredentialsFile))
		}
		client, err := firestore.NewClient(ctx, c.cfg.Firestore.ProjectID, opts...)
		if err != nil {
			return fmt.Errorf("failed to initialize firestore client: %w", err)
		}
		c.firestoreClient = client
		c.tasks = repository.NewFirestoreTaskRepository(client)
	default:
		return fmt.Errorf("unknown store backend %q", c.cfg.Store.Backend)
	}

	logrus.WithField("backend", c.cfg.Store.Backend).Info("task store initialized")
	return nil
}

// WatchConfig 配置文件变更时热更新到场阈值
func (c *Container) WatchConfig(watcher *config.ConfigWatcher) {
	watcher.OnConfigChange(func(cfg *config.Config) {
		c.presenceService.SetPolicy(service.PolicyFromConfig(cfg.Geofence))
		logrus.WithFields(logrus.Fields{
			"radius":            cfg.Geofence.Radius,
			"confirm_accuracy":  cfg.Geofence.ConfirmAccuracy,
			"complete_accuracy": cfg.Geofence.CompleteAccuracy,
		}).Info("geofence policy reloaded")
	})
}

// Config 获取配置
func (c *Container) Config() *config.Config {
	return c.cfg
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Tasks 获取任务仓储
func (c *Container) Tasks() repository.TaskRepository {
	return c.tasks
}

// TokenManager 获取 token 管理器
func (c *Container) TokenManager() *auth.TokenManager {
	return c.tokens
}

// Hub 获取 WebSocket Hub
func (c *Container) Hub() *websocket.Hub {
	return c.hub
}

// DeviceBridge 获取设备定位桥
func (c *Container) DeviceBridge() *location.DeviceBridge {
	return c.bridge
}

// Scheduler 获取定时任务调度器
func (c *Container) Scheduler() *jobs.Scheduler {
	return c.scheduler
}

// UserService 获取用户服务
func (c *Container) UserService() service.UserService {
	return c.userService
}

// RouterDeps 路由依赖
func (c *Container) RouterDeps() api.RouterDeps {
	return api.RouterDeps{
		Config:     c.cfg,
		DB:         c.db,
		Tasks:      c.tasks,
		Tokens:     c.tokens,
		Hub:        c.hub,
		Devices:    c.bridge,
		Health:     c.health(),
		Task:       c.taskService,
		Presence:   c.presenceService,
		Export:     c.exportService,
		Users:      c.userService,
		Statistics: c.statisticsService,
	}
}

// health 健康检查: 数据库以及非 SQL 的任务存储
func (c *Container) health() *api.HealthController {
	h := api.NewHealthController(c.db)
	if c.cfg.Store.Backend == BackendFirebase || c.cfg.Store.Backend == BackendFirestore {
		h.AddCheck("task_store", func(ctx context.Context) error {
			_, err := c.tasks.List(ctx, "")
			return err
		})
	}
	return h
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	if c.eventHandler != nil {
		c.eventHandler.Stop()
	}
	if c.firestoreClient != nil {
		if err := c.firestoreClient.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close firestore client")
		}
	}
	database.Close(c.db)
	return nil
}
